package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"redbus-scraper/models"
)

// Store persists listings, reviews and checkpoints in PostgreSQL. It
// implements Loader and CheckpointStore.
type Store struct {
	db *sql.DB
}

// NewStore opens a connection to PostgreSQL, runs schema migrations, and
// returns a ready-to-use Store.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS buses (
			bus_id          TEXT PRIMARY KEY,
			operator_name   TEXT NOT NULL,
			bus_name        TEXT NOT NULL DEFAULT '',
			bus_type        TEXT NOT NULL DEFAULT 'other',
			origin          TEXT NOT NULL,
			destination     TEXT NOT NULL DEFAULT '',
			avg_rating      NUMERIC(4,2),
			rating_count    INTEGER NOT NULL DEFAULT 0,
			last_scraped_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS reviews (
			review_id       BIGSERIAL PRIMARY KEY,
			bus_id          TEXT NOT NULL REFERENCES buses(bus_id) ON DELETE CASCADE,
			dedup_key       TEXT NOT NULL UNIQUE,
			rating          NUMERIC(4,2),
			review_title    TEXT NOT NULL DEFAULT '',
			review_text     TEXT NOT NULL,
			review_date     DATE,
			sentiment_label TEXT NOT NULL DEFAULT 'neutral',
			sentiment_score NUMERIC(5,4) NOT NULL DEFAULT 0,
			quality_flags   TEXT NOT NULL DEFAULT '',
			ingested_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS checkpoints (
			route_key       TEXT PRIMARY KEY,
			last_page_index INTEGER NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_buses_operator    ON buses(operator_name);
		CREATE INDEX IF NOT EXISTS idx_buses_route       ON buses(origin, destination);
		CREATE INDEX IF NOT EXISTS idx_reviews_bus       ON reviews(bus_id);
		CREATE INDEX IF NOT EXISTS idx_reviews_sentiment ON reviews(sentiment_label);
	`)
	return err
}

// Load upserts listings and inserts new reviews, one transaction per bus,
// recomputing that bus's aggregates inside the same transaction so they
// never reflect a partially written batch.
func (s *Store) Load(ctx context.Context, listings []*models.BusListing, reviews []*models.Review) (*models.LoadReport, error) {
	report := &models.LoadReport{}

	byBus := make(map[string][]*models.Review)
	for _, r := range reviews {
		byBus[r.BusID] = append(byBus[r.BusID], r)
	}

	for _, listing := range listings {
		if err := s.loadBus(ctx, listing, byBus[listing.BusID], report); err != nil {
			return report, err
		}
		delete(byBus, listing.BusID)
	}

	// Reviews whose bus is not in this batch still load if the bus is
	// already stored; otherwise they are rejected, not silently dropped.
	for busID, orphaned := range byBus {
		exists, err := s.busExists(ctx, busID)
		if err != nil {
			return report, err
		}
		if !exists {
			report.Rejected += len(orphaned)
			continue
		}
		if err := s.loadBus(ctx, nil, orphaned, report); err != nil {
			return report, err
		}
	}

	return report, nil
}

// loadBus runs the transactional boundary for one bus: listing upsert,
// review inserts, aggregate recompute.
func (s *Store) loadBus(ctx context.Context, listing *models.BusListing, reviews []*models.Review, report *models.LoadReport) error {
	busID := ""
	if listing != nil {
		busID = listing.BusID
	} else if len(reviews) > 0 {
		busID = reviews[0].BusID
	} else {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	if listing != nil {
		inserted, err := upsertListing(ctx, tx, listing)
		if err != nil {
			return mapLoadError(busID, err)
		}
		if inserted {
			report.ListingsInserted++
		} else {
			report.ListingsUpdated++
		}
	}

	for _, review := range reviews {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO reviews (bus_id, dedup_key, rating, review_title, review_text,
			                     review_date, sentiment_label, sentiment_score, quality_flags, ingested_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (dedup_key) DO NOTHING
		`, review.BusID, review.DedupKey, review.Rating, review.Title, review.Text,
			nullableDate(review.Date), string(review.SentimentLabel), review.SentimentScore,
			flagsString(review.Flags), review.IngestedAt)
		if err != nil {
			return mapLoadError(busID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("postgres: rows affected: %w", err)
		}
		if n == 0 {
			report.DuplicatesSkipped++
		} else {
			report.ReviewsInserted++
		}
	}

	// Recompute aggregates from the stored review set; null ratings are
	// excluded by AVG/COUNT(rating). Page-scraped aggregates never land.
	if _, err := tx.ExecContext(ctx, `
		UPDATE buses SET
			avg_rating   = sub.avg_rating,
			rating_count = sub.rating_count
		FROM (
			SELECT AVG(rating) AS avg_rating, COUNT(rating) AS rating_count
			FROM reviews WHERE bus_id = $1
		) AS sub
		WHERE bus_id = $1
	`, busID); err != nil {
		return mapLoadError(busID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit bus %s: %w", busID, err)
	}
	return nil
}

func upsertListing(ctx context.Context, tx *sql.Tx, l *models.BusListing) (inserted bool, err error) {
	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM buses WHERE bus_id = $1)`, l.BusID).Scan(&exists)
	if err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO buses (bus_id, operator_name, bus_name, bus_type, origin, destination, last_scraped_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (bus_id) DO UPDATE SET
			operator_name   = EXCLUDED.operator_name,
			bus_name        = EXCLUDED.bus_name,
			bus_type        = EXCLUDED.bus_type,
			origin          = EXCLUDED.origin,
			destination     = EXCLUDED.destination,
			last_scraped_at = EXCLUDED.last_scraped_at
	`, l.BusID, l.OperatorName, l.BusName, string(l.BusType), l.Origin, l.Destination, l.LastScrapedAt)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (s *Store) busExists(ctx context.Context, busID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM buses WHERE bus_id = $1)`, busID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: bus exists: %w", err)
	}
	return exists, nil
}

// Checkpoint returns the stored cursor for a route, or nil when the route
// has never completed a page.
func (s *Store) Checkpoint(routeKey string) (*models.Checkpoint, error) {
	cp := &models.Checkpoint{RouteKey: routeKey}
	err := s.db.QueryRow(`
		SELECT last_page_index, updated_at FROM checkpoints WHERE route_key = $1
	`, routeKey).Scan(&cp.LastPageIndex, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load checkpoint %s: %w", routeKey, err)
	}
	return cp, nil
}

// Advance atomically records that pageIndex has been durably loaded for the
// route. Callers must only advance after a successful Load.
func (s *Store) Advance(routeKey string, pageIndex int) error {
	_, err := s.db.Exec(`
		INSERT INTO checkpoints (route_key, last_page_index, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (route_key) DO UPDATE SET
			last_page_index = EXCLUDED.last_page_index,
			updated_at      = NOW()
	`, routeKey, pageIndex)
	if err != nil {
		return fmt.Errorf("postgres: advance checkpoint %s to %d: %w", routeKey, pageIndex, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// mapLoadError classifies pq errors into the load error taxonomy.
func mapLoadError(busID string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		kind := models.ConstraintViolation
		if pqErr.Code == "23503" {
			kind = models.ForeignKeyViolation
		}
		return &models.LoadError{Kind: kind, BusID: busID, Err: err}
	}
	return fmt.Errorf("postgres: load bus %s: %w", busID, err)
}

func nullableDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func flagsString(flags []models.QualityFlag) string {
	if len(flags) == 0 {
		return ""
	}
	out := ""
	for i, f := range flags {
		if i > 0 {
			out += ","
		}
		out += string(f)
	}
	return out
}
