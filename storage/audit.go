package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jszwec/csvutil"

	"redbus-scraper/models"
)

// AuditStore keeps best-effort snapshots of what was scraped: raw HTML per
// fetched page, and a CSV of the raw parsed records per run. Snapshots are
// never treated as queryable data.
type AuditStore struct {
	mu  sync.Mutex
	dir string
}

// NewAuditStore creates the snapshot directory if needed.
func NewAuditStore(dir string) (*AuditStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("audit: create dir %q: %w", dir, err)
	}
	return &AuditStore{dir: dir}, nil
}

// SavePage writes the raw page bytes, keyed by route and page index.
// Overwrites on re-fetch: the snapshot reflects the latest fetch.
func (a *AuditStore) SavePage(page *models.RawPage) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := fmt.Sprintf("%s_page%03d.html", sanitizeKey(page.RouteKey), page.PageIndex)
	path := filepath.Join(a.dir, name)
	if err := os.WriteFile(path, []byte(page.HTML), 0644); err != nil {
		return fmt.Errorf("audit: write page snapshot %q: %w", path, err)
	}
	return nil
}

type rawRow struct {
	RouteKey string `csv:"route_key"`
	Page     int    `csv:"page"`
	models.ListingRecord
}

// SaveRecords appends the page's raw listing records to the run's CSV
// snapshot, header included on first write.
func (a *AuditStore) SaveRecords(path string, page *models.RawPage, listings []models.ListingRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows := make([]rawRow, len(listings))
	for i, l := range listings {
		rows[i] = rawRow{RouteKey: page.RouteKey, Page: page.PageIndex, ListingRecord: l}
	}

	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("audit: create csv dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("audit: open csv %q: %w", path, err)
	}
	defer f.Close()

	data, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("audit: marshal csv: %w", err)
	}
	if !fresh {
		// Drop the header line on append.
		if idx := strings.IndexByte(string(data), '\n'); idx >= 0 {
			data = data[idx+1:]
		}
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("audit: write csv: %w", err)
	}
	return nil
}

func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '\\', ' ':
			return '_'
		}
		return r
	}, key)
}
