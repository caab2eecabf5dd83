package services

import (
	"context"
	"sync"
	"time"

	"redbus-scraper/config"
	"redbus-scraper/models"
	"redbus-scraper/storage"
	"redbus-scraper/utils"
)

// PageFetcher retrieves the rendered page at a task's cursor.
type PageFetcher interface {
	Fetch(ctx context.Context, task models.RouteTask) (*models.RawPage, error)
}

// PageParser extracts raw records from a fetched page.
type PageParser interface {
	Parse(page *models.RawPage) (*models.ParseResult, error)
}

// RecordAuditor snapshots raw parsed records, best effort.
type RecordAuditor interface {
	SaveRecords(path string, page *models.RawPage, listings []models.ListingRecord) error
}

// Orchestrator drives the pipeline across a work set of routes under a
// concurrency budget. Each route is processed by exactly one worker, pages
// strictly in order: page N+1 is not fetched until page N is loaded and
// checkpointed.
type Orchestrator struct {
	fetcher     PageFetcher
	parser      PageParser
	normalizer  *Normalizer
	scorer      Scorer
	loader      storage.Loader
	checkpoints storage.CheckpointStore
	auditor     RecordAuditor
	csvPath     string
	maxPages    int
	pool        *utils.WorkerPool
	keys        *utils.KeySet
	logger      *utils.Logger

	mu      sync.Mutex
	summary *models.RunSummary
}

// NewOrchestrator wires the pipeline. auditor may be nil.
func NewOrchestrator(
	fetcher PageFetcher,
	parser PageParser,
	normalizer *Normalizer,
	scorer Scorer,
	loader storage.Loader,
	checkpoints storage.CheckpointStore,
	auditor RecordAuditor,
	cfg *config.Config,
	logger *utils.Logger,
) *Orchestrator {
	return &Orchestrator{
		fetcher:     fetcher,
		parser:      parser,
		normalizer:  normalizer,
		scorer:      scorer,
		loader:      loader,
		checkpoints: checkpoints,
		auditor:     auditor,
		csvPath:     cfg.RawCSVPath,
		maxPages:    cfg.MaxPagesPerRoute,
		pool:        utils.NewWorkerPool(cfg.MaxConcurrency),
		keys:        utils.NewKeySet(),
		logger:      logger,
	}
}

// Run processes the work set and returns the run summary. Cancellation is a
// normal resumable stopping point: in-flight page loads complete, no new
// fetch starts.
func (o *Orchestrator) Run(ctx context.Context, tasks []*models.RouteTask) *models.RunSummary {
	summary := &models.RunSummary{StartedAt: time.Now()}
	o.mu.Lock()
	o.summary = summary
	o.mu.Unlock()

	for _, task := range tasks {
		task := task
		o.pool.Submit(func() {
			o.runRoute(ctx, task)
		})
	}
	o.pool.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	summary.FinishedAt = time.Now()
	if ctx.Err() != nil {
		summary.Cancelled = true
	}
	return summary
}

func (o *Orchestrator) runRoute(ctx context.Context, task *models.RouteTask) {
	key := task.Key()
	if !o.keys.Claim(key) {
		o.logger.Warn("[orchestrator] Duplicate route %s in work set — skipped", key)
		return
	}
	task.Status = models.TaskInProgress

	cp, err := o.checkpoints.Checkpoint(key)
	if err != nil {
		o.failRoute(task, task.Page, err)
		return
	}
	start := 0
	if cp != nil {
		start = cp.LastPageIndex + 1
		o.logger.Info("[orchestrator] Resuming %s from page %d", key, start)
	}

	for page := start; ; page++ {
		if o.maxPages > 0 && page-start >= o.maxPages {
			// The route is capped, not exhausted: leave it pending so the
			// next run resumes from the checkpoint, exactly like a
			// cancellation stop.
			o.logger.Info("[orchestrator] %s paused at page cap (%d pages this run)", key, o.maxPages)
			task.Status = models.TaskPending
			return
		}

		select {
		case <-ctx.Done():
			// Resumable stop, not a failure: the checkpoint already covers
			// everything persisted so far.
			task.Status = models.TaskPending
			return
		default:
		}

		t := *task
		t.Page = page
		rawPage, err := o.fetcher.Fetch(ctx, t)
		if err != nil {
			if models.IsTerminalFetch(err) {
				o.logger.Info("[orchestrator] %s finished at page %d: %v", key, page, err)
				o.doneRoute(task)
				return
			}
			if ctx.Err() != nil {
				task.Status = models.TaskPending
				return
			}
			o.failRoute(task, page, err)
			return
		}

		result, err := o.parser.Parse(rawPage)
		if err != nil {
			o.failRoute(task, page, err)
			return
		}

		if o.auditor != nil && o.csvPath != "" {
			if err := o.auditor.SaveRecords(o.csvPath, rawPage, result.Listings); err != nil {
				o.logger.Warn("[orchestrator] Record snapshot failed for %s page %d: %v", key, page, err)
			}
		}

		listings, reviews, flagged, rejected := o.transform(rawPage, result)

		// The load and checkpoint advance must complete even if the run is
		// cancelled mid-page, or resume could double-count the page.
		loadCtx := context.WithoutCancel(ctx)
		report, err := o.loader.Load(loadCtx, listings, reviews)

		o.mu.Lock()
		o.summary.PagesFetched++
		o.summary.ListingsParsed += len(result.Listings)
		o.summary.ReviewsParsed += len(result.Reviews)
		o.summary.ReviewsSkipped += result.SkippedReviews
		o.summary.QualityFlags += flagged
		o.summary.Load.Rejected += rejected
		o.summary.Load.Merge(report)
		o.mu.Unlock()

		if err != nil {
			o.failRoute(task, page, err)
			return
		}

		if err := o.checkpoints.Advance(key, page); err != nil {
			o.failRoute(task, page, err)
			return
		}

		task.Page = page
		o.logger.Info("[orchestrator] %s page %d loaded (%d listings, %d reviews)",
			key, page, len(listings), len(reviews))
	}
}

// transform normalizes and scores one page's records. Reviews that cannot
// be tied back to a listing on the page are rejected, not silently dropped.
func (o *Orchestrator) transform(page *models.RawPage, result *models.ParseResult) (
	listings []*models.BusListing, reviews []*models.Review, flagged, rejected int) {

	busIDBySource := make(map[string]string, len(result.Listings))
	for _, rec := range result.Listings {
		listing, ok := o.normalizer.NormalizeListing(rec, page)
		if !ok {
			continue
		}
		if rec.SourceBusID != "" {
			busIDBySource[rec.SourceBusID] = listing.BusID
		}
		flagged += len(listing.Flags)
		listings = append(listings, listing)
	}

	for _, rec := range result.Reviews {
		busID, ok := busIDBySource[rec.SourceBusID]
		if !ok {
			rejected++
			continue
		}
		review, ok := o.normalizer.NormalizeReview(rec, busID)
		if !ok {
			continue
		}
		sentiment := o.scorer.Score(review.Text)
		review.SentimentLabel = sentiment.Label
		review.SentimentScore = sentiment.Value
		flagged += len(review.Flags)
		reviews = append(reviews, review)
	}
	return listings, reviews, flagged, rejected
}

func (o *Orchestrator) doneRoute(task *models.RouteTask) {
	task.Status = models.TaskDone
	o.mu.Lock()
	o.summary.RoutesDone++
	o.mu.Unlock()
}

func (o *Orchestrator) failRoute(task *models.RouteTask, page int, err error) {
	task.Status = models.TaskFailed
	o.logger.Error("[orchestrator] Route %s failed at page %d: %v", task.Key(), page, err)
	o.mu.Lock()
	o.summary.RoutesFailed++
	o.summary.Errors = append(o.summary.Errors, models.RouteError{
		RouteKey: task.Key(),
		Page:     page,
		Err:      err.Error(),
	})
	o.mu.Unlock()
}
