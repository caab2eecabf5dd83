// Package redbus fetches and parses RedBus search result pages.
package redbus

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"redbus-scraper/config"
	"redbus-scraper/models"
	"redbus-scraper/scraper/browser"
	"redbus-scraper/utils"
)

const (
	baseURL         = "https://www.redbus.in"
	busItemSelector = ".bus-item"
)

// AuditSink receives raw page snapshots, independent of parse success.
type AuditSink interface {
	SavePage(page *models.RawPage) error
}

// Fetcher retrieves rendered search result pages for one route at a time.
// Rate limiting and retries are scoped to the fetcher instance, so each
// worker throttles independently.
type Fetcher struct {
	browser     browser.Browser
	limiter     *rate.Limiter
	retry       *utils.RetryPolicy
	audit       AuditSink
	logger      *utils.Logger
	waitTimeout time.Duration
	jitterMs    int
}

// NewFetcher wires a Fetcher over the given browser. audit may be nil.
func NewFetcher(b browser.Browser, cfg *config.Config, logger *utils.Logger, audit AuditSink) *Fetcher {
	interval := time.Duration(cfg.RateLimitMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Fetcher{
		browser: b,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		retry: &utils.RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Jitter:      0.25,
			Logger:      logger,
		},
		audit:       audit,
		logger:      logger,
		waitTimeout: time.Duration(cfg.WaitTimeoutSec) * time.Second,
		jitterMs:    cfg.RateLimitMs,
	}
}

// Fetch retrieves the page at the task's cursor. Transient failures are
// retried with backoff; a terminal FetchError means the route is exhausted
// (or blocked) and must not be retried.
func (f *Fetcher) Fetch(ctx context.Context, task models.RouteTask) (*models.RawPage, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	f.sleepJitter()

	pageURL := searchURL(task)
	f.logger.Debug("[redbus] Fetching %s", pageURL)

	var html string
	err := f.retry.Do(fmt.Sprintf("fetch %s page %d", task.Key(), task.Page), func() error {
		if err := f.browser.Navigate(pageURL); err != nil {
			return err
		}

		if err := f.browser.WaitFor(busItemSelector, f.waitTimeout); err != nil {
			// The listing container never appeared: either the route is
			// exhausted, we hit a challenge page, or the render flaked.
			doc, derr := f.browser.HTML()
			if derr != nil {
				return err
			}
			if reason, terminal := terminalSignal(doc); terminal {
				return utils.Permanent(&models.FetchError{
					Kind:     models.FetchTerminal,
					RouteKey: task.Key(),
					Page:     task.Page,
					Reason:   reason,
				})
			}
			return err
		}

		if err := f.browser.ScrollToBottom(); err != nil {
			return err
		}

		doc, err := f.browser.HTML()
		if err != nil {
			return err
		}
		html = doc
		return nil
	})
	if err != nil {
		var fe *models.FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, &models.FetchError{
			Kind:     models.FetchTransient,
			RouteKey: task.Key(),
			Page:     task.Page,
			Reason:   "retries exhausted",
			Err:      err,
		}
	}

	page := &models.RawPage{
		RouteKey:    task.Key(),
		Origin:      task.Origin,
		Destination: task.Destination,
		PageIndex:   task.Page,
		HTML:        html,
		ByteSize:    len(html),
		FetchedAt:   time.Now(),
	}

	if f.audit != nil {
		if err := f.audit.SavePage(page); err != nil {
			// Snapshots are best-effort and never fail the fetch.
			f.logger.Warn("[redbus] Audit snapshot failed for %s page %d: %v",
				page.RouteKey, page.PageIndex, err)
		}
	}

	return page, nil
}

// sleepJitter applies a randomized delay before each request on top of the
// limiter's fixed minimum interval.
func (f *Fetcher) sleepJitter() {
	if f.jitterMs <= 0 {
		return
	}
	time.Sleep(time.Duration(rand.Intn(f.jitterMs)) * time.Millisecond)
}

// searchURL builds the search results URL for the task's cursor. The page
// query parameter is 1-based on the site; cursors are 0-based.
func searchURL(t models.RouteTask) string {
	return fmt.Sprintf("%s/search?fromCity=%s&toCity=%s&page=%d",
		baseURL,
		url.QueryEscape(strings.TrimSpace(t.Origin)),
		url.QueryEscape(strings.TrimSpace(t.Destination)),
		t.Page+1)
}

// terminalSignal inspects a page without a listing container and decides
// whether it is a structural end-of-route signal.
func terminalSignal(doc string) (string, bool) {
	lower := strings.ToLower(doc)
	switch {
	case strings.Contains(lower, "captcha") || strings.Contains(lower, "unusual traffic"):
		return "anti-automation challenge", true
	case strings.Contains(lower, "no buses found") || strings.Contains(lower, "oops-wrapper"):
		return "end of results", true
	case !strings.Contains(lower, "bus-item"):
		return "end of results", true
	}
	return "", false
}
