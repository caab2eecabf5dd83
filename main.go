package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"redbus-scraper/config"
	"redbus-scraper/models"
	"redbus-scraper/scraper/browser"
	"redbus-scraper/scraper/redbus"
	"redbus-scraper/services"
	"redbus-scraper/storage"
	"redbus-scraper/utils"
)

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()

	logger.Info("=== RedBus Review Pipeline starting ===")
	logger.Info("Config — routes: %d | concurrency: %d | rate: %dms | retries: %d",
		len(cfg.Routes), cfg.MaxConcurrency, cfg.RateLimitMs, cfg.MaxRetries)

	tasks, err := buildTasks(cfg.Routes)
	if err != nil {
		logger.Error("Invalid ROUTES config: %v", err)
		os.Exit(1)
	}

	store, err := storage.NewStore(cfg.DSN())
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL: %v", err)
		logger.Error("Make sure Docker is running: docker compose up -d")
		os.Exit(1)
	}
	defer store.Close()

	audit, err := storage.NewAuditStore(cfg.AuditDir)
	if err != nil {
		logger.Error("Failed to create audit store: %v", err)
		os.Exit(1)
	}

	chrome, err := browser.NewChrome(cfg.ChromeBin, cfg.Headless)
	if err != nil {
		logger.Error("Failed to start browser: %v", err)
		os.Exit(1)
	}
	defer chrome.Close()

	fetcher := redbus.NewFetcher(chrome, cfg, logger, audit)
	parser := redbus.NewParser()
	normalizer := services.NewNormalizer(logger)
	scorer := services.NewVaderScorer()

	orchestrator := services.NewOrchestrator(
		fetcher, parser, normalizer, scorer, store, store, audit, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.RunDeadlineMin > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.RunDeadlineMin)*time.Minute)
		defer cancel()
	}

	summary := orchestrator.Run(ctx, tasks)
	printSummary(summary, tasks)

	if summary.RoutesFailed > 0 && summary.RoutesDone == 0 && !summary.Cancelled {
		os.Exit(1)
	}
}

// buildTasks parses "Origin,Destination" route pairs into pending tasks.
func buildTasks(routes []string) ([]*models.RouteTask, error) {
	tasks := make([]*models.RouteTask, 0, len(routes))
	for _, r := range routes {
		parts := strings.SplitN(r, ",", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return nil, fmt.Errorf("route must be 'Origin,Destination', got %q", r)
		}
		tasks = append(tasks, &models.RouteTask{
			Origin:      strings.TrimSpace(parts[0]),
			Destination: strings.TrimSpace(parts[1]),
			Status:      models.TaskPending,
		})
	}
	return tasks, nil
}

func printSummary(s *models.RunSummary, tasks []*models.RouteTask) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  RUN SUMMARY\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	fmt.Printf("\033[1;33m  Traversal\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Routes done / failed : \033[1m%d / %d\033[0m\n", s.RoutesDone, s.RoutesFailed)
	fmt.Printf("  Pages fetched        : \033[1m%d\033[0m\n", s.PagesFetched)
	if s.Cancelled {
		fmt.Printf("  Run cancelled — all committed pages are checkpointed and resumable\n")
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  Records\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Listings parsed        : %d (inserted %d, updated %d)\n",
		s.ListingsParsed, s.Load.ListingsInserted, s.Load.ListingsUpdated)
	fmt.Printf("  Reviews parsed         : %d (inserted %d)\n", s.ReviewsParsed, s.Load.ReviewsInserted)
	fmt.Printf("  Duplicates skipped     : %d\n", s.Load.DuplicatesSkipped)
	fmt.Printf("  Rejected (no listing)  : %d\n", s.Load.Rejected)
	fmt.Printf("  Malformed reviews      : %d\n", s.ReviewsSkipped)
	fmt.Printf("  Quality flags attached : %d\n", s.QualityFlags)
	fmt.Println()

	if len(s.Errors) > 0 {
		fmt.Printf("\033[1;33m  Route errors\033[0m\n")
		fmt.Printf("  %s\n", thin)
		for _, e := range s.Errors {
			fmt.Printf("  \033[1;31m%s\033[0m (page %d): %s\n", e.RouteKey, e.Page, e.Err)
		}
		fmt.Println()
	}

	fmt.Printf("\033[1;33m  Tasks\033[0m\n")
	fmt.Printf("  %s\n", thin)
	for _, t := range tasks {
		fmt.Printf("  %-40s %s\n", t.Key(), t.Status)
	}

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("  Finished in %s\n\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
}
