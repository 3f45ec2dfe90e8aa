package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"
	"price_crew/identity"
	"price_crew/models"
)

// Runner runs a full dispatch for one product.
type Runner interface {
	Run(ctx context.Context, productID string, codes []string) (*models.AggregateReport, error)
	IsPaused() bool
}

type WatchlistSource interface {
	Watchlist() ([]string, error)
}

// RefreshWorker re-scrapes every watched product across all regions, paced so
// the marketplaces see a steady trickle rather than a burst.
type RefreshWorker struct {
	runner    Runner
	source    WatchlistSource
	static    []string
	limiter   *rate.Limiter
	triggerCh chan bool
	logFunc   LogFunc
}

func NewRefreshWorker(runner Runner, source WatchlistSource, static []string, perMinute int) *RefreshWorker {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &RefreshWorker{
		runner:    runner,
		source:    source,
		static:    static,
		limiter:   rate.NewLimiter(limit, 1),
		triggerCh: make(chan bool, 1),
		logFunc:   NoOpLogger,
	}
}

func (w *RefreshWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger runs a refresh now, even while scheduled refreshes are paused.
func (w *RefreshWorker) Trigger() {
	w.send(true)
}

// TriggerScheduled runs a refresh now unless refreshes are paused.
func (w *RefreshWorker) TriggerScheduled() {
	w.send(false)
}

func (w *RefreshWorker) send(force bool) {
	select {
	case w.triggerCh <- force:
	default:
	}
}

// ProductIDs returns the static and stored watchlist, normalized and without
// duplicates.
func (w *RefreshWorker) ProductIDs() []string {
	ids := append([]string(nil), w.static...)
	if w.source != nil {
		stored, err := w.source.Watchlist()
		if err != nil {
			log.Printf("Refresh: failed to load watchlist: %v", err)
		}
		ids = append(ids, stored...)
	}

	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		id = identity.NormalizeProductID(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// RunOnce refreshes every watched product and returns how many runs
// completed with a report.
func (w *RefreshWorker) RunOnce(ctx context.Context, force bool) int {
	if !force && w.runner.IsPaused() {
		log.Println("Refresh: paused, skipping scheduled run")
		return 0
	}

	ids := w.ProductIDs()
	if len(ids) == 0 {
		return 0
	}
	log.Printf("Refresh: %d products", len(ids))

	done := 0
	for _, id := range ids {
		if err := w.limiter.Wait(ctx); err != nil {
			log.Printf("Refresh: stopped: %v", err)
			break
		}

		report, err := w.runner.Run(ctx, id, nil)
		var perr *models.PersistenceError
		switch {
		case report == nil:
			log.Printf("Refresh: %s rejected: %v", id, err)
			continue
		case errors.As(err, &perr):
			log.Printf("Refresh: %s not persisted (retryable=%v): %v", id, perr.Retryable, perr.Cause)
		case err != nil:
			log.Printf("Refresh: %s: %v", id, err)
		}
		done++
	}

	w.logFunc(models.LogLevelInfo, "refresh", fmt.Sprintf("Refreshed %d/%d watched products", done, len(ids)))
	return done
}

// Run starts the refresh loop. A zero interval means trigger-only.
func (w *RefreshWorker) Run(ctx context.Context, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("Refresh worker stopping")
			return
		case <-tick:
			w.RunOnce(ctx, false)
		case force := <-w.triggerCh:
			w.RunOnce(ctx, force)
		}
	}
}
