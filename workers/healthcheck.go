package workers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"price_crew/models"
	"price_crew/services"
)

type HealthStore interface {
	SaveRegionHealth(results []models.RegionHealth) error
}

// HealthcheckWorker runs the region health check on an interval or on demand
// and stores every result.
type HealthcheckWorker struct {
	service   *services.HealthcheckService
	store     HealthStore
	triggerCh chan struct{}
	logFunc   LogFunc
}

func NewHealthcheckWorker(service *services.HealthcheckService, store HealthStore) *HealthcheckWorker {
	return &HealthcheckWorker{
		service:   service,
		store:     store,
		triggerCh: make(chan struct{}, 1),
		logFunc:   NoOpLogger,
	}
}

func (w *HealthcheckWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run immediately
func (w *HealthcheckWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// RunOnce checks every region, stores the results and returns them.
func (w *HealthcheckWorker) RunOnce(ctx context.Context) ([]models.RegionHealth, error) {
	results, err := w.service.Check(ctx)
	if err != nil {
		log.Printf("Healthcheck: check failed: %v", err)
		w.logFunc(models.LogLevelError, "healthcheck", err.Error())
		return nil, err
	}

	if w.store != nil {
		if err := w.store.SaveRegionHealth(results); err != nil {
			log.Printf("Healthcheck: failed to store results: %v", err)
		}
	}

	var unhealthy []string
	for _, r := range results {
		if r.Status != models.Healthy {
			unhealthy = append(unhealthy, r.Region)
			log.Printf("Healthcheck: %s unhealthy after %dms: %s", r.Region, r.LatencyMs, *r.ErrorMessage)
		}
	}

	msg := fmt.Sprintf("%d/%d regions healthy", len(results)-len(unhealthy), len(results))
	level := models.LogLevelInfo
	if len(unhealthy) > 0 {
		msg += " (unhealthy: " + strings.Join(unhealthy, ", ") + ")"
		level = models.LogLevelWarn
	}
	log.Printf("Healthcheck: %s", msg)
	w.logFunc(level, "healthcheck", msg)

	return results, nil
}

// Run starts the healthcheck worker loop. A zero interval means the worker
// only runs when triggered.
func (w *HealthcheckWorker) Run(ctx context.Context, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("Healthcheck worker stopping")
			return
		case <-tick:
			w.RunOnce(ctx)
		case <-w.triggerCh:
			log.Println("Healthcheck worker triggered")
			w.RunOnce(ctx)
		}
	}
}
