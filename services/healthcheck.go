package services

import (
	"context"
	"time"

	"price_crew/models"
)

// Dispatcher is the part of the orchestrator the health check needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, productID string, codes []string, timeout time.Duration) (*models.AggregateReport, error)
}

// HealthcheckService probes every registered region with a product id that is
// known to exist everywhere.
type HealthcheckService struct {
	dispatcher Dispatcher
	codes      []string
	productID  string
	timeout    time.Duration
}

func NewHealthcheckService(dispatcher Dispatcher, codes []string, productID string, timeout time.Duration) *HealthcheckService {
	return &HealthcheckService{
		dispatcher: dispatcher,
		codes:      codes,
		productID:  productID,
		timeout:    timeout,
	}
}

// Check dispatches the probe product to all regions at once and maps each
// outcome to a health entry, in registry order. Only a success is healthy.
func (s *HealthcheckService) Check(ctx context.Context) ([]models.RegionHealth, error) {
	report, err := s.dispatcher.Dispatch(ctx, s.productID, s.codes, s.timeout)
	if report == nil {
		return nil, err
	}
	// ErrNoWorkersStarted still carries a full report; every region is
	// simply unhealthy.

	now := time.Now()
	results := make([]models.RegionHealth, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		h := models.RegionHealth{
			Region:    o.Region,
			Status:    models.Healthy,
			LatencyMs: o.ElapsedMs,
			CheckedAt: now,
		}
		if o.Status != models.StatusSuccess {
			h.Status = models.Unhealthy
			msg := o.ErrorText()
			if msg == "" {
				msg = "product " + string(o.Status)
			}
			h.ErrorMessage = &msg
		}
		results = append(results, h)
	}
	return results, nil
}
