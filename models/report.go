package models

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus classifies a whole dispatch batch.
type BatchStatus string

const (
	BatchSucceeded BatchStatus = "succeeded"
	BatchPartial   BatchStatus = "partial"
	BatchFailed    BatchStatus = "failed"
)

// AggregateReport is the reconciled view of one product across the regions of
// one dispatch batch. Outcomes keep the caller's region order.
type AggregateReport struct {
	BatchID            uuid.UUID       `json:"batchId"`
	ProductID          string          `json:"productId"`
	Title              *string         `json:"title"`
	ImageURL           *string         `json:"imageUrl"`
	Outcomes           []WorkerOutcome `json:"outcomes"`
	BestPrice          *float64        `json:"bestPrice,omitempty"`
	BestRegion         string          `json:"bestRegion,omitempty"`
	BestCurrency       string          `json:"bestCurrency,omitempty"`
	PriceSpreadPercent *float64        `json:"priceSpreadPercent,omitempty"`
	Status             BatchStatus     `json:"status"`
	SucceededCount     int             `json:"succeededCount"`
	FailedCount        int             `json:"failedCount"`
	UnavailableCount   int             `json:"unavailableCount"`
	StartedAt          time.Time       `json:"startedAt"`
	BatchElapsedMs     int64           `json:"batchElapsedMs"`
	// PriceChanges is filled by the run pipeline from the previously stored
	// row, not by aggregation.
	PriceChanges []PriceChange `json:"priceChanges,omitempty"`
}

// Outcome returns the outcome recorded for region.
func (r *AggregateReport) Outcome(region string) (WorkerOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Region == region {
			return o, true
		}
	}
	return WorkerOutcome{}, false
}

// Regions lists region codes in request order.
func (r *AggregateReport) Regions() []string {
	codes := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		codes[i] = o.Region
	}
	return codes
}

// Alerts returns the price changes that crossed the alert threshold.
func (r *AggregateReport) Alerts() []PriceChange {
	var alerts []PriceChange
	for _, c := range r.PriceChanges {
		if c.Alert {
			alerts = append(alerts, c)
		}
	}
	return alerts
}
