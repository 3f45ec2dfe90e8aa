// Package notify announces finished aggregate reports to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"price_crew/models"
)

// PubSubPublisher publishes a JSON summary of every report to a topic.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher wraps topic. A nil topic makes every publish a no-op.
func NewPubSubPublisher(topic *pubsub.Topic) *PubSubPublisher {
	return &PubSubPublisher{topic: topic}
}

// ReportSummary is the message body. Consumers fetch the full report from
// the API or the archive when they need per-region detail.
type ReportSummary struct {
	BatchID            string               `json:"batchId"`
	ProductID          string               `json:"productId"`
	Title              *string              `json:"title,omitempty"`
	Status             models.BatchStatus   `json:"status"`
	BestPrice          *float64             `json:"bestPrice,omitempty"`
	BestRegion         string               `json:"bestRegion,omitempty"`
	BestCurrency       string               `json:"bestCurrency,omitempty"`
	PriceSpreadPercent *float64             `json:"priceSpreadPercent,omitempty"`
	SucceededCount     int                  `json:"succeededCount"`
	FailedCount        int                  `json:"failedCount"`
	UnavailableCount   int                  `json:"unavailableCount"`
	PriceChanges       []models.PriceChange `json:"priceChanges,omitempty"`
}

func Summarize(report *models.AggregateReport) ReportSummary {
	return ReportSummary{
		BatchID:            report.BatchID.String(),
		ProductID:          report.ProductID,
		Title:              report.Title,
		Status:             report.Status,
		BestPrice:          report.BestPrice,
		BestRegion:         report.BestRegion,
		BestCurrency:       report.BestCurrency,
		PriceSpreadPercent: report.PriceSpreadPercent,
		SucceededCount:     report.SucceededCount,
		FailedCount:        report.FailedCount,
		UnavailableCount:   report.UnavailableCount,
		PriceChanges:       report.PriceChanges,
	}
}

// Attributes lets subscribers filter on status and on price alerts without
// decoding the body.
func Attributes(report *models.AggregateReport) map[string]string {
	attrs := map[string]string{
		"product_id":  report.ProductID,
		"status":      string(report.Status),
		"price_alert": "false",
	}
	if alerts := report.Alerts(); len(alerts) > 0 {
		regions := make([]string, len(alerts))
		for i, a := range alerts {
			regions[i] = a.Region
		}
		attrs["price_alert"] = "true"
		attrs["alert_regions"] = strings.Join(regions, ",")
	}
	return attrs
}

func (p *PubSubPublisher) PublishReport(ctx context.Context, report *models.AggregateReport) error {
	if p.topic == nil {
		return nil
	}

	data, err := json.Marshal(Summarize(report))
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: Attributes(report),
	}).Get(ctx)
	return err
}

// NoopPublisher is used when no topic is configured.
type NoopPublisher struct{}

func (n *NoopPublisher) PublishReport(ctx context.Context, report *models.AggregateReport) error {
	return nil
}
