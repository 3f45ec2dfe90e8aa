package services

import (
	"context"
	"log"

	"price_crew/models"
)

// PriceStore is the per-product price row store plus its history table.
type PriceStore interface {
	UpsertPrices(ctx context.Context, rec *models.PriceRecord) error
	GetPrices(ctx context.Context, productID string) (*models.PriceRecord, error)
	AppendHistory(ctx context.Context, points []models.PricePoint) error
	History(ctx context.Context, productID string, limit int) ([]models.PricePoint, error)
}

// Archiver keeps a durable copy of every report.
type Archiver interface {
	Archive(ctx context.Context, report *models.AggregateReport) (string, error)
}

// ReportCache holds the latest report per product. Get returns nil, nil on a
// miss.
type ReportCache interface {
	Put(ctx context.Context, report *models.AggregateReport) error
	Get(ctx context.Context, productID string) (*models.AggregateReport, error)
}

// Publisher notifies downstream consumers of a finished report.
type Publisher interface {
	PublishReport(ctx context.Context, report *models.AggregateReport) error
}

// AlertStore records price changes that crossed the alert threshold.
type AlertStore interface {
	SavePriceAlerts(productID, batchID string, alerts []models.PriceChange) error
	RecentPriceAlerts(limit int) ([]models.PriceAlert, error)
}

// ReportService persists aggregate reports and fans them out to the optional
// sinks.
type ReportService struct {
	store     PriceStore
	retryable func(error) bool

	archive   Archiver
	cache     ReportCache
	publisher Publisher

	alerts       AlertStore
	alertPercent float64
}

func NewReportService(store PriceStore, retryable func(error) bool) *ReportService {
	if retryable == nil {
		retryable = func(error) bool { return false }
	}
	return &ReportService{store: store, retryable: retryable, alertPercent: DefaultAlertPercent}
}

// SetAlerts sets the alert threshold in percent (0 disables alerts) and an
// optional store for alerts.
func (s *ReportService) SetAlerts(percent float64, store AlertStore) {
	s.alertPercent = percent
	s.alerts = store
}

// TrackChanges compares the report with the stored row and records the
// per-region price changes on the report. It must run before Persist
// overwrites the row. A read failure leaves the report without changes.
func (s *ReportService) TrackChanges(ctx context.Context, report *models.AggregateReport) {
	previous, err := s.store.GetPrices(ctx, report.ProductID)
	if err != nil {
		log.Printf("Report: could not read previous prices for %s: %v", report.ProductID, err)
		return
	}
	report.PriceChanges = ComparePrices(previous, report, s.alertPercent)
}

// SetSinks wires the best-effort destinations. Any of them may be nil.
func (s *ReportService) SetSinks(archive Archiver, cache ReportCache, publisher Publisher) {
	s.archive = archive
	s.cache = cache
	s.publisher = publisher
}

// Persist upserts the report's price row. The report itself is never modified.
func (s *ReportService) Persist(ctx context.Context, report *models.AggregateReport) error {
	rec := BuildPriceRecord(report)
	if err := s.store.UpsertPrices(ctx, rec); err != nil {
		return &models.PersistenceError{
			ProductID: report.ProductID,
			Retryable: s.retryable(err),
			Cause:     err,
		}
	}
	return nil
}

// Publish appends history and hands the report to every configured sink.
// Failures are logged and never returned.
func (s *ReportService) Publish(ctx context.Context, report *models.AggregateReport) {
	if err := s.store.AppendHistory(ctx, HistoryPoints(report)); err != nil {
		log.Printf("Report: history append failed for %s: %v", report.ProductID, err)
	}
	if alerts := report.Alerts(); len(alerts) > 0 {
		for _, a := range alerts {
			log.Printf("Report: price %s for %s in %s: %.2f -> %.2f %s (%+.1f%%)",
				a.Direction(), report.ProductID, a.Region, a.OldPrice, a.NewPrice, a.Currency, a.ChangePercent)
		}
		if s.alerts != nil {
			if err := s.alerts.SavePriceAlerts(report.ProductID, report.BatchID.String(), alerts); err != nil {
				log.Printf("Report: saving price alerts failed for %s: %v", report.ProductID, err)
			}
		}
	}
	if s.archive != nil {
		if key, err := s.archive.Archive(ctx, report); err != nil {
			log.Printf("Report: archive failed for %s: %v", report.ProductID, err)
		} else {
			log.Printf("Report: archived %s to %s", report.ProductID, key)
		}
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, report); err != nil {
			log.Printf("Report: cache put failed for %s: %v", report.ProductID, err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishReport(ctx, report); err != nil {
			log.Printf("Report: publish failed for %s: %v", report.ProductID, err)
		}
	}
}

// Latest returns the cached report for productID, or nil when there is none.
func (s *ReportService) Latest(ctx context.Context, productID string) (*models.AggregateReport, error) {
	if s.cache == nil {
		return nil, nil
	}
	return s.cache.Get(ctx, productID)
}

func (s *ReportService) Prices(ctx context.Context, productID string) (*models.PriceRecord, error) {
	return s.store.GetPrices(ctx, productID)
}

// RecentAlerts returns the newest stored alerts, or nothing without a store.
func (s *ReportService) RecentAlerts(limit int) ([]models.PriceAlert, error) {
	if s.alerts == nil {
		return nil, nil
	}
	return s.alerts.RecentPriceAlerts(limit)
}

func (s *ReportService) History(ctx context.Context, productID string, limit int) ([]models.PricePoint, error) {
	return s.store.History(ctx, productID, limit)
}

// BuildPriceRecord maps a report onto the column groups of the regions it
// covers. A region without a usable price gets a null price so stale values do
// not survive a failed scrape; title and image are left for the store to
// merge.
func BuildPriceRecord(report *models.AggregateReport) *models.PriceRecord {
	rec := &models.PriceRecord{
		ProductID: report.ProductID,
		Title:     report.Title,
		ImageURL:  report.ImageURL,
		Regions:   make(map[string]models.RegionPrice, len(report.Outcomes)),
	}
	for _, o := range report.Outcomes {
		rp := models.RegionPrice{
			Title:    o.Title,
			ImageURL: o.ImageURL,
		}
		if o.Priced() {
			price := *o.Price
			rp.Price = &price
		}
		if o.Currency != "" {
			currency := o.Currency
			rp.Currency = &currency
		}
		rec.Regions[o.Region] = rp
	}
	return rec
}

// HistoryPoints flattens a report into one history row per outcome.
func HistoryPoints(report *models.AggregateReport) []models.PricePoint {
	points := make([]models.PricePoint, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		points = append(points, models.PricePoint{
			ProductID:    report.ProductID,
			Region:       o.Region,
			Status:       o.Status,
			Price:        o.Price,
			Currency:     o.Currency,
			Seller:       o.Seller,
			DataSource:   o.DataSource,
			ErrorMessage: o.ErrorMessage,
			ElapsedMs:    o.ElapsedMs,
			BatchID:      report.BatchID.String(),
			ScrapedAt:    report.StartedAt,
		})
	}
	return points
}
