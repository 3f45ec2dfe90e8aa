package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"price_crew/models"
)

type fakeStore struct {
	upsertErr error
	records   []*models.PriceRecord
	history   []models.PricePoint
}

func (f *fakeStore) UpsertPrices(ctx context.Context, rec *models.PriceRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStore) GetPrices(ctx context.Context, productID string) (*models.PriceRecord, error) {
	if len(f.records) == 0 {
		return nil, nil
	}
	return f.records[len(f.records)-1], nil
}

func (f *fakeStore) AppendHistory(ctx context.Context, points []models.PricePoint) error {
	f.history = append(f.history, points...)
	return nil
}

func (f *fakeStore) History(ctx context.Context, productID string, limit int) ([]models.PricePoint, error) {
	return f.history, nil
}

type fakeCache struct {
	reports map[string]*models.AggregateReport
}

func (c *fakeCache) Put(ctx context.Context, report *models.AggregateReport) error {
	c.reports[report.ProductID] = report
	return nil
}

func (c *fakeCache) Get(ctx context.Context, productID string) (*models.AggregateReport, error) {
	return c.reports[productID], nil
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) PublishReport(ctx context.Context, report *models.AggregateReport) error {
	p.calls++
	return errors.New("topic not found")
}

func sampleReport() *models.AggregateReport {
	r := Aggregate("B08N5WRWNW", []models.WorkerOutcome{
		success("eg", "EGP", "Echo Dot", 2199),
		models.FailedOutcome("B08N5WRWNW", models.Region{Code: "sa", Currency: "SAR"}, models.FailureTimeout, models.MsgTimeoutExceeded, 5),
	})
	r.BatchID = uuid.New()
	return r
}

func TestBuildPriceRecord(t *testing.T) {
	rec := BuildPriceRecord(sampleReport())

	if len(rec.Regions) != 2 {
		t.Fatalf("expected 2 column groups, got %d", len(rec.Regions))
	}
	eg := rec.Regions["eg"]
	if eg.Price == nil || *eg.Price != 2199 || eg.Currency == nil || *eg.Currency != "EGP" {
		t.Errorf("unexpected eg group: %+v", eg)
	}
	sa := rec.Regions["sa"]
	if sa.Price != nil {
		t.Errorf("failed region must write a null price, got %v", *sa.Price)
	}
	if sa.Currency == nil || *sa.Currency != "SAR" {
		t.Errorf("failed region keeps its registry currency")
	}
	if rec.Title == nil || *rec.Title != "Echo Dot" {
		t.Errorf("unexpected title %v", rec.Title)
	}
}

func TestReportService_PersistError(t *testing.T) {
	store := &fakeStore{upsertErr: errors.New("connection refused")}
	svc := NewReportService(store, func(error) bool { return true })

	report := sampleReport()
	err := svc.Persist(context.Background(), report)

	var perr *models.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if !perr.Retryable || perr.ProductID != "B08N5WRWNW" {
		t.Errorf("unexpected error fields: %+v", perr)
	}
	if report.BestPrice == nil || *report.BestPrice != 2199 {
		t.Errorf("report must be left intact")
	}
}

func TestReportService_PublishBestEffort(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeCache{reports: map[string]*models.AggregateReport{}}
	pub := &failingPublisher{}
	svc := NewReportService(store, nil)
	svc.SetSinks(nil, cache, pub)

	report := sampleReport()
	if err := svc.Persist(context.Background(), report); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	svc.Publish(context.Background(), report)

	if len(store.history) != 2 {
		t.Errorf("expected 2 history rows, got %d", len(store.history))
	}
	if store.history[0].BatchID != report.BatchID.String() {
		t.Errorf("history row not tagged with batch id")
	}
	if pub.calls != 1 {
		t.Errorf("publisher should be called once, got %d", pub.calls)
	}

	latest, err := svc.Latest(context.Background(), "B08N5WRWNW")
	if err != nil || latest == nil || latest.BatchID != report.BatchID {
		t.Fatalf("Latest = %v, %v", latest, err)
	}
}

type memAlerts struct {
	productID string
	batchID   string
	saved     []models.PriceChange
}

func (m *memAlerts) SavePriceAlerts(productID, batchID string, alerts []models.PriceChange) error {
	m.productID, m.batchID = productID, batchID
	m.saved = append(m.saved, alerts...)
	return nil
}

func (m *memAlerts) RecentPriceAlerts(limit int) ([]models.PriceAlert, error) {
	var out []models.PriceAlert
	for _, c := range m.saved {
		out = append(out, models.PriceAlert{ProductID: m.productID, AlertType: c.Direction(), PriceChange: c})
	}
	return out, nil
}

func TestReportService_TracksPriceChangesAcrossRuns(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	alerts := &memAlerts{}
	svc := NewReportService(store, nil)
	svc.SetAlerts(DefaultAlertPercent, alerts)

	first := sampleReport()
	svc.TrackChanges(ctx, first)
	if len(first.PriceChanges) != 0 {
		t.Fatalf("first run has nothing to compare, got %+v", first.PriceChanges)
	}
	if err := svc.Persist(ctx, first); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	svc.Publish(ctx, first)

	second := Aggregate("B08N5WRWNW", []models.WorkerOutcome{success("eg", "EGP", "Echo Dot", 1899)})
	second.BatchID = uuid.New()
	svc.TrackChanges(ctx, second)

	if len(second.PriceChanges) != 1 {
		t.Fatalf("expected one change, got %+v", second.PriceChanges)
	}
	c := second.PriceChanges[0]
	if c.OldPrice != 2199 || c.NewPrice != 1899 || c.Change != -300 || !c.Alert {
		t.Errorf("unexpected change %+v", c)
	}

	svc.Publish(ctx, second)
	if len(alerts.saved) != 1 || alerts.batchID != second.BatchID.String() {
		t.Fatalf("alert not stored: %+v", alerts)
	}
	recent, err := svc.RecentAlerts(10)
	if err != nil || len(recent) != 1 || recent[0].AlertType != "decrease" {
		t.Errorf("RecentAlerts = %+v, %v", recent, err)
	}
}

func TestReportService_SmallChangeNotStoredAsAlert(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{records: []*models.PriceRecord{{
		ProductID: "B08N5WRWNW",
		Regions:   map[string]models.RegionPrice{"eg": {Price: floatPtr(2199), Currency: strPtr("EGP")}},
	}}}
	alerts := &memAlerts{}
	svc := NewReportService(store, nil)
	svc.SetAlerts(DefaultAlertPercent, alerts)

	report := Aggregate("B08N5WRWNW", []models.WorkerOutcome{success("eg", "EGP", "Echo Dot", 2150)})
	svc.TrackChanges(ctx, report)
	svc.Publish(ctx, report)

	if len(report.PriceChanges) != 1 || report.PriceChanges[0].Alert {
		t.Errorf("expected a change below the threshold, got %+v", report.PriceChanges)
	}
	if len(alerts.saved) != 0 {
		t.Errorf("changes below the threshold must not be stored as alerts")
	}
}
