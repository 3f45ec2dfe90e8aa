package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"price_crew/identity"
	"price_crew/models"
	"price_crew/registry"
)

type fakeRunner struct {
	report *models.AggregateReport
	err    error
	got    []string
}

func (f *fakeRunner) Run(ctx context.Context, productID string, codes []string) (*models.AggregateReport, error) {
	f.got = codes
	return f.report, f.err
}

type fakeReports struct {
	latest *models.AggregateReport
	prices *models.PriceRecord
	points []models.PricePoint
	alerts []models.PriceAlert
	limit  int
}

func (f *fakeReports) Latest(ctx context.Context, productID string) (*models.AggregateReport, error) {
	return f.latest, nil
}

func (f *fakeReports) Prices(ctx context.Context, productID string) (*models.PriceRecord, error) {
	return f.prices, nil
}

func (f *fakeReports) History(ctx context.Context, productID string, limit int) ([]models.PricePoint, error) {
	f.limit = limit
	return f.points, nil
}

func (f *fakeReports) RecentAlerts(limit int) ([]models.PriceAlert, error) {
	f.limit = limit
	return f.alerts, nil
}

type fakeHealth struct {
	results []models.RegionHealth
	err     error
}

func (f *fakeHealth) RunOnce(ctx context.Context) ([]models.RegionHealth, error) {
	return f.results, f.err
}

func (f *fakeHealth) LatestRegionHealth() ([]models.RegionHealth, error) {
	return f.results, nil
}

func testServer(t *testing.T, runner *fakeRunner, reports *fakeReports, health *fakeHealth) *httptest.Server {
	t.Helper()
	reg, err := registry.New([]models.Region{
		{Code: "eg", Currency: "EGP", Worker: models.WorkerRef{Command: "regionworker"}},
		{Code: "sa", Currency: "SAR", Worker: models.WorkerRef{Command: "regionworker"}},
	})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	svc := Services{Runner: runner, Reports: reports, Registry: reg}
	if health != nil {
		svc.Health = health
		svc.HealthLog = health
	}
	srv := httptest.NewServer(NewRouter(svc))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestDispatch_OK(t *testing.T) {
	runner := &fakeRunner{report: &models.AggregateReport{ProductID: "B08N5WRWNW", Status: models.BatchSucceeded}}
	srv := testServer(t, runner, &fakeReports{}, nil)

	resp := post(t, srv.URL+"/dispatch", `{"productId":"B08N5WRWNW","regions":["eg","sa"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body dispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Report == nil || body.Report.ProductID != "B08N5WRWNW" || body.PersistenceError != "" {
		t.Errorf("unexpected body %+v", body)
	}
	if len(runner.got) != 2 || runner.got[0] != "eg" {
		t.Errorf("regions not forwarded: %v", runner.got)
	}
}

func TestDispatch_ConfigurationError(t *testing.T) {
	runner := &fakeRunner{err: &models.ConfigurationError{Code: "xx", Reason: "unknown region"}}
	srv := testServer(t, runner, &fakeReports{}, nil)

	resp := post(t, srv.URL+"/dispatch", `{"productId":"B08N5WRWNW","regions":["xx"]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body errorBody
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Code != "xx" {
		t.Errorf("code = %q", body.Code)
	}
}

func TestDispatch_NoWorkersStarted(t *testing.T) {
	runner := &fakeRunner{report: &models.AggregateReport{Status: models.BatchFailed}, err: models.ErrNoWorkersStarted}
	srv := testServer(t, runner, &fakeReports{}, nil)

	resp := post(t, srv.URL+"/dispatch", `{"productId":"B08N5WRWNW"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestDispatch_PersistenceErrorKeepsReport(t *testing.T) {
	runner := &fakeRunner{
		report: &models.AggregateReport{ProductID: "B08N5WRWNW", Status: models.BatchPartial},
		err:    &models.PersistenceError{ProductID: "B08N5WRWNW", Cause: errors.New("db down")},
	}
	srv := testServer(t, runner, &fakeReports{}, nil)

	resp := post(t, srv.URL+"/dispatch", `{"productId":"B08N5WRWNW"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body dispatchResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Report == nil || !strings.Contains(body.PersistenceError, "db down") {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestDispatch_InvalidJSON(t *testing.T) {
	srv := testServer(t, &fakeRunner{}, &fakeReports{}, nil)
	resp := post(t, srv.URL+"/dispatch", `{"product":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestProductAndReport_NotFound(t *testing.T) {
	srv := testServer(t, &fakeRunner{}, &fakeReports{}, nil)
	if resp := get(t, srv.URL+"/products/B08N5WRWNW"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("product status = %d", resp.StatusCode)
	}
	if resp := get(t, srv.URL+"/reports/B08N5WRWNW"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("report status = %d", resp.StatusCode)
	}
}

func TestHistory_Limit(t *testing.T) {
	reports := &fakeReports{points: []models.PricePoint{{ProductID: "B08N5WRWNW", Region: "eg"}}}
	srv := testServer(t, &fakeRunner{}, reports, nil)

	resp := get(t, srv.URL+"/products/B08N5WRWNW/history?limit=5")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if reports.limit != 5 {
		t.Errorf("limit = %d", reports.limit)
	}
	if resp := get(t, srv.URL+"/products/B08N5WRWNW/history?limit=abc"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", resp.StatusCode)
	}
}

func TestAlerts(t *testing.T) {
	reports := &fakeReports{alerts: []models.PriceAlert{{
		ProductID:   "B08N5WRWNW",
		AlertType:   "decrease",
		PriceChange: models.PriceChange{Region: "eg", OldPrice: 100, NewPrice: 90, Change: -10, ChangePercent: -10, Alert: true},
	}}}
	srv := testServer(t, &fakeRunner{}, reports, nil)

	resp := get(t, srv.URL+"/alerts?limit=20")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0]["region"] != "eg" || got[0]["priceChangePercentage"] != -10.0 {
		t.Errorf("unexpected alerts %v", got)
	}
	if reports.limit != 20 {
		t.Errorf("limit = %d", reports.limit)
	}
}

func TestRegions(t *testing.T) {
	srv := testServer(t, &fakeRunner{}, &fakeReports{}, nil)
	resp := get(t, srv.URL+"/regions")
	var regions []models.Region
	if err := json.NewDecoder(resp.Body).Decode(&regions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(regions) != 2 || regions[0].Code != "eg" {
		t.Errorf("unexpected regions %+v", regions)
	}
}

func TestHealthEndpoints(t *testing.T) {
	health := &fakeHealth{results: []models.RegionHealth{{Region: "eg", Status: models.Healthy}}}
	srv := testServer(t, &fakeRunner{}, &fakeReports{}, health)

	if resp := get(t, srv.URL+"/health/regions"); resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
	if resp := get(t, srv.URL+"/health/regions/latest"); resp.StatusCode != http.StatusOK {
		t.Errorf("latest status = %d", resp.StatusCode)
	}
	if resp := get(t, srv.URL+"/healthz"); resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	health.err = models.ErrNoWorkersStarted
	if resp := get(t, srv.URL+"/health/regions"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("failing health status = %d", resp.StatusCode)
	}
}

type memWatchlist struct {
	ids []string
}

func (m *memWatchlist) Watchlist() ([]string, error) { return m.ids, nil }

func (m *memWatchlist) AddToWatchlist(id string) error {
	m.ids = append(m.ids, id)
	return nil
}

func (m *memWatchlist) RemoveFromWatchlist(id string) error {
	for i, v := range m.ids {
		if v == id {
			m.ids = append(m.ids[:i], m.ids[i+1:]...)
			break
		}
	}
	return nil
}

func TestWatchlist(t *testing.T) {
	reg, _ := registry.New([]models.Region{{Code: "eg", Currency: "EGP", Worker: models.WorkerRef{Command: "w"}}})
	list := &memWatchlist{}
	ids, err := identity.NewValidator("")
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	srv := httptest.NewServer(NewRouter(Services{
		Runner:    &fakeRunner{},
		Reports:   &fakeReports{},
		Registry:  reg,
		Watchlist: list,
		Validate:  ids.Validate,
	}))
	defer srv.Close()

	do := func(method, path string) int {
		req, _ := http.NewRequest(method, srv.URL+path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := do(http.MethodPut, "/watchlist/b08n5wrwnw"); code != http.StatusOK {
		t.Fatalf("add status = %d", code)
	}
	if len(list.ids) != 1 || list.ids[0] != "B08N5WRWNW" {
		t.Fatalf("expected normalized id, got %v", list.ids)
	}
	if code := do(http.MethodPut, "/watchlist/bad"); code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d", code)
	}
	if code := do(http.MethodDelete, "/watchlist/B08N5WRWNW"); code != http.StatusNoContent {
		t.Errorf("delete status = %d", code)
	}
	if len(list.ids) != 0 {
		t.Errorf("expected empty watchlist, got %v", list.ids)
	}
}

type memCommands struct {
	queued []models.CommandType
}

func (m *memCommands) QueueCommand(cmd models.CommandType, params []byte) (int64, error) {
	m.queued = append(m.queued, cmd)
	return int64(len(m.queued)), nil
}

func TestQueueCommand(t *testing.T) {
	reg, _ := registry.New([]models.Region{{Code: "eg", Currency: "EGP", Worker: models.WorkerRef{Command: "w"}}})
	cmds := &memCommands{}
	srv := httptest.NewServer(NewRouter(Services{
		Runner:   &fakeRunner{},
		Reports:  &fakeReports{},
		Registry: reg,
		Commands: cmds,
	}))
	defer srv.Close()

	resp := post(t, srv.URL+"/commands", `{"command":"dispatch","params":{"product_id":"B08N5WRWNW"}}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(cmds.queued) != 1 || cmds.queued[0] != models.CmdDispatch {
		t.Errorf("unexpected queue %v", cmds.queued)
	}

	if resp := post(t, srv.URL+"/commands", `{"command":"reboot"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown command status = %d", resp.StatusCode)
	}
}
