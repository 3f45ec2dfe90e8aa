package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"price_crew/models"
	"price_crew/registry"
)

type Runner interface {
	Run(ctx context.Context, productID string, codes []string) (*models.AggregateReport, error)
}

type Reports interface {
	Latest(ctx context.Context, productID string) (*models.AggregateReport, error)
	Prices(ctx context.Context, productID string) (*models.PriceRecord, error)
	History(ctx context.Context, productID string, limit int) ([]models.PricePoint, error)
	RecentAlerts(limit int) ([]models.PriceAlert, error)
}

type HealthChecker interface {
	RunOnce(ctx context.Context) ([]models.RegionHealth, error)
}

type HealthHistory interface {
	LatestRegionHealth() ([]models.RegionHealth, error)
}

type Watchlist interface {
	Watchlist() ([]string, error)
	AddToWatchlist(productID string) error
	RemoveFromWatchlist(productID string) error
}

type CommandQueue interface {
	QueueCommand(cmd models.CommandType, params []byte) (int64, error)
}

// Services holds everything the router serves. Health, HealthLog, Watchlist
// and Commands may be nil.
type Services struct {
	Runner    Runner
	Reports   Reports
	Registry  *registry.Registry
	Health    HealthChecker
	HealthLog HealthHistory
	Watchlist Watchlist
	Commands  CommandQueue
	// Validate normalizes product ids added to the watchlist.
	Validate func(id string) (string, error)
}

type dispatchRequest struct {
	ProductID string   `json:"productId"`
	Regions   []string `json:"regions"`
}

type dispatchResponse struct {
	Report           *models.AggregateReport `json:"report"`
	PersistenceError string                  `json:"persistenceError,omitempty"`
}

type commandRequest struct {
	Command models.CommandType   `json:"command"`
	Params  models.CommandParams `json:"params"`
}

type handlers struct {
	svc Services
}

// NewRouter builds the HTTP surface over the orchestrator and its stores.
func NewRouter(svc Services) http.Handler {
	h := &handlers{svc: svc}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /dispatch", h.dispatch)
	mux.HandleFunc("GET /products/{id}", h.product)
	mux.HandleFunc("GET /products/{id}/history", h.history)
	mux.HandleFunc("GET /reports/{id}", h.report)
	mux.HandleFunc("GET /alerts", h.alerts)
	mux.HandleFunc("GET /regions", h.regions)
	mux.HandleFunc("GET /health/regions", h.checkHealth)
	mux.HandleFunc("GET /health/regions/latest", h.latestHealth)
	mux.HandleFunc("GET /healthz", healthz)

	if svc.Watchlist != nil {
		mux.HandleFunc("GET /watchlist", h.listWatchlist)
		mux.HandleFunc("PUT /watchlist/{id}", h.addWatchlist)
		mux.HandleFunc("DELETE /watchlist/{id}", h.removeWatchlist)
	}

	if svc.Commands != nil {
		mux.HandleFunc("POST /commands", h.queueCommand)
	}

	return logRequests(mux)
}

func (h *handlers) dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := h.svc.Runner.Run(r.Context(), req.ProductID, req.Regions)
	var ce *models.ConfigurationError
	var pe *models.PersistenceError
	switch {
	case errors.As(err, &ce):
		writeError(w, http.StatusBadRequest, err, ce.Code)
	case errors.Is(err, models.ErrNoWorkersStarted):
		writeJSON(w, http.StatusServiceUnavailable, struct {
			errorBody
			Report *models.AggregateReport `json:"report"`
		}{errorBody{Error: err.Error()}, report})
	case errors.As(err, &pe):
		writeJSON(w, http.StatusOK, dispatchResponse{Report: report, PersistenceError: pe.Error()})
	case err != nil:
		writeError(w, http.StatusInternalServerError, err, "")
	default:
		writeJSON(w, http.StatusOK, dispatchResponse{Report: report})
	}
}

func (h *handlers) product(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Reports.Prices(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, errors.New("product not found"), r.PathValue("id"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// queryLimit reads ?limit=N. Zero means the store default.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, errors.New("invalid limit"), s)
		return 0, false
	}
	return n, true
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	points, err := h.svc.Reports.History(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	if points == nil {
		points = []models.PricePoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

func (h *handlers) alerts(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	alerts, err := h.svc.Reports.RecentAlerts(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	if alerts == nil {
		alerts = []models.PriceAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *handlers) report(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Reports.Latest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, errors.New("no cached report"), r.PathValue("id"))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) regions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Registry.Regions())
}

func (h *handlers) checkHealth(w http.ResponseWriter, r *http.Request) {
	if h.svc.Health == nil {
		writeError(w, http.StatusNotImplemented, errors.New("health check not configured"), "")
		return
	}
	results, err := h.svc.Health.RunOnce(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err, "")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *handlers) latestHealth(w http.ResponseWriter, r *http.Request) {
	if h.svc.HealthLog == nil {
		writeJSON(w, http.StatusOK, []models.RegionHealth{})
		return
	}
	results, err := h.svc.HealthLog.LatestRegionHealth()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	if results == nil {
		results = []models.RegionHealth{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *handlers) listWatchlist(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.Watchlist.Watchlist()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *handlers) addWatchlist(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if h.svc.Validate != nil {
		normalized, err := h.svc.Validate(id)
		if err != nil {
			writeError(w, http.StatusBadRequest, err, id)
			return
		}
		id = normalized
	}
	if err := h.svc.Watchlist.AddToWatchlist(id); err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"productId": id})
}

func (h *handlers) removeWatchlist(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Watchlist.RemoveFromWatchlist(r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) queueCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	switch req.Command {
	case models.CmdDispatch, models.CmdHealthCheck, models.CmdRefresh, models.CmdPause, models.CmdResume:
	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown command"), string(req.Command))
		return
	}

	params, err := json.Marshal(req.Params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	id, err := h.svc.Commands.QueueCommand(req.Command, params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int64{"id": id})
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `{"status":"ok"}`)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if r.URL.Path != "/healthz" {
			log.Printf("HTTP: %s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
		}
	})
}
