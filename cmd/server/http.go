package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"hm-tracker/internal/app"
	"hm-tracker/internal/domain"
	"hm-tracker/internal/observability"
	"hm-tracker/internal/operation"
	"hm-tracker/internal/scheduler"
)

// handlers serves the HTTP endpoints of the service.
type handlers struct {
	components *app.Components
	stores     *app.Stores
	scheduler  *scheduler.Scheduler // nil in tests
	logger     *log.Logger
}

func newHTTPServer(addr string, h *handlers) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func isServerClosed(err error) bool {
	return errors.Is(err, http.ErrServerClosed)
}

func (h *handlers) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("GET /metrics", observability.Handler())

	mux.HandleFunc("GET /status", h.handleStatus)
	mux.HandleFunc("POST /operations/autolineup", h.handleStartAutolineup)
	mux.HandleFunc("POST /operations/align", h.handleStartAlign)
	mux.HandleFunc("GET /managers/{id}/teams/{team}/value", h.handleValueSeries)

	return mux
}

// StatusResponse is the body of /status.
type StatusResponse struct {
	Operation operation.Status     `json:"operation"`
	NextRuns  map[string]time.Time `json:"next_runs,omitempty"`
	Tasks     []TaskResponse       `json:"recent_tasks"`
}

// TaskResponse is one audit task as shown by /status.
type TaskResponse struct {
	Name    string    `json:"name"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	Error   string    `json:"error,omitempty"`
}

// handleStatus returns the operation state, next scheduled runs and recent tasks as JSON.
func (h *handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Operation: h.components.Registry.Status(),
		Tasks:     []TaskResponse{},
	}
	if h.scheduler != nil {
		resp.NextRuns = h.scheduler.Jobs(time.Now())
	}

	tasks, err := h.stores.Tasks.List(r.Context(), 10)
	if err != nil {
		h.logger.Printf("list tasks: %v", err)
		http.Error(w, "failed to list tasks", http.StatusInternalServerError)
		return
	}
	for _, t := range tasks {
		tr := TaskResponse{Name: t.Name, StartAt: t.StartAt, EndAt: t.EndAt}
		if t.Error != nil {
			tr.Error = *t.Error
		}
		resp.Tasks = append(resp.Tasks, tr)
	}

	writeJSON(w, http.StatusOK, resp)
}

type startResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *handlers) handleStartAutolineup(w http.ResponseWriter, r *http.Request) {
	if h.components.Autolineup == nil {
		http.Error(w, "autolineup is disabled", http.StatusServiceUnavailable)
		return
	}
	op, err := h.components.Autolineup.Start(r.Context())
	h.writeStarted(w, op, err)
}

func (h *handlers) handleStartAlign(w http.ResponseWriter, r *http.Request) {
	if h.components.Sync == nil {
		http.Error(w, "team alignment is disabled", http.StatusServiceUnavailable)
		return
	}
	op, err := h.components.Sync.StartAlign(r.Context())
	h.writeStarted(w, op, err)
}

func (h *handlers) writeStarted(w http.ResponseWriter, op *operation.Operation, err error) {
	if errors.Is(err, operation.ErrServerBusy) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Printf("start operation: %v", err)
		http.Error(w, "failed to start operation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, startResponse{ID: op.ID.String(), Name: op.Name})
}

// ValuePoint is one checkpoint of a value series.
type ValuePoint struct {
	At               time.Time `json:"at"`
	Value            string    `json:"value"`
	TheoreticalValue string    `json:"theoretical_value"`
}

// handleValueSeries serves the value series of one team. Query parameters:
// season (default: current season) and subs ("entryID:playerID,...").
func (h *handlers) handleValueSeries(w http.ResponseWriter, r *http.Request) {
	managerID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid manager id", http.StatusBadRequest)
		return
	}
	team := r.PathValue("team")

	subs, err := domain.ParseSubstitutions(r.URL.Query().Get("subs"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var series []domain.TeamValue
	if raw := r.URL.Query().Get("season"); raw != "" {
		seasonID, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			http.Error(w, "invalid season id", http.StatusBadRequest)
			return
		}
		series, err = h.components.Valuator.ComputeValueSeries(r.Context(), managerID, seasonID, team, subs)
	} else {
		series, err = h.components.Valuator.ComputeCurrentValueSeries(r.Context(), managerID, team, subs)
	}
	if errors.Is(err, domain.ErrNoActiveSeason) || errors.Is(err, domain.ErrAmbiguousSeason) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Printf("value series: %v", err)
		http.Error(w, "failed to compute value series", http.StatusInternalServerError)
		return
	}

	points := make([]ValuePoint, 0, len(series))
	for _, v := range series {
		points = append(points, ValuePoint{
			At:               v.At,
			Value:            v.Value.String(),
			TheoreticalValue: v.TheoreticalValue.String(),
		})
	}
	writeJSON(w, http.StatusOK, points)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}
