package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"lendingrisk/internal/workers"
	"lendingrisk/pkg/logger"
)

// Checker is a dependency that can report its health
type Checker interface {
	Health(ctx context.Context) error
}

// WorkerStatuser reports background worker bookkeeping
type WorkerStatuser interface {
	Statuses() []workers.Status
}

// Handler serves liveness, readiness and detailed health
type Handler struct {
	log         *logger.Logger
	checks      map[string]Checker
	workers     WorkerStatuser // optional
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a new health handler. Only the given checks take part in readiness,
// so disabled backends (ClickHouse, Kafka) are simply left out.
func New(checks map[string]Checker, workers WorkerStatuser, serviceName, version string) *Handler {
	return &Handler{
		log:         logger.Get().With("component", "health"),
		checks:      checks,
		workers:     workers,
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// Status is the readiness and detailed health body
type Status struct {
	Status    string                     `json:"status"` // healthy|unhealthy
	Service   string                     `json:"service"`
	Version   string                     `json:"version"`
	Uptime    string                     `json:"uptime"`
	Timestamp string                     `json:"timestamp"`
	Checks    map[string]ComponentHealth `json:"checks"`
	Workers   []workers.Status           `json:"workers,omitempty"`
}

// ComponentHealth is the result of one check
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// HandleLiveness always answers 200 while the process serves HTTP
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness answers 503 when any dependency check fails
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.status(ctx)
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
		h.log.Warnw("Readiness check failed", "checks", status.Checks)
	}
	writeJSON(w, code, status)
}

// HandleHealth returns the readiness result plus worker state, always with 200
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := h.status(ctx)
	if h.workers != nil {
		status.Workers = h.workers.Statuses()
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) status(ctx context.Context) Status {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	s := Status{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]ComponentHealth, len(names)),
	}
	for _, name := range names {
		c := check(ctx, h.checks[name])
		s.Checks[name] = c
		if c.Status != "healthy" {
			s.Status = "unhealthy"
		}
	}
	return s
}

func check(ctx context.Context, c Checker) ComponentHealth {
	start := time.Now()
	err := c.Health(ctx)
	res := ComponentHealth{Status: "healthy", ResponseTime: time.Since(start).String()}
	if err != nil {
		res.Status = "unhealthy"
		res.Error = err.Error()
	}
	return res
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
