package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lendingrisk/internal/domain/event"
	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/internal/domain/reserve"
	reserveservice "lendingrisk/internal/services/reserve"
	"lendingrisk/pkg/errors"
	"lendingrisk/pkg/logger"
)

// MaxAffectedUsers caps the affected users listed per scenario in responses
const MaxAffectedUsers = 50

// AnalysisService runs and reads health factor analyses
type AnalysisService interface {
	RunAnalysis(ctx context.Context, chainID string) (*healthfactor.Analysis, error)
	GetLatest(ctx context.Context, chainID string) (*healthfactor.Analysis, error)
	GetDistributionHistory(ctx context.Context, chainID string, limit int) ([]healthfactor.DistributionPoint, error)
}

// MarketService serves reserve snapshots and rate curves
type MarketService interface {
	GetHistory(ctx context.Context, chainID, marketID, asset string, hours int) ([]reserve.Snapshot, error)
	GetCurve(ctx context.Context, chainID, marketID, asset string, steps int) (*reserveservice.Curve, error)
	GetLatest(ctx context.Context, chainID, marketID, asset string) (*reserve.Snapshot, error)
	Overview(ctx context.Context, chainIDs []string) ([]reserveservice.ChainOverview, error)
}

// EventService serves stored protocol events
type EventService interface {
	GetAssetEvents(ctx context.Context, chainID, asset, types string, limit int) (*event.AssetEvents, error)
	GetAssetStats(ctx context.Context, chainID, asset string) (*event.AssetStats, error)
	Counts(ctx context.Context, chainID string) (map[event.Type]int, error)
}

// AnalysisRequester enqueues an analysis for the workers
type AnalysisRequester interface {
	RequestAnalysis(ctx context.Context, chainID string) error
}

// Handler serves the read API consumed by the dashboard
type Handler struct {
	analyses  AnalysisService
	markets   MarketService
	events    EventService
	requester AnalysisRequester // nil runs refreshes inline
	chainIDs  []string
	chains    map[string]bool
	log       *logger.Logger
}

// NewHandler creates a new API handler. Requests for chains outside chains get 404.
func NewHandler(analyses AnalysisService, markets MarketService, events EventService, requester AnalysisRequester, chains []string) *Handler {
	set := make(map[string]bool, len(chains))
	for _, c := range chains {
		set[c] = true
	}
	return &Handler{
		analyses:  analyses,
		markets:   markets,
		events:    events,
		requester: requester,
		chainIDs:  chains,
		chains:    set,
		log:       logger.Get().With("component", "rest_api"),
	}
}

// Routes mounts the API under r. Reads are bounded by readTimeout;
// an inline refresh is bounded by the analysis budget instead.
func (h *Handler) Routes(r chi.Router, readTimeout time.Duration) {
	read := middleware.Timeout(readTimeout)

	r.Route("/health-factors/{chainID}", func(r chi.Router) {
		r.Use(h.requireChain)
		r.With(read).Get("/", h.getHealthFactors)
		r.With(read).Get("/history", h.getDistributionHistory)
		r.Post("/refresh", h.refresh)
	})
	r.Route("/markets/{chainID}/{marketID}/{asset}", func(r chi.Router) {
		r.Use(h.requireChain, read)
		r.Get("/history", h.getReserveHistory)
		r.Get("/curve", h.getRateCurve)
		r.Get("/latest", h.getLatestReserve)
	})
	r.With(read).Get("/overview", h.getOverview)
	r.Route("/events/{chainID}", func(r chi.Router) {
		r.Use(h.requireChain, read)
		r.Get("/", h.getEventCounts)
		r.Get("/{asset}", h.getAssetEvents)
		r.Get("/{asset}/stats", h.getAssetEventStats)
	})
}

func (h *Handler) requireChain(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chainID := chi.URLParam(r, "chainID"); !h.chains[chainID] {
			writeError(w, http.StatusNotFound, "unknown_chain", "chain "+chainID+" is not supported")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) getHealthFactors(w http.ResponseWriter, r *http.Request) {
	chainID := chi.URLParam(r, "chainID")

	analysis, err := h.analyses.GetLatest(r.Context(), chainID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, truncateAffected(analysis, MaxAffectedUsers))
}

func (h *Handler) getDistributionHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	points, err := h.analyses.GetDistributionHistory(r.Context(), chi.URLParam(r, "chainID"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"points": points})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	chainID := chi.URLParam(r, "chainID")

	if h.requester != nil {
		if err := h.requester.RequestAnalysis(r.Context(), chainID); err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "chain_id": chainID})
		return
	}

	analysis, err := h.analyses.RunAnalysis(r.Context(), chainID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, truncateAffected(analysis, MaxAffectedUsers))
}

func (h *Handler) getReserveHistory(w http.ResponseWriter, r *http.Request) {
	hours, err := intParam(r, "hours")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	snapshots, err := h.markets.GetHistory(r.Context(),
		chi.URLParam(r, "chainID"), chi.URLParam(r, "marketID"), chi.URLParam(r, "asset"), hours)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"snapshots": snapshots})
}

func (h *Handler) getRateCurve(w http.ResponseWriter, r *http.Request) {
	steps, err := intParam(r, "steps")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	curve, err := h.markets.GetCurve(r.Context(),
		chi.URLParam(r, "chainID"), chi.URLParam(r, "marketID"), chi.URLParam(r, "asset"), steps)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, curve)
}

func (h *Handler) getLatestReserve(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.markets.GetLatest(r.Context(),
		chi.URLParam(r, "chainID"), chi.URLParam(r, "marketID"), chi.URLParam(r, "asset"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) getOverview(w http.ResponseWriter, r *http.Request) {
	chains, err := h.markets.Overview(r.Context(), h.chainIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"chains": chains})
}

func (h *Handler) getEventCounts(w http.ResponseWriter, r *http.Request) {
	chainID := chi.URLParam(r, "chainID")

	counts, err := h.events.Counts(r.Context(), chainID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"chain_id": chainID, "counts": counts})
}

func (h *Handler) getAssetEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	events, err := h.events.GetAssetEvents(r.Context(),
		chi.URLParam(r, "chainID"), chi.URLParam(r, "asset"), r.URL.Query().Get("types"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) getAssetEventStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.events.GetAssetStats(r.Context(), chi.URLParam(r, "chainID"), chi.URLParam(r, "asset"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// fail maps error kinds to status codes. Unexpected errors are logged and hidden.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errors.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, errors.ErrNotFound):
		writeError(w, http.StatusNotFound, "no_data", "")
	case errors.Is(err, errors.ErrLocked):
		writeError(w, http.StatusConflict, "analysis_running", "an analysis for this chain is already running")
	case errors.Is(err, errors.ErrComputation):
		h.log.Warnw("Analysis rejected snapshot", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusUnprocessableEntity, "computation_error", err.Error())
	case errors.Is(err, errors.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "timeout", "")
	case errors.Is(err, errors.ErrUnavailable):
		h.log.Warnw("Upstream unavailable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "upstream_unavailable", "")
	default:
		h.log.Errorw("Request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

// truncateAffected returns a shallow copy whose scenarios list at most max affected users.
// The stored analysis is left untouched.
func truncateAffected(a *healthfactor.Analysis, max int) *healthfactor.Analysis {
	out := *a
	if a.Simulation == nil {
		return &out
	}
	out.Simulation = make(healthfactor.SimulationScenario, len(a.Simulation))
	for label, sim := range a.Simulation {
		if sim == nil {
			out.Simulation[label] = nil
			continue
		}
		s := *sim
		if len(s.AffectedUsers) > max {
			s.AffectedUsers = s.AffectedUsers[:max:max]
		}
		out.Simulation[label] = &s
	}
	return &out
}

// intParam reads an optional positive integer query parameter.
// Absent means 0 so the service applies its default.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewValidationError(name, "must be an integer", raw)
	}
	if v < 1 {
		return 0, errors.NewValidationError(name, "must be positive", v)
	}
	return v, nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, code int, errCode, message string) {
	writeJSON(w, code, errorResponse{Error: errCode, Message: message})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
