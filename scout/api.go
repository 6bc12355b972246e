package scout

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/happycoding7/signal-extract/internal/store"
)

// API is the read-only query surface for the web UI. It is meant to be
// served from a database opened read-only, so it can run alongside a
// cron-driven collect without write contention.
type API struct {
	store *store.Store
}

// NewAPI creates the API over an open database handle.
func NewAPI(db *sql.DB) *API {
	return &API{store: store.NewStore(db)}
}

// NewAPIFromStore creates the API over an existing store.
func NewAPIFromStore(st *store.Store) *API {
	return &API{store: st}
}

// Router builds the chi router.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsHeaders)

	r.Get("/health", a.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/items", a.handleItems)
		r.Get("/digests", a.handleDigests)
		r.Get("/digests/{id}", a.handleDigest)
		r.Get("/stats", a.handleStats)
		r.Get("/opportunities", a.handleOpportunities)
		r.Get("/opportunities/trends", a.handleTrends)
		r.Get("/opportunities/{slug}", a.handleOpportunity)
	})
	return r
}

func corsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// intParam parses an integer query param, defaulting when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %q: expected integer, got %q", name, v)
	}
	return n, nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %q: expected integer, got %q", name, v)
	}
	return n, nil
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleItems(w http.ResponseWriter, r *http.Request) {
	minScore, err := intParam(r, "min_score", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	since, err := int64Param(r, "since")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit > 200 {
		limit = 200
	}

	items, total, err := a.store.QueryItems(r.Context(), store.ItemFilter{
		Source:   r.URL.Query().Get("source"),
		MinScore: minScore,
		Since:    since,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Bodies truncated for the list view.
	for _, it := range items {
		if len(it.Body) > 500 {
			it.Body = it.Body[:500]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items, "total": total, "limit": limit, "offset": offset,
	})
}

func (a *API) handleDigests(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit > 200 {
		limit = 200
	}
	digests, err := a.store.ListDigests(r.Context(), r.URL.Query().Get("kind"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"digests": digests})
}

func (a *API) handleDigest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "digest id must be an integer")
		return
	}
	d, err := a.store.GetDigest(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "digest not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.store.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	minConfidence, err := intParam(r, "min_confidence", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if minConfidence < 0 || minConfidence > 100 {
		writeError(w, http.StatusBadRequest, "min_confidence must be between 0 and 100")
		return
	}
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	since, err := int64Param(r, "since")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit > 200 {
		limit = 200
	}

	opps, total, err := a.store.QueryOpportunities(r.Context(), store.OpportunityFilter{
		MinConfidence: minConfidence,
		Buyer:         r.URL.Query().Get("buyer"),
		MarketType:    r.URL.Query().Get("market_type"),
		Since:         since,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": opps, "total": total, "limit": limit, "offset": offset,
	})
}

func (a *API) handleTrends(w http.ResponseWriter, r *http.Request) {
	trends, err := a.store.AllTrends(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trends": trends})
}

func (a *API) handleOpportunity(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	o, err := a.store.LatestOpportunity(r.Context(), slug)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "opportunity not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}
