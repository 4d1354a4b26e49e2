package searcher

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/openwebindex/platform/pkg/logger"
	"github.com/openwebindex/platform/pkg/metrics"
)

// Handler serves the search HTTP API.
type Handler struct {
	searcher *CachedSearcher
	log      *slog.Logger
	m        *metrics.Metrics
}

// NewHandler returns the HTTP layer over a cached searcher.
func NewHandler(searcher *CachedSearcher, m *metrics.Metrics) *Handler {
	return &Handler{
		searcher: searcher,
		log:      logger.WithComponent("search-api"),
		m:        m,
	}
}

// Register mounts the search routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /search", h.handleSearch)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, `missing "q" parameter`, http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, `invalid "limit" parameter`, http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	result, cached, err := h.searcher.Search(r.Context(), query, limit)
	if err != nil {
		h.log.Error("search failed", "query", query, "error", err)
		h.count("error", cached, start)
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}

	if result.Total == 0 {
		h.count("zero_result", cached, start)
	} else {
		h.count("hit", cached, start)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.log.Error("encoding response failed", "error", err)
	}
}

func (h *Handler) count(resultType string, cached bool, start time.Time) {
	if h.m == nil {
		return
	}
	h.m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	cacheStatus := "miss"
	if cached {
		cacheStatus = "hit"
	}
	h.m.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
}
