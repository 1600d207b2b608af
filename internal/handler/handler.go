package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"

	"github.com/alex-user-go/tripdata/internal/middleware"
	"github.com/alex-user-go/tripdata/internal/search"
	"github.com/alex-user-go/tripdata/internal/search/types"
	"github.com/alex-user-go/tripdata/internal/validation"
)

// Query defaults of the GET endpoint.
const (
	DefaultInterests = "Culture & History,Food & Dining"
	DefaultBudget    = 2000
	DefaultTravelers = 1
	DefaultDuration  = 3
)

const maxBodyBytes = 1 << 16

// Handler handles HTTP requests.
type Handler struct {
	engine *search.Engine
	logger *slog.Logger
}

// New creates a new Handler.
func New(engine *search.Engine, logger *slog.Logger) *Handler {
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

// Register mounts the location data and cache routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/location-data", h.PostLocationData)
	r.Get("/location-data/{location}", h.GetLocationData)
	r.Get("/cache/stats", h.CacheStats)
	r.Delete("/cache/clear", h.ClearCache)
}

// LocationResponse wraps an aggregated result with a summary.
type LocationResponse struct {
	Status   string                  `json:"status"`
	Location string                  `json:"location"`
	Data     *types.AggregatedResult `json:"data"`
	Summary  Summary                 `json:"summary"`
}

// Summary counts the items of a result.
type Summary struct {
	HotelsFound      int    `json:"hotels_found"`
	AttractionsFound int    `json:"attractions_found"`
	RestaurantsFound int    `json:"restaurants_found"`
	Degraded         bool   `json:"degraded"`
	Cache            string `json:"cache"`
	DurationMs       int64  `json:"duration_ms"`
}

// CacheStatsResponse describes the result cache.
type CacheStatsResponse struct {
	TotalEntries    int               `json:"total_entries"`
	CacheTTLSeconds float64           `json:"cache_ttl_seconds"`
	Entries         []cacheEntryStats `json:"entries"`
}

type cacheEntryStats struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
	Degraded  bool      `json:"degraded"`
}

// ClearCacheResponse reports a cache clear.
type ClearCacheResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	CacheSizeAfter int    `json:"cache_size_after"`
}

// PostLocationData handles POST /location-data with a JSON query body and
// returns the aggregated result.
func (h *Handler) PostLocationData(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestID(r.Context())

	var q types.Query
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&q); err != nil {
		h.logger.Debug("invalid request body", "request_id", requestID, "error", err)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validation.Struct(q); err != nil {
		h.logger.Debug("invalid query", "request_id", requestID, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, hit := h.engine.Fetch(r.Context(), q)

	w.Header().Set("X-Cache", cacheStatus(hit))
	h.writeJSON(w, http.StatusOK, result)
}

// GetLocationData handles GET /location-data/{location}.
func (h *Handler) GetLocationData(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := middleware.RequestID(r.Context())

	q, err := ParseQuery(r)
	if err != nil {
		h.logger.Debug("invalid request parameters", "request_id", requestID, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, hit := h.engine.Fetch(r.Context(), q)

	h.writeJSON(w, http.StatusOK, LocationResponse{
		Status:   "success",
		Location: q.Location,
		Data:     result,
		Summary: Summary{
			HotelsFound:      len(result.Hotels),
			AttractionsFound: len(result.Attractions),
			RestaurantsFound: len(result.Restaurants),
			Degraded:         result.Degraded,
			Cache:            cacheStatus(hit),
			DurationMs:       time.Since(start).Milliseconds(),
		},
	})
}

// CacheStats handles GET /cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	c := h.engine.Cache()
	stats := c.Stats()

	entries := make([]cacheEntryStats, len(stats))
	for i, s := range stats {
		entries[i] = cacheEntryStats{Key: s.Key, ExpiresAt: s.ExpiresAt, Degraded: s.Degraded}
	}

	h.writeJSON(w, http.StatusOK, CacheStatsResponse{
		TotalEntries:    len(entries),
		CacheTTLSeconds: c.TTL().Seconds(),
		Entries:         entries,
	})
}

// ClearCache handles DELETE /cache/clear.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	c := h.engine.Cache()
	n := c.Clear()

	h.logger.Info("cache cleared",
		"request_id", middleware.RequestID(r.Context()),
		"entries", n)

	h.writeJSON(w, http.StatusOK, ClearCacheResponse{
		Status:         "success",
		Message:        fmt.Sprintf("Cleared %d cache entries", n),
		CacheSizeAfter: c.Len(),
	})
}

// ParseQuery builds a query from the location path parameter and the
// interests, budget, travelers and duration query parameters, applying
// defaults for missing ones.
func ParseQuery(r *http.Request) (types.Query, error) {
	location, err := url.PathUnescape(chi.URLParam(r, "location"))
	if err != nil {
		return types.Query{}, errors.New("location is not properly escaped")
	}

	params := r.URL.Query()
	q := types.Query{
		Location:  strings.TrimSpace(location),
		Budget:    DefaultBudget,
		Travelers: DefaultTravelers,
		Duration:  DefaultDuration,
	}

	interests := DefaultInterests
	if params.Has("interests") {
		interests = params.Get("interests")
	}
	for _, i := range strings.Split(interests, ",") {
		if i = strings.TrimSpace(i); i != "" {
			q.Interests = append(q.Interests, i)
		}
	}

	if s := params.Get("budget"); s != "" {
		if q.Budget, err = strconv.ParseFloat(s, 64); err != nil {
			return types.Query{}, errors.New("budget must be a number")
		}
	}
	if s := params.Get("travelers"); s != "" {
		if q.Travelers, err = strconv.Atoi(s); err != nil {
			return types.Query{}, errors.New("travelers must be an integer")
		}
	}
	if s := params.Get("duration"); s != "" {
		if q.Duration, err = strconv.Atoi(s); err != nil {
			return types.Query{}, errors.New("duration must be an integer")
		}
	}

	if err := validation.Struct(q); err != nil {
		return types.Query{}, err
	}
	return q, nil
}

// RateLimit limits requests per client IP and answers 429 in the service's
// error format.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return ExtractIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		}),
	)
}

// ExtractIP extracts the client IP from the request.
// Checks X-Forwarded-For, X-Real-IP, then falls back to RemoteAddr.
func ExtractIP(r *http.Request) string {
	// Check X-Forwarded-For (first IP in the list)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fallback to RemoteAddr (strip port)
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func cacheStatus(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Can't change status after WriteHeader, just log
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
