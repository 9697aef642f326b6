// Package inspect serves a read-mostly HTTP view of the shared cache: per-plugin
// statistics and keys, operator invalidation, health probes and metrics.
package inspect

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jonwraymond/nodecache/cache"
	"github.com/jonwraymond/nodecache/health"
	"github.com/jonwraymond/nodecache/observe"
	"github.com/jonwraymond/nodecache/plugin"
)

// ErrInvalidNodeID is returned for a node path segment that is not a uint32.
var ErrInvalidNodeID = errors.New("inspect: invalid node id")

// PluginLister lists loaded plugins. *host.Session satisfies it.
type PluginLister interface {
	Plugins() []plugin.Info
}

// Deps holds the server's collaborators.
type Deps struct {
	Store          cache.Store        // required
	Plugins        PluginLister       // nil = no /v1/plugins listing
	Health         *health.Aggregator // nil = no health routes
	Metrics        *Metrics           // nil = no request metrics
	MetricsHandler http.Handler       // nil = no /metrics
	Logger         observe.Logger     // nil = no request logging
	Auth           *KeyAuth           // nil = mutating routes are open
}

// New returns an http.Handler with every inspection route mounted.
func New(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = observe.NopLogger()
	}
	s := &server{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.middleware)
	}

	if deps.Health != nil {
		health.Mount(r, deps.Health)
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	if deps.Plugins != nil {
		r.Get("/v1/plugins", s.handleListPlugins)
	}
	r.Get("/v1/plugins/{plugin}/stats", s.handleStats)
	r.Get("/v1/plugins/{plugin}/keys", s.handleKeys)

	r.Group(func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(deps.Auth.middleware)
		}
		r.Delete("/v1/plugins/{plugin}", s.handleClear)
		r.Post("/v1/plugins/{plugin}/nodes/{node}/invalidate", s.handleInvalidate)
	})
	return r
}

type server struct {
	deps Deps
}

// StatsResponse is the body of GET /v1/plugins/{plugin}/stats.
type StatsResponse struct {
	cache.Statistics
	HitRatio          float64 `json:"hit_ratio"`
	AvgMemoryPerEntry int64   `json:"avg_memory_per_entry"`
	Memory            string  `json:"estimated_memory_human"`
}

// PluginSummary is one item of GET /v1/plugins.
type PluginSummary struct {
	plugin.Info
	Entries int    `json:"entries"`
	Memory  string `json:"estimated_memory_human"`
}

// RemovedResponse is the body of the invalidation endpoints.
type RemovedResponse struct {
	Pattern string `json:"pattern"`
	Removed int    `json:"removed"`
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newStatsResponse(st cache.Statistics) StatsResponse {
	return StatsResponse{
		Statistics:        st,
		HitRatio:          st.HitRatio(),
		AvgMemoryPerEntry: st.AvgMemoryPerEntry(),
		Memory:            humanize.IBytes(uint64(st.EstimatedMemory)),
	}
}

func (s *server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	infos := s.deps.Plugins.Plugins()
	out := make([]PluginSummary, 0, len(infos))
	for _, info := range infos {
		st := s.deps.Store.PluginStatistics(r.Context(), info.Name)
		out = append(out, PluginSummary{
			Info:    info,
			Entries: st.TotalEntries,
			Memory:  humanize.IBytes(uint64(st.EstimatedMemory)),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "plugin")
	writeJSON(w, http.StatusOK, newStatsResponse(s.deps.Store.PluginStatistics(r.Context(), pluginID)))
}

func (s *server) handleKeys(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "plugin")
	keys := s.deps.Store.PluginKeys(r.Context(), pluginID)
	slices.SortFunc(keys, cache.CompareKeys)
	if keys == nil {
		keys = []cache.Key{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "plugin")
	removed := s.deps.Store.ClearPlugin(r.Context(), pluginID)
	s.deps.Logger.Info(r.Context(), "plugin entries cleared",
		observe.Field{Key: "plugin.id", Value: pluginID},
		observe.Field{Key: "removed", Value: removed},
	)
	writeJSON(w, http.StatusOK, RemovedResponse{Pattern: cache.ByPlugin(pluginID).String(), Removed: removed})
}

func (s *server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "plugin")
	nodeID, err := strconv.ParseUint(chi.URLParam(r, "node"), 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ErrInvalidNodeID.Error()})
		return
	}

	pattern := cache.ByNode(pluginID, uint32(nodeID))
	if stage := r.URL.Query().Get("stage"); stage != "" {
		pattern = cache.ByStage(pluginID, uint32(nodeID), stage)
	}
	removed := s.deps.Store.Invalidate(r.Context(), pattern)
	s.deps.Logger.Info(r.Context(), "entries invalidated",
		observe.Field{Key: "pattern", Value: pattern.String()},
		observe.Field{Key: "removed", Value: removed},
	)
	writeJSON(w, http.StatusOK, RemovedResponse{Pattern: pattern.String(), Removed: removed})
}

func (s *server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.deps.Logger.Debug(r.Context(), "request served",
			observe.Field{Key: "method", Value: r.Method},
			observe.Field{Key: "path", Value: r.URL.Path},
			observe.Field{Key: "status", Value: ww.Status()},
			observe.Field{Key: "request_id", Value: middleware.GetReqID(r.Context())},
			observe.Field{Key: "duration_ms", Value: float64(time.Since(start).Microseconds()) / 1000},
		)
	})
}
