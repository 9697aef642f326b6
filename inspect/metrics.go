package inspect

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonwraymond/nodecache/cache"
)

// Metrics holds the Prometheus collectors for the inspection server.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers request collectors with reg. When sizer is
// non-nil, store occupancy gauges are registered as well.
func NewMetrics(reg prometheus.Registerer, sizer cache.Sizer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nodecache",
			Subsystem: "inspect",
			Name:      "requests_total",
			Help:      "Total number of inspection HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nodecache",
			Subsystem: "inspect",
			Name:      "request_duration_seconds",
			Help:      "Inspection HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestDuration)

	if sizer != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "nodecache",
				Subsystem: "store",
				Name:      "entries",
				Help:      "Live entries in the shared store.",
			}, func() float64 { return float64(sizer.Len()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "nodecache",
				Subsystem: "store",
				Name:      "bytes",
				Help:      "Encoded payload bytes in the shared store.",
			}, func() float64 { return float64(sizer.EstimatedBytes()) }),
		)
	}
	return m
}

func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := routePattern(r)
		m.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// routePattern returns the chi route pattern for bounded cardinality, falling
// back to the raw path for unmatched routes.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}
