// Package metrics provides Prometheus HTTP metrics middleware and the
// counters updated by viewer sessions.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"galleryview/internal/gallery"
	"galleryview/internal/lazyload"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	lazyImages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_lazy_images_total",
			Help: "Lazy image registrations by outcome",
		},
		[]string{"event"},
	)

	galleryEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_events_total",
			Help: "View controller events",
		},
		[]string{"event"},
	)

	liveMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_live_messages_total",
			Help: "Push messages read from the backend",
		},
		[]string{"result"},
	)

	// Uploads counts backend intake results.
	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_uploads_total",
			Help: "Image uploads received by the backend",
		},
		[]string{"result"},
	)
)

// LoaderMetrics returns the lazy loader counters.
func LoaderMetrics() lazyload.Metrics {
	return lazyload.Metrics{
		Registered: lazyImages.WithLabelValues("registered"),
		Fired:      lazyImages.WithLabelValues("fired"),
		Cancelled:  lazyImages.WithLabelValues("cancelled"),
	}
}

// GalleryMetrics returns the view controller counters.
func GalleryMetrics() gallery.Metrics {
	return gallery.Metrics{
		StaleDiscarded: galleryEvents.WithLabelValues("stale_discarded"),
		FetchFailed:    galleryEvents.WithLabelValues("fetch_failed"),
		LiveApplied:    galleryEvents.WithLabelValues("live_applied"),
		LiveSuppressed: galleryEvents.WithLabelValues("live_suppressed"),
	}
}

// LiveReceived and LiveDropped count push messages.
func LiveReceived() prometheus.Counter { return liveMessages.WithLabelValues("received") }
func LiveDropped() prometheus.Counter  { return liveMessages.WithLabelValues("dropped") }

// LiveOverflow counts live uploads a busy session could not queue.
func LiveOverflow() prometheus.Counter { return liveMessages.WithLabelValues("overflow") }

// RegisterGaugeFunc exposes fn as a gauge. Registering the same name twice
// keeps the first one.
func RegisterGaugeFunc(name, help string, fn func() float64) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn)
	if err := prometheus.Register(g); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return err
	}
	return nil
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	rw.statusCode = http.StatusSwitchingProtocols
	return http.NewResponseController(rw.ResponseWriter).Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records Prometheus metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := newResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		// Use chi's route pattern if available to avoid high cardinality
		path := r.URL.Path
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(wrapped.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}
