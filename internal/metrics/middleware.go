package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts HTTP requests by matched route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests served",
		},
		[]string{"route", "status"},
	)

	// HTTPRequestLatency tracks time spent in the handler chain.
	HTTPRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_latency_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"route"},
	)

	// HTTPRequestsInFlight is the number of requests currently being served.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served",
		},
	)
)

// responseObserver remembers the first status written through it.
type responseObserver struct {
	http.ResponseWriter
	status int
}

func (o *responseObserver) WriteHeader(code int) {
	if o.status == 0 {
		o.status = code
	}
	o.ResponseWriter.WriteHeader(code)
}

func (o *responseObserver) Write(p []byte) (int, error) {
	if o.status == 0 {
		o.status = http.StatusOK
	}
	return o.ResponseWriter.Write(p)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (o *responseObserver) Unwrap() http.ResponseWriter { return o.ResponseWriter }

func (o *responseObserver) statusCode() int {
	if o.status == 0 {
		return http.StatusOK
	}
	return o.status
}

// Middleware records request count, latency and in-flight gauge for next.
// Routes are labelled with the ServeMux pattern that matched.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		start := time.Now()
		obs := &responseObserver{ResponseWriter: w}
		next.ServeHTTP(obs, r)

		route := sanitizeRouteLabel(r.Pattern)
		HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(obs.statusCode())).Inc()
		HTTPRequestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

const maxRouteLabelLen = 64

// sanitizeRouteLabel bounds a ServeMux pattern for use as a label value.
// Requests that matched nothing share the "unmatched" label.
func sanitizeRouteLabel(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return "unmatched"
	}
	label := strings.Map(func(r rune) rune {
		if routeRuneAllowed(r) {
			return r
		}
		return '_'
	}, pattern)
	if len(label) > maxRouteLabelLen {
		label = label[:maxRouteLabelLen]
	}
	return label
}

func routeRuneAllowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("-_./ {}", r)
}
