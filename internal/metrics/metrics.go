// Package metrics registers the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AwardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecolearn_awards_total",
		Help: "Point award attempts by result.",
	}, []string{"result"})

	PointsAwardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ecolearn_points_awarded_total",
		Help: "Points credited to users.",
	})

	BadgesEarnedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecolearn_badges_earned_total",
		Help: "Badges earned by badge id.",
	}, []string{"badge"})

	QRVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecolearn_qr_verifications_total",
		Help: "QR scan attempts by outcome.",
	}, []string{"outcome"})

	CompletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecolearn_completions_total",
		Help: "Task completion state transitions.",
	}, []string{"status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ecolearn_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
