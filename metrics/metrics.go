package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UnmatchedRoute - метка path для запросов, не попавших ни в один маршрут.
const UnmatchedRoute = "unmatched"

var (
	registry = prometheus.DefaultRegisterer

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route/method/code.",
		},
		[]string{"path", "method", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route/method/code.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "code"},
	)

	opEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickem_operations_total",
			Help: "Pick'em service operations by name and result.",
		},
		[]string{"op", "result"},
	)

	opDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pickem_operation_duration_seconds",
			Help:    "Duration of pick'em service operations by name and result.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "result"},
	)

	picksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickem_picks_total",
			Help: "Submitted picks by outcome (created, updated, skipped).",
		},
		[]string{"outcome"},
	)

	gamesSynced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickem_games_synced_total",
			Help: "Games written by schedule sync (created, updated).",
		},
		[]string{"outcome"},
	)

	liveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pickem_live_connections",
			Help: "Open websocket connections to pool live rooms.",
		},
	)
)

// Middleware пишет метрики по шаблону маршрута chi, а не по сырому пути.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			path = rctx.RoutePattern()
		}
		// сырой путь не пишем: произвольные 404 раздували бы число серий
		if path == "" {
			path = UnmatchedRoute
		}
		if path == "/metrics" || strings.HasPrefix(path, "/swagger") {
			return
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)
		httpRequests.WithLabelValues(path, r.Method, code).Inc()
		httpDuration.WithLabelValues(path, r.Method, code).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveOp(op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	opEvents.WithLabelValues(op, result).Inc()
	opDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

func AddPicks(created, updated, skipped int) {
	picksProcessed.WithLabelValues("created").Add(float64(created))
	picksProcessed.WithLabelValues("updated").Add(float64(updated))
	picksProcessed.WithLabelValues("skipped").Add(float64(skipped))
}

func AddSyncedGames(created, updated int) {
	gamesSynced.WithLabelValues("created").Add(float64(created))
	gamesSynced.WithLabelValues("updated").Add(float64(updated))
}

func AddLiveConnections(delta float64) {
	liveConnections.Add(delta)
}

func init() {
	collectors := []prometheus.Collector{
		httpRequests,
		httpDuration,
		opEvents,
		opDuration,
		picksProcessed,
		gamesSynced,
		liveConnections,
	}

	for _, c := range collectors {
		_ = registry.Register(c)
	}
}
