package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduler worker metrics

	ClaimBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cronicorn",
		Name:      "claim_batch_size",
		Help:      "Endpoints claimed per tick.",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	})

	DispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cronicorn",
		Name:      "dispatch_duration_seconds",
		Help:      "Duration of endpoint HTTP dispatch.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"status"})

	RunsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cronicorn",
		Name:      "runs_in_flight",
		Help:      "Endpoints currently being dispatched by this worker.",
	})

	RunsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cronicorn",
		Name:      "runs_completed_total",
		Help:      "Total runs finished, by outcome.",
	}, []string{"outcome"})

	RunsDeferredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cronicorn",
		Name:      "runs_deferred_total",
		Help:      "Dispatches skipped because the tenant hit its monthly cap.",
	})

	// Zombie sweeper metrics

	ZombiesSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cronicorn",
		Name:      "zombies_swept_total",
		Help:      "Running rows swept to failed past the zombie threshold.",
	})

	// Planner metrics

	PlannerSessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cronicorn",
		Name:      "planner_sessions_total",
		Help:      "Planner sessions, by outcome.",
	}, []string{"outcome"})

	PlannerTokensTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cronicorn",
		Name:      "planner_tokens_total",
		Help:      "LLM tokens consumed by planner sessions.",
	})

	PlannerToolCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cronicorn",
		Name:      "planner_tool_calls_total",
		Help:      "Tool invocations made by the planner, by tool.",
	}, []string{"tool"})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cronicorn",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cronicorn",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cronicorn",
		Name:      "http_requests_in_flight",
		Help:      "API requests currently being served.",
	})
)

func Register() {
	prometheus.MustRegister(
		ClaimBatchSize,
		DispatchDuration,
		RunsInFlight,
		RunsCompletedTotal,
		RunsDeferredTotal,
		ZombiesSweptTotal,
		PlannerSessionsTotal,
		PlannerTokensTotal,
		PlannerToolCallsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
		HTTPRequestsInFlight,
	)
}

func NewServer(addr string, checker healthHandler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if checker != nil {
		mux.HandleFunc("/healthz", checker.LivenessHandler)
		mux.HandleFunc("/readyz", checker.ReadinessHandler)
	}
	return &http.Server{Addr: addr, Handler: mux}
}

// healthHandler is satisfied by *health.Checker.
type healthHandler interface {
	LivenessHandler(w http.ResponseWriter, r *http.Request)
	ReadinessHandler(w http.ResponseWriter, r *http.Request)
}
