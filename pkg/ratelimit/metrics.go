package ratelimit

import "github.com/prometheus/client_golang/prometheus"

var (
	learnedModelLimit = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pi_agent_ratelimit_learned_model_limit",
			Help: "Current learned concurrency limit per (provider, model).",
		},
		[]string{"provider", "model"},
	)

	learnedBudgetLimit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pi_agent_ratelimit_learned_budget_limit",
			Help: "Current learned total LLM concurrency budget.",
		},
	)

	shrinkEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pi_agent_ratelimit_shrink_events_total",
			Help: "Total number of multiplicative shrink events.",
		},
		[]string{"scope"},
	)

	metricsRegistered = false
)

// RegisterMetrics registers the package's Prometheus collectors.
// Idempotent and safe to call more than once.
func RegisterMetrics(registry prometheus.Registerer) {
	if metricsRegistered {
		return
	}
	registry.MustRegister(learnedModelLimit, learnedBudgetLimit, shrinkEvents)
	metricsRegistered = true
}

// reportModelLimit publishes the learned limit gauge for (provider, model).
func reportModelLimit(provider, model string, value int) {
	learnedModelLimit.WithLabelValues(provider, model).Set(float64(value))
}
