package resilience

import "github.com/prometheus/client_golang/prometheus"

// Collectors are labelled by the guarded dependency, e.g. "catalog_store".
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "estimator",
		Name:      "store_breaker_state",
		Help:      "Breaker position per dependency (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "estimator",
		Name:      "store_breaker_transitions_total",
		Help:      "Breaker state changes per dependency.",
	}, []string{"target", "from", "to"})
	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "estimator",
		Name:      "store_breaker_opened_total",
		Help:      "Times a breaker opened per dependency.",
	}, []string{"target"})
	RetryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "estimator",
		Name:      "store_retry_attempts_total",
		Help:      "Failed attempts that were scheduled for retry, per dependency and operation.",
	}, []string{"target", "operation"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, RetryAttemptsTotal)
}

// The gauge value is the State ordinal.
func setStateGauge(target string, s State) {
	BreakerState.WithLabelValues(target).Set(float64(s))
}

func countTransition(target string, from, to State) {
	BreakerTransitions.WithLabelValues(target, from.String(), to.String()).Inc()
	if to == Open {
		BreakerOpenedTotal.WithLabelValues(target).Inc()
	}
}
