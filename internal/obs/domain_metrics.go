package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteCalculationsTotal counts quote calculations by outcome (ok, invalid, error).
	QuoteCalculationsTotal *prometheus.CounterVec
	// QuoteUnresolvedLinesTotal counts requested lines that matched no catalog item.
	QuoteUnresolvedLinesTotal prometheus.Counter
	// CatalogMutationsTotal counts catalog writes by operation and outcome.
	CatalogMutationsTotal *prometheus.CounterVec
	// DBQueryDuration records SQL round trip latency in milliseconds.
	DBQueryDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics creates the estimator collectors once. Until it is
// called the package variables stay nil and callers skip observation.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteCalculationsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_calculations_total",
			Help:      "Quote calculations by outcome.",
		}, []string{"result"}))
		QuoteUnresolvedLinesTotal = registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_unresolved_lines_total",
			Help:      "Requested quote lines whose code did not resolve for the tier.",
		}))
		CatalogMutationsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_mutations_total",
			Help:      "Catalog create, update and deactivate calls by outcome.",
		}, []string{"operation", "result"}))
		DBQueryDuration = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_ms",
			Help:      "Latency of SQL statements in milliseconds.",
			Buckets:   []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 1000},
		}, []string{"operation", "result"}))
	})
}
