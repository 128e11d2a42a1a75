package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Domain collectors are usable before registration so that library code can
// increment them unconditionally. MustRegisterDomainMetrics exposes them on a
// registry exactly once.
var (
	domainOnce sync.Once

	// CalcRequestsTotal counts pricing calculation requests by outcome.
	CalcRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hisab",
		Name:      "calc_requests_total",
		Help:      "Count of pricing calculation requests by result.",
	}, []string{"result"})
	// CalcDurationMs records end-to-end calculation latency in milliseconds.
	CalcDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hisab",
		Name:      "calc_duration_ms",
		Help:      "Latency of pricing calculations in milliseconds.",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
	})
	// RateLookupTotal counts VAT rate lookups by result.
	RateLookupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hisab",
		Name:      "rate_lookup_total",
		Help:      "Count of VAT rate lookups by result.",
	}, []string{"result"})
	// CalcSessionPublishTotal counts session snapshot publications by state.
	CalcSessionPublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hisab",
		Name:      "calc_session_publish_total",
		Help:      "Count of calculation session snapshots published, by state.",
	}, []string{"state"})
	// CalcSessionSuperseded counts debounced computations discarded as stale.
	CalcSessionSuperseded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hisab",
		Name:      "calc_session_superseded_total",
		Help:      "Number of session computations discarded because a newer submission arrived.",
	})
)

// MustRegisterDomainMetrics registers the domain collectors on the given
// registry. A nil registerer falls back to the default registry.
func MustRegisterDomainMetrics(reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		for _, c := range []prometheus.Collector{
			CalcRequestsTotal,
			CalcDurationMs,
			RateLookupTotal,
			CalcSessionPublishTotal,
			CalcSessionSuperseded,
		} {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
					continue
				}
				panic(fmt.Errorf("register domain metric: %w", err))
			}
		}
	})
}
