// pkg/backoff/metrics.go
package backoff

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeRetry   = "retry"
	outcomeSuccess = "success"
	outcomeGiveUp  = "give_up"
)

var (
	once sync.Once

	// Attempts counts finished attempts per operation and outcome.
	Attempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "optionstream", Subsystem: "backoff", Name: "attempts_total",
		Help: "Retried operations by op and outcome",
	}, []string{"op", "outcome"})

	// Delay observes the wait scheduled before each retry.
	Delay = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "optionstream", Subsystem: "backoff", Name: "delay_seconds",
		Help:    "Wait before a retry",
		Buckets: []float64{.001, .01, .1, .5, 1, 2, 5, 10, 30},
	}, []string{"op"})
)

// RegisterMetrics registers the package collectors once.
func RegisterMetrics(r prometheus.Registerer) {
	once.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		for _, c := range []prometheus.Collector{Attempts, Delay} {
			_ = r.Register(c)
		}
	})
}
