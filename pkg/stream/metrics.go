// pkg/stream/metrics.go
package stream

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultItem      = "item"
	resultEnd       = "end"
	resultError     = "error"
	resultTimeout   = "timeout"
	resultCancelled = "cancelled"
)

var (
	once sync.Once

	// PullsTotal counts Next calls by bridge name and outcome.
	PullsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "optionstream",
		Subsystem: "stream",
		Name:      "pulls_total",
		Help:      "Bridge Next calls by outcome",
	}, []string{"bridge", "result"})

	// BatchSize observes the size of slices emitted by Chunk and Window.
	BatchSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "optionstream",
		Subsystem: "stream",
		Name:      "batch_size",
		Help:      "Items per emitted batch",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"producer"})
)

// RegisterMetrics registers the package collectors once.
// A nil registerer means prometheus.DefaultRegisterer.
func RegisterMetrics(r prometheus.Registerer) {
	once.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		for _, c := range []prometheus.Collector{PullsTotal, BatchSize} {
			_ = r.Register(c)
		}
	})
}

func observePull(bridge, result string) {
	PullsTotal.WithLabelValues(bridge, result).Inc()
}
