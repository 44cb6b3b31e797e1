// pkg/kafka/metrics.go
package kafka

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// Connects counts producer connect attempts by result.
	Connects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "optionstream", Subsystem: "kafka", Name: "connects_total",
		Help: "Producer connect attempts by result",
	}, []string{"result"})

	// Published counts publish calls by topic and result.
	Published = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "optionstream", Subsystem: "kafka", Name: "published_total",
		Help: "Publish calls by topic and result",
	}, []string{"topic", "result"})

	// PublishSeconds observes publish latency including retries.
	PublishSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "optionstream", Subsystem: "kafka", Name: "publish_seconds",
		Help:    "Publish latency including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
)

// RegisterMetrics registers the package collectors once.
func RegisterMetrics(r prometheus.Registerer) {
	once.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		for _, c := range []prometheus.Collector{Connects, Published, PublishSeconds} {
			_ = r.Register(c)
		}
	})
}
