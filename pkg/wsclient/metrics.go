// pkg/wsclient/metrics.go
package wsclient

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	Connects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "optionstream", Subsystem: "ws", Name: "connects_total",
		Help: "Websocket dial outcomes",
	}, []string{"result"})

	Messages = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "optionstream", Subsystem: "ws", Name: "messages_total",
		Help: "Frames received from the server",
	})

	Dropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "optionstream", Subsystem: "ws", Name: "dropped_total",
		Help: "Frames dropped because a subscriber buffer was full",
	})

	Sent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "optionstream", Subsystem: "ws", Name: "sent_total",
		Help: "Frames written to the server",
	})

	Subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "optionstream", Subsystem: "ws", Name: "subscribers",
		Help: "Active frame subscribers",
	})
)

// RegisterMetrics registers the package collectors once.
func RegisterMetrics(r prometheus.Registerer) {
	once.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		for _, c := range []prometheus.Collector{Connects, Messages, Dropped, Sent, Subscribers} {
			_ = r.Register(c)
		}
	})
}
