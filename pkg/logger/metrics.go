// pkg/logger/metrics.go
package logger

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	captureDelivered = "delivered"
	captureDropped   = "dropped"
)

var (
	once sync.Once

	// CaptureRecords counts records offered to capture sinks by outcome.
	CaptureRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "optionstream",
		Subsystem: "logger",
		Name:      "capture_records_total",
		Help:      "Log records offered to capture sinks",
	}, []string{"result"})
)

// RegisterMetrics registers the package collectors once.
func RegisterMetrics(r prometheus.Registerer) {
	once.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}
		_ = r.Register(CaptureRecords)
	})
}
