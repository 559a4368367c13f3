package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the coordinator's Prometheus metrics. A nil receiver
// or nil collectors are tolerated so tests can pass a zero value.
type Metrics struct {
	Dispatches       *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	DueJobs          *prometheus.CounterVec
}

func (m *Metrics) IncDispatch(platformID, status string) {
	if m == nil || m.Dispatches == nil {
		return
	}

	m.Dispatches.WithLabelValues(platformID, status).Inc()
}

func (m *Metrics) ObserveDispatch(platformID string, d time.Duration) {
	if m == nil || m.DispatchDuration == nil {
		return
	}

	m.DispatchDuration.WithLabelValues(platformID).Observe(d.Seconds())
}

func (m *Metrics) IncDueJob(status string) {
	if m == nil || m.DueJobs == nil {
		return
	}

	m.DueJobs.WithLabelValues(status).Inc()
}
