package handlers

import "github.com/prometheus/client_golang/prometheus"

type APIMetrics struct {
	PublishRequests *prometheus.CounterVec
	TaskRequests    *prometheus.CounterVec
}

func (m *APIMetrics) IncPublish(status string) {
	if m == nil || m.PublishRequests == nil {
		return
	}

	m.PublishRequests.WithLabelValues(status).Inc()
}

func (m *APIMetrics) IncTask(operation, status string) {
	if m == nil || m.TaskRequests == nil {
		return
	}

	m.TaskRequests.WithLabelValues(operation, status).Inc()
}
