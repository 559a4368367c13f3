package kafka

import (
	"time"
)

// ExecutionsTopic receives one event per publish request or task firing.
const ExecutionsTopic = "semaphore.executions"

// ExecutionEvent is the wire form of a completed fan-out: one record per
// request or firing, with the per-target outcomes flattened into Results.
type ExecutionEvent struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"` // "manual_publish" or "task_firing"
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	TaskID        *string           `json:"task_id,omitempty"`
	RequestID     string            `json:"request_id"`
	OverallStatus string            `json:"overall_status"`
	Succeeded     int               `json:"succeeded"`
	Failed        int               `json:"failed"`
	Results       []ExecutionTarget `json:"results"`
	SchemaVersion string            `json:"schema_version"`
}

// ExecutionTarget is one target's outcome inside an ExecutionEvent.
type ExecutionTarget struct {
	AccountID  string `json:"account_id"`
	PlatformID string `json:"platform_id"`
	Success    bool   `json:"success"`
	PostID     string `json:"post_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ProducerInterface defines the interface for Kafka producers
type ProducerInterface interface {
	ProduceMessage(topic string, key []byte, value []byte, headers map[string]string) error
	PublishExecutionEvent(event *ExecutionEvent) error
	Close() error
	HealthCheck() error
}
