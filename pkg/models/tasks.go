package models

import "time"

// Task status values.
const (
	TaskStatusActive = "active"
	TaskStatusPaused = "paused"
	TaskStatusError  = "error"
)

// Transformations is the Draft-like content configuration of a task.
type Transformations struct {
	AddHashtags    []string `json:"addHashtags,omitempty"`
	PrependText    string   `json:"prependText,omitempty"`
	AppendText     string   `json:"appendText,omitempty"`
	IncludeSource  bool     `json:"includeSource"`
	Template       string   `json:"template,omitempty"`
	IncludeMedia   bool     `json:"includeMedia"`
	EnableYtDlp    bool     `json:"enableYtDlp"`
	TwitterActions []string `json:"twitterActions,omitempty"`
}

// TaskFilters configures the trigger and its event filters.
type TaskFilters struct {
	TwitterSourceType   string `json:"twitterSourceType,omitempty"`
	TwitterUsername     string `json:"twitterUsername,omitempty"`
	ExcludeReplies      bool   `json:"excludeReplies"`
	ExcludeRetweets     bool   `json:"excludeRetweets"`
	ExcludeQuotes       bool   `json:"excludeQuotes"`
	OriginalOnly        bool   `json:"originalOnly"`
	PollIntervalSeconds int    `json:"pollIntervalSeconds"`
	TriggerType         string `json:"triggerType"`
	TriggerValue        string `json:"triggerValue,omitempty"`
}

// Task is one automation: a trigger over source accounts firing a
// fixed set of target accounts.
type Task struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	SourceAccounts   []string        `json:"sourceAccounts"`
	TargetAccounts   []string        `json:"targetAccounts"`
	Status           string          `json:"status"`
	ExecutionType    string          `json:"executionType,omitempty"`
	RecurringPattern string          `json:"recurringPattern,omitempty"`
	ScheduleTime     *time.Time      `json:"scheduleTime,omitempty"`
	Transformations  Transformations `json:"transformations"`
	Filters          TaskFilters     `json:"filters"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	DeletedAt        *time.Time      `json:"-"`
}

// CreateTaskRequest is the task definition submitted by a user.
type CreateTaskRequest struct {
	Name             string          `json:"name" binding:"required"`
	Description      string          `json:"description"`
	SourceAccounts   []string        `json:"sourceAccounts" binding:"required"`
	TargetAccounts   []string        `json:"targetAccounts" binding:"required"`
	ExecutionType    string          `json:"executionType"`
	RecurringPattern string          `json:"recurringPattern"`
	ScheduleTime     *time.Time      `json:"scheduleTime"`
	Transformations  Transformations `json:"transformations"`
	Filters          TaskFilters     `json:"filters"`
}

// CreateTaskResponse reports the created (or already existing) task.
// Duplicate submissions are idempotent, not rejected.
type CreateTaskResponse struct {
	Success   bool   `json:"success"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Task      *Task  `json:"task,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ExecutionRecord is one task firing's persisted outcome.
type ExecutionRecord struct {
	ID            string         `json:"id"`
	TaskID        string         `json:"taskId"`
	RequestID     string         `json:"requestId"`
	FiredAt       time.Time      `json:"firedAt"`
	OverallStatus string         `json:"overallStatus"`
	Succeeded     int            `json:"succeededCount"`
	Failed        int            `json:"failedCount"`
	Results       []TargetResult `json:"results"`
}
