package models

import "time"

// Overall execution status values. The aggregate is success iff every
// target succeeded, failed iff every target failed, otherwise partial.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// PublishRequest is a manual publish of one message to many accounts.
type PublishRequest struct {
	Message            string            `json:"message"`
	MediaURL           string            `json:"mediaUrl,omitempty"`
	MediaType          string            `json:"mediaType,omitempty"`
	Mode               string            `json:"mode"`
	ScheduledAt        *time.Time        `json:"scheduledAt,omitempty"`
	TargetAccountIDs   []string          `json:"targetAccountIds" binding:"required"`
	PerTargetOverrides map[string]string `json:"perTargetOverrides,omitempty"`
	Hashtags           []string          `json:"hashtags,omitempty"`
	PrependText        string            `json:"prependText,omitempty"`
	AppendText         string            `json:"appendText,omitempty"`
}

// ValidationIssue is one adaptation finding for a target. Error-level
// issues block that target only; warnings are advisory.
type ValidationIssue struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// TargetValidation reports the adaptation outcome for one target.
type TargetValidation struct {
	AccountID   string            `json:"accountId"`
	PlatformID  string            `json:"platformId"`
	AccountName string            `json:"accountName"`
	Issues      []ValidationIssue `json:"issues"`
}

// TargetResult is one target's final dispatch outcome. Every requested
// target appears exactly once in a response's result list.
type TargetResult struct {
	AccountID    string     `json:"accountId"`
	PlatformID   string     `json:"platformId"`
	AccountName  string     `json:"accountName"`
	Success      bool       `json:"success"`
	PostID       string     `json:"postId,omitempty"`
	URL          string     `json:"url,omitempty"`
	ScheduledFor *time.Time `json:"scheduledFor,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// PublishResponse is the aggregate outcome of a publish request.
type PublishResponse struct {
	Success        bool               `json:"success"`
	PartialSuccess bool               `json:"partialSuccess,omitempty"`
	Mode           string             `json:"mode"`
	ScheduledAt    *time.Time         `json:"scheduledAt,omitempty"`
	SucceededCount int                `json:"succeededCount"`
	FailedCount    int                `json:"failedCount"`
	Validation     []TargetValidation `json:"validation"`
	Results        []TargetResult     `json:"results"`
	Error          string             `json:"error,omitempty"`
}

// Scheduled job status values.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusSent      = "sent"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// ScheduledJob is a durably registered dispatch awaiting its instant.
type ScheduledJob struct {
	ID          string     `json:"id"`
	RequestID   string     `json:"requestId"`
	TaskID      *string    `json:"taskId,omitempty"`
	AccountID   string     `json:"accountId"`
	PlatformID  string     `json:"platformId"`
	AccountName string     `json:"accountName,omitempty"`
	Action      string     `json:"action"`
	Message     string     `json:"message"`
	MediaURL    string     `json:"mediaUrl,omitempty"`
	MediaKind   string     `json:"mediaKind,omitempty"`
	ScheduledAt time.Time  `json:"scheduledAt"`
	Status      string     `json:"status"`
	PostID      string     `json:"postId,omitempty"`
	URL         string     `json:"url,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}
