package clients

import (
	"context"
	"fmt"

	"semaphore/internal/platform"
)

// Payload is the adapted content handed to a platform client for one
// publish action.
type Payload struct {
	AccountID string
	Platform  platform.ID
	Action    platform.Action
	Message   string
	MediaURL  string
	MediaKind platform.MediaKind
	// RefEventID is the source event acted on for reply, quote,
	// retweet and like actions.
	RefEventID  string
	RequestID   string
	ScheduledAt string
}

// PublishResult is the platform's acknowledgement of a publish.
type PublishResult struct {
	PostID string
	URL    string
}

// PlatformClient publishes one payload to one platform account. The
// credential collaborator constructs these; this engine never performs
// token exchange itself.
type PlatformClient interface {
	Publish(ctx context.Context, payload Payload) (*PublishResult, error)
}

// Provider resolves a ready-to-use client for a (platform, account)
// pair.
type Provider interface {
	ClientFor(platformID platform.ID, accountID string) (PlatformClient, error)
}

// PlatformError is a typed publish failure from a platform client.
// It is recorded in the affected target's result slot and never
// propagated to sibling jobs.
type PlatformError struct {
	Platform platform.ID
	Code     string
	Message  string
}

func (e *PlatformError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Platform, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Message)
}
