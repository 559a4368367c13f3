package clients

import (
	"context"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"semaphore/internal/trigger"
	"semaphore/pkg/logging"
)

// RetryingEventSource decorates an event feed with a short transient
// retry. Publishes are never auto-retried; only this read path is.
type RetryingEventSource struct {
	inner  trigger.EventSource
	policy retrypolicy.RetryPolicy[[]trigger.Event]
	logger logging.Logger
}

// NewRetryingEventSource wraps the given feed with up to two in-tick
// retries on transient transport errors. A persistent outage still
// surfaces as a fetch failure so the poll runner's failure streak and
// cursor semantics are unaffected.
func NewRetryingEventSource(inner trigger.EventSource, logger logging.Logger) *RetryingEventSource {
	policy := retrypolicy.NewBuilder[[]trigger.Event]().
		WithBackoff(200*time.Millisecond, 2*time.Second).
		WithMaxRetries(2).
		WithJitterFactor(0.1).
		HandleIf(func(_ []trigger.Event, err error) bool {
			return isTransientFetchError(err)
		}).
		Build()

	return &RetryingEventSource{inner: inner, policy: policy, logger: logger}
}

// FetchSince implements trigger.EventSource.
func (s *RetryingEventSource) FetchSince(ctx context.Context, accountID string, cursor trigger.Cursor) ([]trigger.Event, error) {
	return failsafe.With(s.policy).WithContext(ctx).Get(func() ([]trigger.Event, error) {
		return s.inner.FetchSince(ctx, accountID, cursor)
	})
}

func isTransientFetchError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	signals := []string{
		"timeout",
		"temporar",
		"rate limit",
		"429",
		"connection reset",
		"connection refused",
		"service unavailable",
	}
	for _, signal := range signals {
		if strings.Contains(msg, signal) {
			return true
		}
	}
	return false
}
