package clients

import (
	"context"
	"errors"
	"testing"
	"time"

	"semaphore/internal/trigger"
	"semaphore/pkg/logging"
)

type flakySource struct {
	failures int
	calls    int
}

func (f *flakySource) FetchSince(ctx context.Context, accountID string, cursor trigger.Cursor) ([]trigger.Event, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection refused")
	}
	return []trigger.Event{{ID: "ev-1", Kind: trigger.KindPost, CreatedAt: time.Now()}}, nil
}

func TestRetryingEventSourceRecoversFromTransientError(t *testing.T) {
	src := &flakySource{failures: 1}
	wrapped := NewRetryingEventSource(src, logging.NewLogger())

	events, err := wrapped.FetchSince(context.Background(), "acc-1", trigger.Cursor{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if src.calls != 2 {
		t.Fatalf("calls = %d, want 2", src.calls)
	}
}

func TestRetryingEventSourceGivesUpOnPersistentFailure(t *testing.T) {
	src := &flakySource{failures: 100}
	wrapped := NewRetryingEventSource(src, logging.NewLogger())

	if _, err := wrapped.FetchSince(context.Background(), "acc-1", trigger.Cursor{}); err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if src.calls != 3 {
		t.Fatalf("calls = %d, want initial attempt plus two retries", src.calls)
	}
}

func TestRetryingEventSourceDoesNotRetryPermanentError(t *testing.T) {
	calls := 0
	src := fetcherFunc(func(ctx context.Context, accountID string, cursor trigger.Cursor) ([]trigger.Event, error) {
		calls++
		return nil, errors.New("account suspended")
	})
	wrapped := NewRetryingEventSource(src, logging.NewLogger())

	if _, err := wrapped.FetchSince(context.Background(), "acc-1", trigger.Cursor{}); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on permanent errors)", calls)
	}
}

type fetcherFunc func(ctx context.Context, accountID string, cursor trigger.Cursor) ([]trigger.Event, error)

func (f fetcherFunc) FetchSince(ctx context.Context, accountID string, cursor trigger.Cursor) ([]trigger.Event, error) {
	return f(ctx, accountID, cursor)
}

func TestPlatformErrorString(t *testing.T) {
	err := &PlatformError{Platform: "twitter", Code: "duplicate", Message: "status is a duplicate"}
	want := "twitter: status is a duplicate (duplicate)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
