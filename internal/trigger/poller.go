package trigger

import (
	"context"
	"sync"
	"time"

	"semaphore/pkg/logging"
)

// MinPollInterval is the floor enforced on configured poll intervals.
const MinPollInterval = 10 * time.Second

// DefaultFailureThreshold is how many consecutive fetch failures move
// the owning task to error status.
const DefaultFailureThreshold = 5

// State is the poll loop state for one automation source.
type State string

const (
	StateIdle       State = "idle"
	StatePolling    State = "polling"
	StateEvaluating State = "evaluating"
	StateDisabled   State = "disabled"
)

// Cursor tracks the last processed event per source so re-delivered
// events never re-fire.
type Cursor struct {
	LastEventID string
	LastSeenAt  time.Time
}

// EventSource fetches candidate events for a source account since the
// given cursor. Implementations talk to the source platform's API.
type EventSource interface {
	FetchSince(ctx context.Context, accountID string, cursor Cursor) ([]Event, error)
}

// CursorStore persists poll cursors across restarts.
type CursorStore interface {
	GetCursor(ctx context.Context, taskID, accountID string) (Cursor, error)
	PutCursor(ctx context.Context, taskID, accountID string, cursor Cursor) error
}

// FireFunc is invoked once per matching event.
type FireFunc func(ctx context.Context, ev Event) error

// RunnerConfig configures one poll runner.
type RunnerConfig struct {
	TaskID           string
	AccountID        string
	TriggerType      Type
	Filters          Filters
	PollInterval     time.Duration
	FailureThreshold int
	Source           EventSource
	Cursors          CursorStore
	OnFire           FireFunc
	// OnError is called once when consecutive failures pass the
	// threshold; the runner stops polling afterwards.
	OnError func(taskID string)
	Logger  logging.Logger
}

// Runner polls one (source account, trigger type) pair. Pause and
// Resume serialize against a running tick through the runner mutex.
type Runner struct {
	cfg    RunnerConfig
	logger logging.Logger

	mu       sync.Mutex
	state    State
	cursor   Cursor
	loaded   bool
	failures int
}

// NewRunner creates a poll runner, enforcing the interval floor.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.PollInterval < MinPollInterval {
		cfg.PollInterval = MinPollInterval
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	return &Runner{
		cfg:    cfg,
		logger: cfg.Logger,
		state:  StateIdle,
	}
}

// State returns the current loop state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Pause disables the runner until Resume. Safe to call concurrently
// with a running tick; the transition waits for the tick to finish.
func (r *Runner) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateDisabled
}

// Resume re-enables a paused runner and clears the failure streak.
func (r *Runner) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDisabled {
		r.state = StateIdle
		r.failures = 0
	}
}

// Start runs the poll loop until the context is cancelled.
func (r *Runner) Start(ctx context.Context) {
	r.logger.WithField("interval", r.cfg.PollInterval).Info("Starting trigger poll loop")
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping trigger poll loop")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick performs one poll cycle: fetch, evaluate, fire, advance cursor.
// Exposed so the loop is testable without wall-clock waits.
func (r *Runner) Tick(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateDisabled {
		return
	}

	r.state = StatePolling
	defer func() {
		if r.state != StateDisabled {
			r.state = StateIdle
		}
	}()

	if !r.loaded {
		cursor, err := r.cfg.Cursors.GetCursor(ctx, r.cfg.TaskID, r.cfg.AccountID)
		if err != nil {
			r.logger.WithError(err).Warn("Failed to load poll cursor, starting fresh")
		} else {
			r.cursor = cursor
		}
		r.loaded = true
	}

	events, err := r.cfg.Source.FetchSince(ctx, r.cfg.AccountID, r.cursor)
	if err != nil {
		// Cursor stays put; the next tick retries. Only a streak of
		// failures escalates to task error status.
		r.failures++
		r.logger.WithError(err).WithField("consecutive_failures", r.failures).Warn("Event fetch failed")
		if r.failures >= r.cfg.FailureThreshold {
			r.logger.Error("Consecutive failure threshold reached, disabling poll loop")
			r.state = StateDisabled
			if r.cfg.OnError != nil {
				r.cfg.OnError(r.cfg.TaskID)
			}
		}
		return
	}
	r.failures = 0

	r.state = StateEvaluating
	for _, ev := range events {
		if r.alreadySeen(ev) {
			continue
		}
		if Matches(r.cfg.TriggerType, r.cfg.Filters, ev) {
			if err := r.cfg.OnFire(ctx, ev); err != nil {
				r.logger.WithError(err).WithField("event_id", ev.ID).Error("Firing failed")
			}
		}
		r.advance(ctx, ev)
	}
}

func (r *Runner) alreadySeen(ev Event) bool {
	if ev.ID != "" && ev.ID == r.cursor.LastEventID {
		return true
	}
	if ev.CreatedAt.IsZero() || r.cursor.LastSeenAt.IsZero() {
		return false
	}
	if ev.ID != "" {
		// A distinct ID sharing the cursor timestamp is a new event.
		return ev.CreatedAt.Before(r.cursor.LastSeenAt)
	}
	return !ev.CreatedAt.After(r.cursor.LastSeenAt)
}

// advance moves the cursor past an event, matched or not.
func (r *Runner) advance(ctx context.Context, ev Event) {
	r.cursor = Cursor{LastEventID: ev.ID, LastSeenAt: ev.CreatedAt}
	if err := r.cfg.Cursors.PutCursor(ctx, r.cfg.TaskID, r.cfg.AccountID, r.cursor); err != nil {
		r.logger.WithError(err).Warn("Failed to persist poll cursor")
	}
}
