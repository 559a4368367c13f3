package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"semaphore/internal/adapter"
	"semaphore/internal/clients"
	"semaphore/internal/planner"
	"semaphore/internal/platform"
	"semaphore/internal/ratelimit"
	"semaphore/pkg/kafka"
	"semaphore/pkg/logging"
	"semaphore/pkg/models"
)

// DefaultMaxPerPlatform bounds concurrent dispatches per destination
// platform within one process.
const DefaultMaxPerPlatform = 4

// ScheduleStore durably records scheduled jobs. Registration must
// complete before a scheduled dispatch is acknowledged as accepted.
type ScheduleStore interface {
	CreateScheduledJob(ctx context.Context, job *models.ScheduledJob) error
	ClaimDueJob(ctx context.Context, jobID string) (bool, error)
	CompleteScheduledJob(ctx context.Context, jobID, postID, url string) error
	FailScheduledJob(ctx context.Context, jobID, errMsg string) error
	CancelScheduledJob(ctx context.Context, jobID string) error
	ListDueJobs(ctx context.Context, now time.Time, limit int) ([]models.ScheduledJob, error)
}

// EventSink receives one event per completed fan-out. Optional.
type EventSink interface {
	PublishExecutionEvent(event *kafka.ExecutionEvent) error
}

// Request carries per-execution metadata into the coordinator.
type Request struct {
	RequestID string
	TaskID    string // empty for manual publishes
}

// Result is the aggregate outcome of one execution request. Results
// covers every originally requested target in request order.
type Result struct {
	Results       []models.TargetResult
	Succeeded     int
	Failed        int
	OverallStatus string
}

// Coordinator fans a dispatch plan out to platform clients with
// per-job fault isolation: one job's failure never blocks or rolls
// back its siblings.
type Coordinator struct {
	provider clients.Provider
	store    ScheduleStore
	limiter  *ratelimit.Limiter
	sink     EventSink
	logger   logging.Logger
	metrics  *Metrics

	maxPerPlatform int64
	mu             sync.Mutex
	sems           map[platform.ID]*semaphore.Weighted
}

// NewCoordinator wires the coordinator. sink may be nil.
func NewCoordinator(provider clients.Provider, store ScheduleStore, limiter *ratelimit.Limiter, sink EventSink, logger logging.Logger, metrics *Metrics) *Coordinator {
	return &Coordinator{
		provider:       provider,
		store:          store,
		limiter:        limiter,
		sink:           sink,
		logger:         logger,
		metrics:        metrics,
		maxPerPlatform: DefaultMaxPerPlatform,
		sems:           make(map[platform.ID]*semaphore.Weighted),
	}
}

func (c *Coordinator) platformSem(id platform.ID) *semaphore.Weighted {
	c.mu.Lock()
	defer c.mu.Unlock()
	sem, ok := c.sems[id]
	if !ok {
		sem = semaphore.NewWeighted(c.maxPerPlatform)
		c.sems[id] = sem
	}
	return sem
}

// Execute runs every job in the plan and aggregates the outcome.
// Immediate jobs run concurrently, bounded per destination platform;
// scheduled jobs are durably registered before being acknowledged.
// Pre-excluded targets are reported as failures carrying their
// adaptation issues.
func (c *Coordinator) Execute(ctx context.Context, plan planner.Plan, req Request) Result {
	results := make([]models.TargetResult, plan.TargetCount())

	for _, ex := range plan.Excluded {
		results[ex.Index] = models.TargetResult{
			AccountID:   ex.Target.AccountID,
			PlatformID:  string(ex.Target.PlatformID),
			AccountName: ex.Target.AccountName,
			Success:     false,
			Error:       ex.Content.ErrorText(),
		}
	}

	var wg sync.WaitGroup
	for _, job := range plan.Jobs {
		if job.Mode == adapter.ModeSchedule {
			// Durable registration happens synchronously so a
			// registration failure is reported to the caller, not
			// silently dropped.
			results[job.Index] = c.registerScheduled(ctx, job, req)
			continue
		}

		wg.Add(1)
		go func(job planner.Job) {
			defer wg.Done()
			results[job.Index] = c.dispatchNow(ctx, job, req)
		}(job)
	}
	wg.Wait()

	result := aggregate(results)
	c.emitEvent(req, result)
	return result
}

func (c *Coordinator) dispatchNow(ctx context.Context, job planner.Job, req Request) models.TargetResult {
	res := models.TargetResult{
		AccountID:   job.Target.AccountID,
		PlatformID:  string(job.Target.PlatformID),
		AccountName: job.Target.AccountName,
	}
	start := time.Now()

	sem := c.platformSem(job.Target.PlatformID)
	if err := sem.Acquire(ctx, 1); err != nil {
		res.Error = "dispatch cancelled: " + err.Error()
		c.metrics.IncDispatch(string(job.Target.PlatformID), "cancelled")
		return res
	}
	defer sem.Release(1)

	if err := c.limiter.Wait(ctx, job.Target.PlatformID); err != nil {
		res.Error = "dispatch cancelled: " + err.Error()
		c.metrics.IncDispatch(string(job.Target.PlatformID), "cancelled")
		return res
	}

	client, err := c.provider.ClientFor(job.Target.PlatformID, job.Target.AccountID)
	if err != nil {
		res.Error = err.Error()
		c.metrics.IncDispatch(string(job.Target.PlatformID), "error")
		return res
	}

	published, err := client.Publish(ctx, clients.Payload{
		AccountID:  job.Target.AccountID,
		Platform:   job.Target.PlatformID,
		Action:     job.Target.Action,
		Message:    job.Content.Message,
		MediaURL:   job.Content.MediaURL,
		MediaKind:  job.Content.MediaKind,
		RefEventID: job.RefEventID,
		RequestID:  req.RequestID,
	})
	c.metrics.ObserveDispatch(string(job.Target.PlatformID), time.Since(start))
	if err != nil {
		// Recorded in this target's slot only; never retried within
		// the same execution and never propagated to sibling jobs.
		res.Error = err.Error()
		c.metrics.IncDispatch(string(job.Target.PlatformID), "error")
		c.logger.WithError(err).WithFields(logging.Fields{
			"request_id": req.RequestID,
			"account_id": job.Target.AccountID,
			"platform":   job.Target.PlatformID,
		}).Warn("Dispatch failed")
		return res
	}

	res.Success = true
	res.PostID = published.PostID
	res.URL = published.URL
	c.metrics.IncDispatch(string(job.Target.PlatformID), "success")
	return res
}

func (c *Coordinator) registerScheduled(ctx context.Context, job planner.Job, req Request) models.TargetResult {
	res := models.TargetResult{
		AccountID:   job.Target.AccountID,
		PlatformID:  string(job.Target.PlatformID),
		AccountName: job.Target.AccountName,
	}

	scheduled := &models.ScheduledJob{
		ID:          job.ID,
		RequestID:   req.RequestID,
		AccountID:   job.Target.AccountID,
		PlatformID:  string(job.Target.PlatformID),
		AccountName: job.Target.AccountName,
		Action:      string(job.Target.Action),
		Message:     job.Content.Message,
		MediaURL:    job.Content.MediaURL,
		MediaKind:   string(job.Content.MediaKind),
		ScheduledAt: job.ScheduledAt,
		Status:      models.JobStatusPending,
	}
	if req.TaskID != "" {
		taskID := req.TaskID
		scheduled.TaskID = &taskID
	}

	if err := c.store.CreateScheduledJob(ctx, scheduled); err != nil {
		res.Error = "failed to register scheduled job: " + err.Error()
		c.metrics.IncDispatch(string(job.Target.PlatformID), "schedule_error")
		return res
	}

	scheduledAt := job.ScheduledAt
	res.Success = true
	res.ScheduledFor = &scheduledAt
	c.metrics.IncDispatch(string(job.Target.PlatformID), "scheduled")
	return res
}

// DispatchScheduled sends one due scheduled job. Used by the scheduler
// worker after claiming the row.
func (c *Coordinator) DispatchScheduled(ctx context.Context, job models.ScheduledJob) (*clients.PublishResult, error) {
	if err := c.limiter.Wait(ctx, platform.ID(job.PlatformID)); err != nil {
		return nil, err
	}

	client, err := c.provider.ClientFor(platform.ID(job.PlatformID), job.AccountID)
	if err != nil {
		return nil, err
	}

	return client.Publish(ctx, clients.Payload{
		AccountID: job.AccountID,
		Platform:  platform.ID(job.PlatformID),
		Action:    platform.Action(job.Action),
		Message:   job.Message,
		MediaURL:  job.MediaURL,
		MediaKind: platform.MediaKind(job.MediaKind),
		RequestID: job.RequestID,
	})
}

func aggregate(results []models.TargetResult) Result {
	result := Result{Results: results}
	for _, r := range results {
		if r.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	switch {
	case result.Failed == 0 && result.Succeeded > 0:
		result.OverallStatus = models.StatusSuccess
	case result.Succeeded == 0:
		result.OverallStatus = models.StatusFailed
	default:
		result.OverallStatus = models.StatusPartial
	}
	return result
}

func (c *Coordinator) emitEvent(req Request, result Result) {
	if c.sink == nil {
		return
	}

	event := &kafka.ExecutionEvent{
		EventID:       uuid.NewString(),
		EventType:     "manual_publish",
		Timestamp:     time.Now().UTC(),
		Source:        "semaphore",
		RequestID:     req.RequestID,
		OverallStatus: result.OverallStatus,
		Succeeded:     result.Succeeded,
		Failed:        result.Failed,
		SchemaVersion: "1.0",
	}
	if req.TaskID != "" {
		taskID := req.TaskID
		event.TaskID = &taskID
		event.EventType = "task_firing"
	}
	for _, r := range result.Results {
		event.Results = append(event.Results, kafka.ExecutionTarget{
			AccountID:  r.AccountID,
			PlatformID: r.PlatformID,
			Success:    r.Success,
			PostID:     r.PostID,
			Error:      r.Error,
		})
	}

	if err := c.sink.PublishExecutionEvent(event); err != nil {
		c.logger.WithError(err).Warn("Failed to emit execution event")
	}
}
