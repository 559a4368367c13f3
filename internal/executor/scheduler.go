package executor

import (
	"context"
	"time"

	"semaphore/pkg/logging"
	"semaphore/pkg/models"
)

// DefaultSchedulerInterval is how often the scheduler scans for due jobs.
const DefaultSchedulerInterval = 15 * time.Second

const dueJobBatchSize = 50

// Scheduler drains durably registered jobs when their instant arrives.
// The scheduled_jobs rows are the source of truth, so pending jobs
// survive process restarts.
type Scheduler struct {
	store       ScheduleStore
	coordinator *Coordinator
	interval    time.Duration
	logger      logging.Logger
}

// NewScheduler creates a scheduler worker.
func NewScheduler(store ScheduleStore, coordinator *Coordinator, logger logging.Logger) *Scheduler {
	return &Scheduler{
		store:       store,
		coordinator: coordinator,
		interval:    DefaultSchedulerInterval,
		logger:      logger,
	}
}

// Start runs the scan loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.WithField("interval", s.interval).Info("Starting dispatch scheduler")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start to pick up jobs that came due while
	// the process was down.
	s.RunDue(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping dispatch scheduler")
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue claims and dispatches every currently due job. Exposed so the
// loop is testable without wall-clock waits.
func (s *Scheduler) RunDue(ctx context.Context) {
	jobs, err := s.store.ListDueJobs(ctx, time.Now(), dueJobBatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list due scheduled jobs")
		return
	}

	for _, job := range jobs {
		s.runOne(ctx, job)
	}
}

func (s *Scheduler) runOne(ctx context.Context, job models.ScheduledJob) {
	log := s.logger.WithFields(logging.Fields{
		"job_id":     job.ID,
		"account_id": job.AccountID,
		"platform":   job.PlatformID,
	})

	// The claim loses against a concurrent cancel or another instance;
	// losing is a no-op.
	claimed, err := s.store.ClaimDueJob(ctx, job.ID)
	if err != nil {
		log.WithError(err).Error("Failed to claim scheduled job")
		return
	}
	if !claimed {
		return
	}

	published, err := s.coordinator.DispatchScheduled(ctx, job)
	if err != nil {
		s.coordinator.metrics.IncDueJob("failed")
		log.WithError(err).Warn("Scheduled dispatch failed")
		if storeErr := s.store.FailScheduledJob(ctx, job.ID, err.Error()); storeErr != nil {
			log.WithError(storeErr).Error("Failed to record scheduled job failure")
		}
		return
	}

	s.coordinator.metrics.IncDueJob("sent")
	log.WithField("post_id", published.PostID).Info("Scheduled dispatch sent")
	if err := s.store.CompleteScheduledJob(ctx, job.ID, published.PostID, published.URL); err != nil {
		log.WithError(err).Error("Failed to record scheduled job completion")
	}
}

// Cancel removes a pending scheduled job. Cancelling a job that has
// already run or was already cancelled is a no-op, not an error.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	return s.store.CancelScheduledJob(ctx, jobID)
}
