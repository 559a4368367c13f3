package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"semaphore/internal/adapter"
	"semaphore/internal/executor"
	"semaphore/internal/planner"
	"semaphore/internal/platform"
	"semaphore/internal/trigger"
	"semaphore/pkg/logging"
	"semaphore/pkg/models"
)

// Store is the persistence the engine needs.
type Store interface {
	GetAccounts(ctx context.Context, ids []string) (map[string]models.Account, error)
	ListTasks(ctx context.Context) ([]models.Task, error)
	SetTaskStatus(ctx context.Context, id, status string) error
	RecordExecution(ctx context.Context, record *models.ExecutionRecord) error
}

// Engine ties the adaptation pipeline together: it turns publish
// requests and trigger firings into dispatch plans, hands them to the
// coordinator, and manages the poll loop of every active task.
type Engine struct {
	store       Store
	planner     *planner.Planner
	coordinator *executor.Coordinator
	source      trigger.EventSource
	cursors     trigger.CursorStore
	logger      logging.Logger

	mu      sync.Mutex
	baseCtx context.Context
	runners map[string][]runnerHandle
}

type runnerHandle struct {
	runner *trigger.Runner
	cancel context.CancelFunc
}

func NewEngine(store Store, p *planner.Planner, coordinator *executor.Coordinator, source trigger.EventSource, cursors trigger.CursorStore, logger logging.Logger) *Engine {
	return &Engine{
		store:       store,
		planner:     p,
		coordinator: coordinator,
		source:      source,
		cursors:     cursors,
		logger:      logger,
		baseCtx:     context.Background(),
		runners:     make(map[string][]runnerHandle),
	}
}

// Run loads every active task and starts its poll loops. Poll loops
// live until ctx is cancelled or their task is stopped.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.baseCtx = ctx
	e.mu.Unlock()

	tasks, err := e.store.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	for i := range tasks {
		if tasks[i].Status == models.TaskStatusActive {
			e.TaskStarted(&tasks[i])
		}
	}
	e.logger.WithField("active_tasks", len(e.runners)).Info("Engine started")

	<-ctx.Done()
	return nil
}

// Publish runs a manual publish request through the full pipeline and
// returns a response covering every requested target exactly once.
func (e *Engine) Publish(ctx context.Context, requestID string, req models.PublishRequest) (*models.PublishResponse, error) {
	mode := adapter.Mode(req.Mode)
	if mode == "" {
		mode = adapter.ModeNow
	}
	if mode != adapter.ModeNow && mode != adapter.ModeSchedule {
		return nil, fmt.Errorf("unknown publish mode %q", req.Mode)
	}
	opts := adapter.Options{Mode: mode}
	if mode == adapter.ModeSchedule {
		if req.ScheduledAt == nil {
			return nil, fmt.Errorf("scheduledAt is required for scheduled publishing")
		}
		opts.ScheduledAt = *req.ScheduledAt
	}
	if len(req.TargetAccountIDs) == 0 {
		return nil, fmt.Errorf("at least one target account is required")
	}

	accounts, err := e.store.GetAccounts(ctx, req.TargetAccountIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve target accounts: %w", err)
	}

	total := len(req.TargetAccountIDs)
	validation := make([]models.TargetValidation, total)
	results := make([]models.TargetResult, total)

	var targets []adapter.Target
	var targetIndex []int
	for i, accountID := range req.TargetAccountIDs {
		acc, ok := accounts[accountID]
		if !ok || !acc.IsActive {
			reason := "account not found"
			if ok {
				reason = "account is inactive"
			}
			validation[i] = models.TargetValidation{
				AccountID: accountID,
				Issues:    []models.ValidationIssue{{Level: string(adapter.LevelError), Message: reason}},
			}
			results[i] = models.TargetResult{AccountID: accountID, Error: reason}
			continue
		}
		targets = append(targets, adapter.Target{
			AccountID:       acc.ID,
			PlatformID:      platform.ID(acc.Platform),
			AccountName:     "@" + acc.Handle,
			Action:          platform.ActionPost,
			OverrideMessage: req.PerTargetOverrides[accountID],
		})
		targetIndex = append(targetIndex, i)
	}

	draft := adapter.Draft{
		Text:         req.Message,
		MediaURL:     req.MediaURL,
		MediaKind:    platform.MediaKind(req.MediaType),
		Prepend:      req.PrependText,
		Append:       req.AppendText,
		Hashtags:     req.Hashtags,
		IncludeMedia: req.MediaURL != "",
	}

	resp := &models.PublishResponse{
		Mode:       string(mode),
		Validation: validation,
		Results:    results,
	}
	if mode == adapter.ModeSchedule {
		resp.ScheduledAt = req.ScheduledAt
	}

	if len(targets) > 0 {
		plan, planErr := e.planner.Plan(draft, adapter.Source{}, targets, opts)
		if planErr != nil && !errors.Is(planErr, planner.ErrNoViableTargets) {
			return nil, planErr
		}

		for j, v := range plan.Validations() {
			validation[targetIndex[j]] = toTargetValidation(v)
		}

		result := e.coordinator.Execute(ctx, plan, executor.Request{RequestID: requestID})
		for j, r := range result.Results {
			results[targetIndex[j]] = r
		}
	}

	for _, r := range results {
		if r.Success {
			resp.SucceededCount++
		} else {
			resp.FailedCount++
		}
	}
	resp.Success = resp.FailedCount == 0 && resp.SucceededCount > 0
	resp.PartialSuccess = resp.SucceededCount > 0 && resp.FailedCount > 0

	// Persisted so the outcome stays retrievable by request ID after
	// the response is gone.
	record := &models.ExecutionRecord{
		RequestID:     requestID,
		FiredAt:       time.Now().UTC(),
		OverallStatus: overallStatus(resp.SucceededCount, resp.FailedCount),
		Succeeded:     resp.SucceededCount,
		Failed:        resp.FailedCount,
		Results:       results,
	}
	if err := e.store.RecordExecution(ctx, record); err != nil {
		e.logger.WithError(err).WithField("request_id", requestID).Error("Failed to persist publish record")
	}
	return resp, nil
}

func overallStatus(succeeded, failed int) string {
	switch {
	case failed == 0 && succeeded > 0:
		return models.StatusSuccess
	case succeeded == 0:
		return models.StatusFailed
	default:
		return models.StatusPartial
	}
}

// FireTask runs one trigger firing through adaptation and dispatch and
// persists the outcome as an execution record.
func (e *Engine) FireTask(ctx context.Context, task *models.Task, ev trigger.Event) error {
	requestID := uuid.NewString()
	log := e.logger.WithFields(logging.Fields{
		"task_id":    task.ID,
		"event_id":   ev.ID,
		"request_id": requestID,
	})

	accounts, err := e.store.GetAccounts(ctx, task.TargetAccounts)
	if err != nil {
		return fmt.Errorf("resolve target accounts: %w", err)
	}

	actions := taskActions(task.Transformations.TwitterActions)
	var targets []adapter.Target
	for _, accountID := range task.TargetAccounts {
		acc, ok := accounts[accountID]
		if !ok || !acc.IsActive {
			log.WithField("account_id", accountID).Warn("Skipping unavailable target account")
			continue
		}
		// Each selected action is an independent dispatch job.
		for _, action := range actions {
			targets = append(targets, adapter.Target{
				AccountID:   acc.ID,
				PlatformID:  platform.ID(acc.Platform),
				AccountName: "@" + acc.Handle,
				Action:      action,
			})
		}
	}
	if len(targets) == 0 {
		log.Warn("Task fired with no available target accounts")
		return nil
	}

	draft := adapter.Draft{
		Text:          ev.Text,
		MediaURL:      ev.MediaURL,
		MediaKind:     mediaKindFromURL(ev.MediaURL),
		Template:      task.Transformations.Template,
		Prepend:       task.Transformations.PrependText,
		Append:        task.Transformations.AppendText,
		Hashtags:      task.Transformations.AddHashtags,
		IncludeSource: task.Transformations.IncludeSource,
		IncludeMedia:  task.Transformations.IncludeMedia,
	}
	source := adapter.Source{EventID: ev.ID, Username: ev.Username, Name: ev.Name, Link: ev.Link}

	plan, err := e.planner.Plan(draft, source, targets, adapter.Options{Mode: adapter.ModeNow})
	if err != nil && !errors.Is(err, planner.ErrNoViableTargets) {
		return err
	}

	result := e.coordinator.Execute(ctx, plan, executor.Request{RequestID: requestID, TaskID: task.ID})
	log.WithFields(logging.Fields{
		"status":    result.OverallStatus,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}).Info("Task firing dispatched")

	record := &models.ExecutionRecord{
		TaskID:        task.ID,
		RequestID:     requestID,
		FiredAt:       time.Now().UTC(),
		OverallStatus: result.OverallStatus,
		Succeeded:     result.Succeeded,
		Failed:        result.Failed,
		Results:       result.Results,
	}
	if err := e.store.RecordExecution(ctx, record); err != nil {
		log.WithError(err).Error("Failed to persist execution record")
	}
	return nil
}

// TaskStarted spins up one poll loop per source account of the task.
func (e *Engine) TaskStarted(task *models.Task) {
	triggerType, err := trigger.ParseType(task.Filters.TriggerType)
	if err != nil {
		e.logger.WithError(err).WithField("task_id", task.ID).Error("Cannot start poll loop")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, running := e.runners[task.ID]; running {
		return
	}

	snapshot := *task
	filters := trigger.Filters{
		OriginalOnly:    task.Filters.OriginalOnly,
		ExcludeReplies:  task.Filters.ExcludeReplies,
		ExcludeRetweets: task.Filters.ExcludeRetweets,
		ExcludeQuotes:   task.Filters.ExcludeQuotes,
		TriggerValue:    task.Filters.TriggerValue,
	}

	var handles []runnerHandle
	for _, accountID := range task.SourceAccounts {
		runCtx, cancel := context.WithCancel(e.baseCtx)
		runner := trigger.NewRunner(trigger.RunnerConfig{
			TaskID:       task.ID,
			AccountID:    accountID,
			TriggerType:  triggerType,
			Filters:      filters,
			PollInterval: time.Duration(task.Filters.PollIntervalSeconds) * time.Second,
			Source:       e.source,
			Cursors:      e.cursors,
			OnFire: func(ctx context.Context, ev trigger.Event) error {
				return e.FireTask(ctx, &snapshot, ev)
			},
			OnError: e.disableTask,
			Logger:  e.logger,
		})
		handles = append(handles, runnerHandle{runner: runner, cancel: cancel})
		go runner.Start(runCtx)
	}
	e.runners[task.ID] = handles
	e.logger.WithFields(logging.Fields{
		"task_id": task.ID,
		"sources": len(handles),
	}).Info("Started task poll loops")
}

// TaskStopped cancels every poll loop of the task. Stopping a task
// with no running loops is a no-op.
func (e *Engine) TaskStopped(taskID string) {
	e.mu.Lock()
	handles := e.runners[taskID]
	delete(e.runners, taskID)
	e.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	if len(handles) > 0 {
		e.logger.WithField("task_id", taskID).Info("Stopped task poll loops")
	}
}

// RunningTasks reports which tasks currently have live poll loops.
func (e *Engine) RunningTasks() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.runners))
	for id := range e.runners {
		ids = append(ids, id)
	}
	return ids
}

// disableTask is invoked by a poll runner after too many consecutive
// fetch failures. The runner has already disabled itself.
func (e *Engine) disableTask(taskID string) {
	if err := e.store.SetTaskStatus(context.Background(), taskID, models.TaskStatusError); err != nil {
		e.logger.WithError(err).WithField("task_id", taskID).Error("Failed to mark task as errored")
	}
	e.TaskStopped(taskID)
}

func toTargetValidation(v planner.TargetValidation) models.TargetValidation {
	out := models.TargetValidation{
		AccountID:   v.Target.AccountID,
		PlatformID:  string(v.Target.PlatformID),
		AccountName: v.Target.AccountName,
	}
	for _, issue := range v.Content.Issues {
		out.Issues = append(out.Issues, models.ValidationIssue{
			Level:   string(issue.Level),
			Message: issue.Message,
		})
	}
	return out
}

func taskActions(selected []string) []platform.Action {
	if len(selected) == 0 {
		return []platform.Action{platform.ActionPost}
	}
	var actions []platform.Action
	for _, s := range selected {
		actions = append(actions, platform.Action(strings.ToLower(s)))
	}
	return actions
}

func mediaKindFromURL(url string) platform.MediaKind {
	if url == "" {
		return ""
	}
	lower := strings.ToLower(url)
	for _, ext := range []string{".mp4", ".mov", ".webm", ".m3u8"} {
		if strings.HasSuffix(lower, ext) {
			return platform.MediaVideo
		}
	}
	return platform.MediaImage
}
