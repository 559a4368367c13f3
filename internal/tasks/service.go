package tasks

import (
	"context"
	"errors"
	"fmt"

	"semaphore/internal/trigger"
	"semaphore/pkg/logging"
	"semaphore/pkg/models"
)

// ErrInvalidTask wraps every task-definition validation failure.
var ErrInvalidTask = errors.New("invalid task definition")

// Store is the persistence the task service needs.
type Store interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context) ([]models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	SetTaskStatus(ctx context.Context, id, status string) error
	DeleteTask(ctx context.Context, id string) error
	ListExecutions(ctx context.Context, taskID string, limit int) ([]models.ExecutionRecord, error)
}

// Lifecycle is notified when a task's poll loop should start or stop.
// The engine implements it; tests use a fake.
type Lifecycle interface {
	TaskStarted(task *models.Task)
	TaskStopped(taskID string)
}

type Service struct {
	store     Store
	lifecycle Lifecycle
	logger    logging.Logger
}

func NewService(store Store, lifecycle Lifecycle, logger logging.Logger) *Service {
	return &Service{store: store, lifecycle: lifecycle, logger: logger}
}

// Create stores a new task, or returns the existing one when the
// request duplicates it. Duplicate submission is idempotent.
func (s *Service) Create(ctx context.Context, req models.CreateTaskRequest) (*models.Task, bool, error) {
	if err := validateRequest(req); err != nil {
		return nil, false, err
	}

	existing, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("list tasks: %w", err)
	}
	if dup := FindDuplicate(req, existing); dup != nil {
		s.logger.WithFields(logging.Fields{
			"task_id": dup.ID,
			"name":    req.Name,
		}).Info("Duplicate task submission, returning existing task")
		return dup, true, nil
	}

	task := &models.Task{
		Name:             req.Name,
		Description:      req.Description,
		SourceAccounts:   req.SourceAccounts,
		TargetAccounts:   req.TargetAccounts,
		Status:           models.TaskStatusActive,
		ExecutionType:    req.ExecutionType,
		RecurringPattern: req.RecurringPattern,
		ScheduleTime:     req.ScheduleTime,
		Transformations:  req.Transformations,
		Filters:          req.Filters,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, false, fmt.Errorf("create task: %w", err)
	}

	if s.lifecycle != nil {
		s.lifecycle.TaskStarted(task)
	}
	return task, false, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Task, error) {
	return s.store.GetTask(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]models.Task, error) {
	return s.store.ListTasks(ctx)
}

// Update rewrites a task's definition and restarts its poll loop so
// the new trigger settings take effect.
func (s *Service) Update(ctx context.Context, id string, req models.CreateTaskRequest) (*models.Task, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	task.Name = req.Name
	task.Description = req.Description
	task.SourceAccounts = req.SourceAccounts
	task.TargetAccounts = req.TargetAccounts
	task.ExecutionType = req.ExecutionType
	task.RecurringPattern = req.RecurringPattern
	task.ScheduleTime = req.ScheduleTime
	task.Transformations = req.Transformations
	task.Filters = req.Filters

	if err := s.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}

	if s.lifecycle != nil {
		s.lifecycle.TaskStopped(task.ID)
		if task.Status == models.TaskStatusActive {
			s.lifecycle.TaskStarted(task)
		}
	}
	return task, nil
}

// Toggle flips a task between active and paused. Toggling a task in
// the error state reactivates it.
func (s *Service) Toggle(ctx context.Context, id string) (*models.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	next := models.TaskStatusPaused
	if task.Status != models.TaskStatusActive {
		next = models.TaskStatusActive
	}
	if err := s.store.SetTaskStatus(ctx, id, next); err != nil {
		return nil, err
	}
	task.Status = next

	if s.lifecycle != nil {
		if next == models.TaskStatusActive {
			s.lifecycle.TaskStarted(task)
		} else {
			s.lifecycle.TaskStopped(task.ID)
		}
	}
	return task, nil
}

// Delete soft-deletes a task and stops its poll loop.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	if s.lifecycle != nil {
		s.lifecycle.TaskStopped(id)
	}
	return nil
}

// MarkError moves a task to the error state after its poll loop gave
// up. The loop has already stopped itself, so no lifecycle call here.
func (s *Service) MarkError(ctx context.Context, id string) error {
	return s.store.SetTaskStatus(ctx, id, models.TaskStatusError)
}

// Executions returns a task's most recent firings.
func (s *Service) Executions(ctx context.Context, id string, limit int) ([]models.ExecutionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if _, err := s.store.GetTask(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListExecutions(ctx, id, limit)
}

func validateRequest(req models.CreateTaskRequest) error {
	if req.Name == "" {
		return fmt.Errorf("%w: task name is required", ErrInvalidTask)
	}
	if len(req.SourceAccounts) == 0 {
		return fmt.Errorf("%w: at least one source account is required", ErrInvalidTask)
	}
	if len(req.TargetAccounts) == 0 {
		return fmt.Errorf("%w: at least one target account is required", ErrInvalidTask)
	}
	if req.Filters.TriggerType == "" {
		return fmt.Errorf("%w: trigger type is required", ErrInvalidTask)
	}
	if _, err := trigger.ParseType(req.Filters.TriggerType); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	return nil
}
