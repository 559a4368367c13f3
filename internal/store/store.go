package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"semaphore/internal/trigger"
	"semaphore/pkg/models"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetAccount retrieves one connected account by id.
func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	query := `
		SELECT id, platform, handle, display_name, is_active, created_at, updated_at
		FROM semaphore.accounts
		WHERE id = $1
	`
	var acc models.Account
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&acc.ID, &acc.Platform, &acc.Handle, &acc.DisplayName,
		&acc.IsActive, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// GetAccounts retrieves the given accounts in one round trip. Missing
// ids are simply absent from the result; the caller decides whether
// that is an error.
func (s *Store) GetAccounts(ctx context.Context, ids []string) (map[string]models.Account, error) {
	query := `
		SELECT id, platform, handle, display_name, is_active, created_at, updated_at
		FROM semaphore.accounts
		WHERE id = ANY($1)
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make(map[string]models.Account, len(ids))
	for rows.Next() {
		var acc models.Account
		if err := rows.Scan(&acc.ID, &acc.Platform, &acc.Handle, &acc.DisplayName,
			&acc.IsActive, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
			return nil, err
		}
		accounts[acc.ID] = acc
	}
	return accounts, rows.Err()
}

// CreateTask inserts a task and fills in its generated id and
// timestamps.
func (s *Store) CreateTask(ctx context.Context, task *models.Task) error {
	transformations, err := json.Marshal(task.Transformations)
	if err != nil {
		return fmt.Errorf("marshal transformations: %w", err)
	}
	filters, err := json.Marshal(task.Filters)
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}

	query := `
		INSERT INTO semaphore.tasks
			(name, description, source_accounts, target_accounts, status,
			 execution_type, recurring_pattern, schedule_time, transformations, filters)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	return s.db.QueryRowContext(ctx, query,
		task.Name, task.Description,
		pq.Array(task.SourceAccounts), pq.Array(task.TargetAccounts),
		task.Status, task.ExecutionType, task.RecurringPattern, task.ScheduleTime,
		transformations, filters,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
}

// GetTask retrieves a task by id. Soft-deleted tasks are not found.
func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	query := taskSelect + ` WHERE id = $1 AND deleted_at IS NULL`
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return task, err
}

// ListTasks returns all live tasks, newest first.
func (s *Store) ListTasks(ctx context.Context) ([]models.Task, error) {
	query := taskSelect + ` WHERE deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// UpdateTask rewrites a task's mutable fields.
func (s *Store) UpdateTask(ctx context.Context, task *models.Task) error {
	transformations, err := json.Marshal(task.Transformations)
	if err != nil {
		return fmt.Errorf("marshal transformations: %w", err)
	}
	filters, err := json.Marshal(task.Filters)
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}

	query := `
		UPDATE semaphore.tasks SET
			name = $2,
			description = $3,
			source_accounts = $4,
			target_accounts = $5,
			execution_type = $6,
			recurring_pattern = $7,
			schedule_time = $8,
			transformations = $9,
			filters = $10,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		task.ID, task.Name, task.Description,
		pq.Array(task.SourceAccounts), pq.Array(task.TargetAccounts),
		task.ExecutionType, task.RecurringPattern, task.ScheduleTime,
		transformations, filters,
	).Scan(&task.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// SetTaskStatus moves a task between active, paused and error.
func (s *Store) SetTaskStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE semaphore.tasks SET status = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, status)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteTask soft-deletes a task. Its execution history is kept.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE semaphore.tasks SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

const taskSelect = `
	SELECT id, name, description, source_accounts, target_accounts, status,
	       execution_type, recurring_pattern, schedule_time,
	       transformations, filters, created_at, updated_at
	FROM semaphore.tasks`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	var transformations, filters []byte
	err := row.Scan(
		&task.ID, &task.Name, &task.Description,
		pq.Array(&task.SourceAccounts), pq.Array(&task.TargetAccounts),
		&task.Status, &task.ExecutionType, &task.RecurringPattern, &task.ScheduleTime,
		&transformations, &filters, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(transformations, &task.Transformations); err != nil {
		return nil, fmt.Errorf("unmarshal transformations: %w", err)
	}
	if err := json.Unmarshal(filters, &task.Filters); err != nil {
		return nil, fmt.Errorf("unmarshal filters: %w", err)
	}
	return &task, nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetCursor loads the poll cursor for one task/source pair. A missing
// cursor is a fresh start, not an error.
func (s *Store) GetCursor(ctx context.Context, taskID, accountID string) (trigger.Cursor, error) {
	var cursor trigger.Cursor
	err := s.db.QueryRowContext(ctx, `
		SELECT last_event_id, last_seen_at
		FROM semaphore.poll_cursors
		WHERE task_id = $1 AND account_id = $2
	`, taskID, accountID).Scan(&cursor.LastEventID, &cursor.LastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return trigger.Cursor{}, nil
	}
	return cursor, err
}

// PutCursor saves the poll cursor for one task/source pair.
func (s *Store) PutCursor(ctx context.Context, taskID, accountID string, cursor trigger.Cursor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO semaphore.poll_cursors (task_id, account_id, last_event_id, last_seen_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (task_id, account_id) DO UPDATE SET
			last_event_id = EXCLUDED.last_event_id,
			last_seen_at = EXCLUDED.last_seen_at,
			updated_at = NOW()
	`, taskID, accountID, cursor.LastEventID, cursor.LastSeenAt)
	return err
}

// CreateScheduledJob durably registers a future dispatch.
func (s *Store) CreateScheduledJob(ctx context.Context, job *models.ScheduledJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO semaphore.scheduled_jobs
			(id, request_id, task_id, account_id, platform_id, account_name,
			 action, message, media_url, media_kind, scheduled_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		job.ID, job.RequestID, job.TaskID, job.AccountID, job.PlatformID, job.AccountName,
		job.Action, job.Message, job.MediaURL, job.MediaKind, job.ScheduledAt, models.JobStatusPending,
	)
	return err
}

// ClaimDueJob moves a pending job to running. Returns false when
// another scheduler already claimed it or it was cancelled.
func (s *Store) ClaimDueJob(ctx context.Context, jobID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE semaphore.scheduled_jobs SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, jobID, models.JobStatusRunning, models.JobStatusPending)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// CompleteScheduledJob records a successful dispatch.
func (s *Store) CompleteScheduledJob(ctx context.Context, jobID, postID, url string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE semaphore.scheduled_jobs
		SET status = $2, post_id = $3, url = $4, updated_at = NOW()
		WHERE id = $1
	`, jobID, models.JobStatusSent, postID, url)
	return err
}

// FailScheduledJob records a failed dispatch.
func (s *Store) FailScheduledJob(ctx context.Context, jobID, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE semaphore.scheduled_jobs
		SET status = $2, error = $3, updated_at = NOW()
		WHERE id = $1
	`, jobID, models.JobStatusFailed, errMsg)
	return err
}

// CancelScheduledJob cancels a pending job. Cancelling an already
// cancelled, dispatched or unknown job is a no-op.
func (s *Store) CancelScheduledJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE semaphore.scheduled_jobs SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, jobID, models.JobStatusCancelled, models.JobStatusPending)
	return err
}

// ListDueJobs returns pending jobs whose scheduled time has passed,
// oldest first.
func (s *Store) ListDueJobs(ctx context.Context, now time.Time, limit int) ([]models.ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, task_id, account_id, platform_id, account_name,
		       action, message, media_url, media_kind, scheduled_at, status
		FROM semaphore.scheduled_jobs
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
		LIMIT $3
	`, models.JobStatusPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.ScheduledJob
	for rows.Next() {
		var job models.ScheduledJob
		if err := rows.Scan(
			&job.ID, &job.RequestID, &job.TaskID, &job.AccountID, &job.PlatformID, &job.AccountName,
			&job.Action, &job.Message, &job.MediaURL, &job.MediaKind, &job.ScheduledAt, &job.Status,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetScheduledJob retrieves one scheduled job by id.
func (s *Store) GetScheduledJob(ctx context.Context, jobID string) (*models.ScheduledJob, error) {
	var job models.ScheduledJob
	err := s.db.QueryRowContext(ctx, `
		SELECT id, request_id, task_id, account_id, platform_id, account_name,
		       action, message, media_url, media_kind, scheduled_at, status,
		       COALESCE(post_id, ''), COALESCE(url, ''), COALESCE(error, '')
		FROM semaphore.scheduled_jobs
		WHERE id = $1
	`, jobID).Scan(
		&job.ID, &job.RequestID, &job.TaskID, &job.AccountID, &job.PlatformID, &job.AccountName,
		&job.Action, &job.Message, &job.MediaURL, &job.MediaKind, &job.ScheduledAt, &job.Status,
		&job.PostID, &job.URL, &job.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// RecordExecution persists one task firing's outcome.
func (s *Store) RecordExecution(ctx context.Context, record *models.ExecutionRecord) error {
	results, err := json.Marshal(record.Results)
	if err != nil {
		return fmt.Errorf("marshal execution results: %w", err)
	}
	return s.db.QueryRowContext(ctx, `
		INSERT INTO semaphore.execution_records
			(task_id, request_id, fired_at, overall_status, succeeded, failed, results)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		record.TaskID, record.RequestID, record.FiredAt, record.OverallStatus,
		record.Succeeded, record.Failed, results,
	).Scan(&record.ID)
}

// ListExecutions returns a task's most recent firings.
func (s *Store) ListExecutions(ctx context.Context, taskID string, limit int) ([]models.ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, request_id, fired_at, overall_status, succeeded, failed, results
		FROM semaphore.execution_records
		WHERE task_id = $1
		ORDER BY fired_at DESC
		LIMIT $2
	`, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ExecutionRecord
	for rows.Next() {
		var record models.ExecutionRecord
		var results []byte
		if err := rows.Scan(
			&record.ID, &record.TaskID, &record.RequestID, &record.FiredAt,
			&record.OverallStatus, &record.Succeeded, &record.Failed, &results,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(results, &record.Results); err != nil {
			return nil, fmt.Errorf("unmarshal execution results: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetExecutionByRequestID looks up one execution outcome by its
// request ID. Covers manual publishes, which have no task.
func (s *Store) GetExecutionByRequestID(ctx context.Context, requestID string) (*models.ExecutionRecord, error) {
	var record models.ExecutionRecord
	var results []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, request_id, fired_at, overall_status, succeeded, failed, results
		FROM semaphore.execution_records
		WHERE request_id = $1
	`, requestID).Scan(
		&record.ID, &record.TaskID, &record.RequestID, &record.FiredAt,
		&record.OverallStatus, &record.Succeeded, &record.Failed, &results,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(results, &record.Results); err != nil {
		return nil, fmt.Errorf("unmarshal execution results: %w", err)
	}
	return &record, nil
}

// Compile-time interface checks against the packages that consume the
// store through narrow interfaces.
var _ trigger.CursorStore = (*Store)(nil)
