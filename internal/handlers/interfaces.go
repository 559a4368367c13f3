package handlers

import (
	"context"

	"semaphore/pkg/models"
)

type Publisher interface {
	Publish(ctx context.Context, requestID string, req models.PublishRequest) (*models.PublishResponse, error)
}

type TaskService interface {
	Create(ctx context.Context, req models.CreateTaskRequest) (*models.Task, bool, error)
	Get(ctx context.Context, id string) (*models.Task, error)
	List(ctx context.Context) ([]models.Task, error)
	Update(ctx context.Context, id string, req models.CreateTaskRequest) (*models.Task, error)
	Toggle(ctx context.Context, id string) (*models.Task, error)
	Delete(ctx context.Context, id string) error
	Executions(ctx context.Context, id string, limit int) ([]models.ExecutionRecord, error)
}

type JobCanceller interface {
	Cancel(ctx context.Context, jobID string) error
}

// ExecutionReader looks up a persisted execution outcome by its
// request ID.
type ExecutionReader interface {
	GetExecutionByRequestID(ctx context.Context, requestID string) (*models.ExecutionRecord, error)
}
