package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"semaphore/internal/store"
	"semaphore/internal/tasks"
	"semaphore/pkg/logging"
	"semaphore/pkg/models"
)

type TaskHandler struct {
	tasks   TaskService
	jobs    JobCanceller
	logger  logging.Logger
	metrics *APIMetrics
}

func NewTaskHandler(tasks TaskService, jobs JobCanceller, logger logging.Logger, metrics *APIMetrics) *TaskHandler {
	return &TaskHandler{tasks: tasks, jobs: jobs, logger: logger, metrics: metrics}
}

func (h *TaskHandler) Create(c *gin.Context) {
	var req models.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.IncTask("create", "bad_request")
		c.JSON(http.StatusBadRequest, models.CreateTaskResponse{Error: "Invalid request format"})
		return
	}

	task, duplicate, err := h.tasks.Create(c.Request.Context(), req)
	if err != nil {
		h.metrics.IncTask("create", "rejected")
		c.JSON(http.StatusBadRequest, models.CreateTaskResponse{Error: err.Error()})
		return
	}

	if duplicate {
		h.metrics.IncTask("create", "duplicate")
		c.JSON(http.StatusOK, models.CreateTaskResponse{Success: true, Duplicate: true, Task: task})
		return
	}

	h.metrics.IncTask("create", "created")
	c.JSON(http.StatusCreated, models.CreateTaskResponse{Success: true, Task: task})
}

func (h *TaskHandler) List(c *gin.Context) {
	tasks, err := h.tasks.List(c.Request.Context())
	if err != nil {
		h.metrics.IncTask("list", "error")
		h.logger.WithError(err).Error("Failed to list tasks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tasks"})
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	h.metrics.IncTask("list", "ok")
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get", err)
		return
	}
	h.metrics.IncTask("get", "ok")
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) Update(c *gin.Context) {
	var req models.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.IncTask("update", "bad_request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	task, err := h.tasks.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.respondError(c, "update", err)
		return
	}
	h.metrics.IncTask("update", "ok")
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) Toggle(c *gin.Context) {
	task, err := h.tasks.Toggle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "toggle", err)
		return
	}
	h.metrics.IncTask("toggle", "ok")
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) Delete(c *gin.Context) {
	if err := h.tasks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, "delete", err)
		return
	}
	h.metrics.IncTask("delete", "ok")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *TaskHandler) Executions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.tasks.Executions(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.respondError(c, "executions", err)
		return
	}
	if records == nil {
		records = []models.ExecutionRecord{}
	}
	h.metrics.IncTask("executions", "ok")
	c.JSON(http.StatusOK, gin.H{"executions": records})
}

// CancelJob cancels a pending scheduled job. Cancellation is
// idempotent: cancelling a dispatched or unknown job still answers 200.
func (h *TaskHandler) CancelJob(c *gin.Context) {
	if err := h.jobs.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		h.metrics.IncTask("cancel_job", "error")
		h.logger.WithError(err).Error("Failed to cancel scheduled job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel scheduled job"})
		return
	}
	h.metrics.IncTask("cancel_job", "ok")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *TaskHandler) respondError(c *gin.Context, operation string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		h.metrics.IncTask(operation, "not_found")
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	if errors.Is(err, tasks.ErrInvalidTask) {
		h.metrics.IncTask(operation, "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.metrics.IncTask(operation, "error")
	h.logger.WithError(err).Error("Task operation failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Task operation failed"})
}
