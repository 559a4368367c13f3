package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"semaphore/internal/store"
	"semaphore/pkg/logging"
	"semaphore/pkg/middleware"
	"semaphore/pkg/models"
)

type PublishHandler struct {
	publisher  Publisher
	executions ExecutionReader
	logger     logging.Logger
	metrics    *APIMetrics
}

func NewPublishHandler(publisher Publisher, executions ExecutionReader, logger logging.Logger, metrics *APIMetrics) *PublishHandler {
	return &PublishHandler{publisher: publisher, executions: executions, logger: logger, metrics: metrics}
}

func (h *PublishHandler) Handle(c *gin.Context) {
	var req models.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.IncPublish("bad_request")
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request format",
		})
		return
	}

	requestID := middleware.GetRequestID(c)
	resp, err := h.publisher.Publish(c.Request.Context(), requestID, req)
	if err != nil {
		h.metrics.IncPublish("rejected")
		h.logger.WithFields(logging.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Publish request rejected")
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	switch {
	case resp.Success:
		h.metrics.IncPublish("success")
	case resp.PartialSuccess:
		h.metrics.IncPublish("partial")
	default:
		h.metrics.IncPublish("failed")
	}

	// A request that reached dispatch always answers 200; per-target
	// outcomes are in the body.
	c.JSON(http.StatusOK, resp)
}

// Result returns the persisted outcome of an earlier publish request.
func (h *PublishHandler) Result(c *gin.Context) {
	requestID := c.Param("requestID")
	record, err := h.executions.GetExecutionByRequestID(c.Request.Context(), requestID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Publish request not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("request_id", requestID).Error("Failed to load publish record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load publish record"})
		return
	}
	c.JSON(http.StatusOK, record)
}
