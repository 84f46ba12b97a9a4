package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tmn/memelet/internal/domain"
	"github.com/tmn/memelet/internal/logger"
	"github.com/tmn/memelet/internal/repository"
	"github.com/tmn/memelet/internal/service"
)

// JobHandler exposes the pipeline trigger surface: create a job, then
// poll it by id until completed or failed.
type JobHandler struct {
	pipeline *service.Pipeline
	jobs     *repository.JobRepository
}

// NewJobHandler creates a new job handler.
func NewJobHandler(pipeline *service.Pipeline, jobs *repository.JobRepository) *JobHandler {
	return &JobHandler{pipeline: pipeline, jobs: jobs}
}

// TriggerRequest is the POST /jobs payload. IncludeErrors widens a
// process_pending job to retry errored records too.
type TriggerRequest struct {
	Kind          string `json:"kind" binding:"required"`
	TargetID      string `json:"target_id"`
	IncludeErrors bool   `json:"include_errors"`
}

// Trigger creates a job and starts it in the background. The response
// carries the job id; completion is observed by polling GET /jobs/:id.
func (h *JobHandler) Trigger(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	kind := domain.JobKind(req.Kind)
	switch kind {
	case domain.JobKindIngest, domain.JobKindProcessPending:
	case domain.JobKindProcessOne:
		if req.TargetID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "target_id is required for process_one"})
			return
		}
	case domain.JobKindTagScan:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown job kind: " + req.Kind})
		return
	}

	if req.IncludeErrors && kind != domain.JobKindProcessPending {
		c.JSON(http.StatusBadRequest, gin.H{"error": "include_errors only applies to process_pending"})
		return
	}

	job, err := h.pipeline.StartJob(c.Request.Context(), kind, req.TargetID, req.IncludeErrors)
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to create job: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}

	// The job outlives the request; run it on a detached context.
	go h.pipeline.RunJob(context.Background(), job)

	c.JSON(http.StatusAccepted, job)
}

// Get returns one job by id.
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// List returns the most recently created jobs.
func (h *JobHandler) List(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	jobs, err := h.jobs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to list jobs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}
