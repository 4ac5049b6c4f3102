package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/dto"
	"github.com/cuongbtq/gigmarket-be/internal/api/service"
	"github.com/gin-gonic/gin"
)

// CreateJob handles POST /api/v1/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	var req service.CreateJobInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	job, err := h.jobs.Create(c.Request.Context(), actor, req)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewJobDTO(job))
}

// GetJob handles GET /api/v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := pathID(c, h.logger, "id")
	if !ok {
		return
	}

	view, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobViewDTO(view))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with optional filtering and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Debug("Invalid query parameters", slog.String("error", err.Error()))
		RespondError(c, h.logger, domain.NewFieldError("query", "invalid query parameters"))
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Debug("Invalid cursor", slog.String("error", err.Error()))
		RespondError(c, h.logger, domain.NewFieldError("cursor", "is not a valid cursor"))
		return
	}

	page, err := h.jobs.ListPage(c.Request.Context(), service.JobQuery{
		Domain:     req.Domain,
		Status:     domain.JobStatus(req.Status),
		EmployerID: req.EmployerID,
		Keyword:    req.Keyword,
		PageSize:   req.PageSize,
		Cursor:     cursor,
	})
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	resp := dto.ListJobsResponse{Jobs: dto.NewJobDTOs(page.Jobs)}
	if page.Next != nil {
		resp.NextCursor = EncodeJobCursor(page.Next)
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateJob handles PUT /api/v1/jobs/:id
// Only the fields present in the body change
func (h *JobHandler) UpdateJob(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}
	jobID, ok := pathID(c, h.logger, "id")
	if !ok {
		return
	}

	var patch service.JobPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		bindError(c, h.logger, err)
		return
	}

	job, err := h.jobs.Update(c.Request.Context(), actor, jobID, patch)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// DeleteJob handles DELETE /api/v1/jobs/:id
func (h *JobHandler) DeleteJob(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}
	jobID, ok := pathID(c, h.logger, "id")
	if !ok {
		return
	}

	if err := h.jobs.Delete(c.Request.Context(), actor, jobID); err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}
