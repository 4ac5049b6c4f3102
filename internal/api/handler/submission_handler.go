package handler

import (
	"net/http"

	"github.com/cuongbtq/gigmarket-be/internal/api/dto"
	"github.com/cuongbtq/gigmarket-be/internal/api/service"
	"github.com/gin-gonic/gin"
)

// SubmitWork handles POST /api/v1/submissions
func (h *SubmissionHandler) SubmitWork(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	var req service.SubmitWorkInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	sub, err := h.submissions.Submit(c.Request.Context(), actor, req)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewSubmissionDTO(sub))
}

// ListForJob handles GET /api/v1/submissions/job/:jobId
func (h *SubmissionHandler) ListForJob(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}
	jobID, ok := pathID(c, h.logger, "jobId")
	if !ok {
		return
	}

	subs, err := h.submissions.ListForJob(c.Request.Context(), actor, jobID)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSubmissionDTOs(subs))
}

// Review handles PUT /api/v1/submissions/:id
func (h *SubmissionHandler) Review(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}
	subID, ok := pathID(c, h.logger, "id")
	if !ok {
		return
	}

	var req service.ReviewInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	sub, err := h.submissions.UpdateStatus(c.Request.Context(), actor, subID, req)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSubmissionDTO(sub))
}
