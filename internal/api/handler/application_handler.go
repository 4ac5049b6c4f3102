package handler

import (
	"net/http"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/dto"
	"github.com/cuongbtq/gigmarket-be/internal/api/service"
	"github.com/gin-gonic/gin"
)

// CreateApplication handles POST /api/v1/applications
func (h *ApplicationHandler) CreateApplication(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	var req service.CreateApplicationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	app, err := h.applications.Create(c.Request.Context(), actor, req)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewApplicationDTO(app))
}

// ListMine handles GET /api/v1/applications/me
func (h *ApplicationHandler) ListMine(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	views, err := h.applications.ListMine(c.Request.Context(), actor)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, applicationDTOs(views))
}

// ListForJob handles GET /api/v1/applications/job/:jobId
// ?sort= reorders the pending applications for display
func (h *ApplicationHandler) ListForJob(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}
	jobID, ok := pathID(c, h.logger, "jobId")
	if !ok {
		return
	}

	views, err := h.applications.ListForJob(c.Request.Context(), actor, jobID)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, RankApplications(applicationDTOs(views), c.Query("sort")))
}

// UpdateStatus handles PUT /api/v1/applications/:id
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}
	appID, ok := pathID(c, h.logger, "id")
	if !ok {
		return
	}

	var req dto.UpdateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	app, err := h.applications.UpdateStatus(c.Request.Context(), actor, appID, domain.ApplicationStatus(req.Status))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewApplicationDTO(app))
}

func applicationDTOs(views []service.ApplicationView) []dto.ApplicationDTO {
	out := make([]dto.ApplicationDTO, len(views))
	for i := range views {
		out[i] = dto.NewApplicationViewDTO(&views[i])
	}
	return out
}
