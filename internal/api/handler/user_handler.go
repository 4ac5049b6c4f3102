package handler

import (
	"net/http"

	"github.com/cuongbtq/gigmarket-be/internal/api/dto"
	"github.com/cuongbtq/gigmarket-be/internal/api/service"
	"github.com/gin-gonic/gin"
)

// Me handles GET /api/v1/users/me
func (h *UserHandler) Me(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	user, err := h.users.Me(c.Request.Context(), actor)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewUserDTO(user))
}

// UpdateMe handles PUT /api/v1/users/me
func (h *UserHandler) UpdateMe(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	var req service.ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	user, err := h.users.UpdateMe(c.Request.Context(), actor, req)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewUserDTO(user))
}
