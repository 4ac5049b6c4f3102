package handler

import (
	"net/http"

	"github.com/cuongbtq/gigmarket-be/internal/api/dto"
	"github.com/cuongbtq/gigmarket-be/internal/api/service"
	"github.com/gin-gonic/gin"
)

// SendMessage handles POST /api/v1/messages
func (h *MessageHandler) SendMessage(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}

	var req service.SendMessageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), actor, req)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewMessageDTO(msg))
}

// ListForJob handles GET /api/v1/messages/job/:jobId
func (h *MessageHandler) ListForJob(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}
	jobID, ok := pathID(c, h.logger, "jobId")
	if !ok {
		return
	}

	msgs, err := h.messages.ListForJob(c.Request.Context(), actor, jobID)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewMessageDTOs(msgs))
}
