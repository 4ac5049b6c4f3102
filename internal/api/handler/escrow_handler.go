package handler

import (
	"context"
	"net/http"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/dto"
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/cuongbtq/gigmarket-be/internal/api/service"
	"github.com/gin-gonic/gin"
)

// FundEscrow handles POST /api/v1/jobs/:id/escrow
func (h *JobHandler) FundEscrow(c *gin.Context) {
	actor, ok := caller(c)
	if !ok {
		return
	}
	jobID, ok := pathID(c, h.logger, "id")
	if !ok {
		return
	}

	var req service.FundEscrowInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	escrow, err := h.escrows.Fund(c.Request.Context(), actor, jobID, req)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewEscrowDTO(escrow))
}

// GetEscrow handles GET /api/v1/jobs/:id/escrow
func (h *JobHandler) GetEscrow(c *gin.Context) {
	h.escrowAction(c, h.escrows.Get)
}

// ConfirmDelivery handles POST /api/v1/jobs/:id/escrow/confirm
func (h *JobHandler) ConfirmDelivery(c *gin.Context) {
	h.escrowAction(c, h.escrows.ConfirmDelivery)
}

// RefundEscrow handles POST /api/v1/jobs/:id/escrow/refund
func (h *JobHandler) RefundEscrow(c *gin.Context) {
	h.escrowAction(c, h.escrows.Refund)
}

func (h *JobHandler) escrowAction(c *gin.Context, fn func(ctx context.Context, actor domain.Identity, jobID string) (*model.Escrow, error)) {
	actor, ok := caller(c)
	if !ok {
		return
	}
	jobID, ok := pathID(c, h.logger, "id")
	if !ok {
		return
	}

	escrow, err := fn(c.Request.Context(), actor, jobID)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewEscrowDTO(escrow))
}
