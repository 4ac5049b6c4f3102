package dto

import (
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/cuongbtq/gigmarket-be/internal/filestore"
)

type EscrowDTO struct {
	ID            string  `json:"id"`
	JobID         string  `json:"job_id"`
	ContractRef   string  `json:"contract_ref"`
	Amount        float64 `json:"amount"`
	Balance       float64 `json:"balance"`
	State         string  `json:"state"`
	Pending       bool    `json:"pending"`
	PendingAction *string `json:"pending_action,omitempty"`
	Attempts      int     `json:"attempts,omitempty"`
	LastError     string  `json:"last_error,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

func NewEscrowDTO(e *model.Escrow) EscrowDTO {
	out := EscrowDTO{
		ID:          e.ID,
		JobID:       e.JobID,
		ContractRef: e.ContractRef,
		Amount:      e.Amount,
		Balance:     e.Balance,
		State:       string(e.State),
		Pending:     e.IsPending(),
		Attempts:    e.Attempts,
		LastError:   e.LastError,
		CreatedAt:   formatTime(e.CreatedAt),
		UpdatedAt:   formatTime(e.UpdatedAt),
	}
	if e.PendingAction != nil {
		action := string(*e.PendingAction)
		out.PendingAction = &action
	}
	return out
}

type UploadResponse struct {
	Files []filestore.File `json:"files"`
}
