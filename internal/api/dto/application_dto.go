package dto

import (
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/cuongbtq/gigmarket-be/internal/api/service"
)

type UpdateApplicationRequest struct {
	Status string `json:"status"`
}

type ApplicationDTO struct {
	ID           string  `json:"id"`
	JobID        string  `json:"job_id"`
	FreelancerID string  `json:"freelancer_id"`
	Proposal     string  `json:"proposal"`
	Price        float64 `json:"price"`
	Status       string  `json:"status"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`

	Freelancer *UserDTO `json:"freelancer,omitempty"`
	Job        *JobDTO  `json:"job,omitempty"`
	// Score is only set when a ranked listing was requested.
	Score *float64 `json:"score,omitempty"`
}

func NewApplicationDTO(app *model.Application) ApplicationDTO {
	return ApplicationDTO{
		ID:           app.ID,
		JobID:        app.JobID,
		FreelancerID: app.FreelancerID,
		Proposal:     app.Proposal,
		Price:        app.Price,
		Status:       string(app.Status),
		CreatedAt:    formatTime(app.CreatedAt),
		UpdatedAt:    formatTime(app.UpdatedAt),
	}
}

func NewApplicationViewDTO(view *service.ApplicationView) ApplicationDTO {
	out := NewApplicationDTO(&view.Application)
	out.Freelancer = NewUserDTO(view.Freelancer)
	if view.Job != nil {
		job := NewJobDTO(view.Job)
		out.Job = &job
	}
	return out
}
