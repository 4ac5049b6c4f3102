package dto

import (
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/cuongbtq/gigmarket-be/internal/api/service"
)

type ListJobsRequest struct {
	Domain     string `form:"domain"`
	Status     string `form:"status"`
	EmployerID string `form:"employer_id"`
	Keyword    string `form:"q"`
	PageSize   int    `form:"page_size"`
	Cursor     string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Skills         []string `json:"skills"`
	Budget         float64  `json:"budget"`
	Deadline       string   `json:"deadline"`
	Domain         string   `json:"domain"`
	Status         string   `json:"status"`
	EmployerID     string   `json:"employer_id"`
	FreelancerID   *string  `json:"freelancer_id"`
	EscrowContract *string  `json:"escrow_contract"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
	CompletedAt    *string  `json:"completed_at"`

	Employer   *UserDTO `json:"employer,omitempty"`
	Freelancer *UserDTO `json:"freelancer,omitempty"`
}

func NewJobDTO(job *model.Job) JobDTO {
	skills := []string(job.Skills)
	if skills == nil {
		skills = []string{}
	}

	return JobDTO{
		ID:             job.ID,
		Title:          job.Title,
		Description:    job.Description,
		Skills:         skills,
		Budget:         job.Budget,
		Deadline:       formatTime(job.Deadline),
		Domain:         job.Domain,
		Status:         string(job.Status),
		EmployerID:     job.EmployerID,
		FreelancerID:   job.FreelancerID,
		EscrowContract: job.EscrowContract,
		CreatedAt:      formatTime(job.CreatedAt),
		UpdatedAt:      formatTime(job.UpdatedAt),
		CompletedAt:    formatTimePtr(job.CompletedAt),
	}
}

func NewJobViewDTO(view *service.JobView) JobDTO {
	out := NewJobDTO(&view.Job)
	out.Employer = NewUserDTO(view.Employer)
	out.Freelancer = NewUserDTO(view.Freelancer)
	return out
}

func NewJobDTOs(jobs []model.Job) []JobDTO {
	out := make([]JobDTO, len(jobs))
	for i := range jobs {
		out[i] = NewJobDTO(&jobs[i])
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
