package service

import (
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
)

type CreateJobInput struct {
	Title       string    `json:"title" validate:"notblank,max=200"`
	Description string    `json:"description" validate:"notblank,max=10000"`
	Skills      []string  `json:"skills" validate:"max=30,dive,notblank,max=50"`
	Budget      float64   `json:"budget" validate:"gt=0"`
	Deadline    time.Time `json:"deadline" validate:"required,future"`
	Domain      string    `json:"domain" validate:"notblank,max=100"`
}

// JobPatch carries only the fields to change. Freelancer assignment goes
// through application acceptance.
type JobPatch struct {
	Title       *string           `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string           `json:"description" validate:"omitempty,notblank,max=10000"`
	Skills      []string          `json:"skills" validate:"omitempty,max=30,dive,notblank,max=50"`
	Budget      *float64          `json:"budget" validate:"omitempty,gt=0"`
	Deadline    *time.Time        `json:"deadline" validate:"omitempty,future"`
	Domain      *string           `json:"domain" validate:"omitempty,notblank,max=100"`
	Status      *domain.JobStatus `json:"status" validate:"omitempty,job_status"`
	Freelancer  *string           `json:"freelancer" validate:"omitempty,notblank"`
}

// JobQuery filters and pages ListPage and All.
type JobQuery struct {
	Domain     string
	Status     domain.JobStatus
	EmployerID string
	Keyword    string
	PageSize   int
	Cursor     *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

type CreateApplicationInput struct {
	JobID    string  `json:"job_id" validate:"required,uuid"`
	Proposal string  `json:"proposal" validate:"notblank,max=10000"`
	Price    float64 `json:"price" validate:"gt=0"`
}

type SubmitWorkInput struct {
	JobID       string             `json:"job_id" validate:"required,uuid"`
	Title       string             `json:"title" validate:"notblank,max=200"`
	Description string             `json:"description" validate:"notblank,max=10000"`
	Attachments []model.Attachment `json:"attachments" validate:"max=5,dive"`
}

type ReviewInput struct {
	Status   domain.SubmissionStatus `json:"status" validate:"required,submission_status"`
	Feedback string                  `json:"feedback" validate:"max=5000"`
}

type SendMessageInput struct {
	JobID      string `json:"job_id" validate:"required,uuid"`
	ReceiverID string `json:"receiver_id" validate:"notblank"`
	Content    string `json:"content" validate:"notblank,max=5000"`
}

type FundEscrowInput struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

type ProfileInput struct {
	Username      string   `json:"username" validate:"max=100"`
	Email         string   `json:"email" validate:"omitempty,email"`
	Skills        []string `json:"skills" validate:"max=30,dive,notblank,max=50"`
	WalletAddress string   `json:"wallet_address" validate:"omitempty,max=128"`
}
