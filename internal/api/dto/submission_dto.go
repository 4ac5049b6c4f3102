package dto

import "github.com/cuongbtq/gigmarket-be/internal/api/model"

type SubmissionDTO struct {
	ID           string             `json:"id"`
	JobID        string             `json:"job_id"`
	FreelancerID string             `json:"freelancer_id"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	Attachments  []model.Attachment `json:"attachments"`
	Status       string             `json:"status"`
	Feedback     string             `json:"feedback"`
	CreatedAt    string             `json:"created_at"`
	UpdatedAt    string             `json:"updated_at"`
}

func NewSubmissionDTO(sub *model.Submission) SubmissionDTO {
	attachments := []model.Attachment(sub.Attachments)
	if attachments == nil {
		attachments = []model.Attachment{}
	}

	return SubmissionDTO{
		ID:           sub.ID,
		JobID:        sub.JobID,
		FreelancerID: sub.FreelancerID,
		Title:        sub.Title,
		Description:  sub.Description,
		Attachments:  attachments,
		Status:       string(sub.Status),
		Feedback:     sub.Feedback,
		CreatedAt:    formatTime(sub.CreatedAt),
		UpdatedAt:    formatTime(sub.UpdatedAt),
	}
}

func NewSubmissionDTOs(subs []model.Submission) []SubmissionDTO {
	out := make([]SubmissionDTO, len(subs))
	for i := range subs {
		out[i] = NewSubmissionDTO(&subs[i])
	}
	return out
}
