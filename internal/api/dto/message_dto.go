package dto

import "github.com/cuongbtq/gigmarket-be/internal/api/model"

type MessageDTO struct {
	ID         string `json:"id"`
	JobID      string `json:"job_id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	Read       bool   `json:"read"`
	CreatedAt  string `json:"created_at"`
}

func NewMessageDTO(msg *model.Message) MessageDTO {
	return MessageDTO{
		ID:         msg.ID,
		JobID:      msg.JobID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		Read:       msg.Read,
		CreatedAt:  formatTime(msg.CreatedAt),
	}
}

func NewMessageDTOs(msgs []model.Message) []MessageDTO {
	out := make([]MessageDTO, len(msgs))
	for i := range msgs {
		out[i] = NewMessageDTO(&msgs[i])
	}
	return out
}
