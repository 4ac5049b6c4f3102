package service

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/cuongbtq/gigmarket-be/internal/events"
)

type MessageService struct {
	*base
}

// Send posts a message between the two parties of a job.
func (s *MessageService) Send(ctx context.Context, actor domain.Identity, in SendMessageInput) (*model.Message, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	job, err := s.loadJob(ctx, s.repo, in.JobID, false)
	if err != nil {
		return nil, err
	}
	if !job.IsParticipant(actor.ID) {
		return nil, domain.NewAuthorizationError()
	}
	if in.ReceiverID == actor.ID {
		return nil, domain.NewFieldError("receiver_id", "must differ from the sender")
	}
	if !job.IsParticipant(in.ReceiverID) {
		return nil, domain.NewFieldError("receiver_id", "must be a party of the job")
	}

	msg := &model.Message{
		ID:         s.newID(),
		JobID:      job.ID,
		SenderID:   actor.ID,
		ReceiverID: in.ReceiverID,
		Content:    in.Content,
		CreatedAt:  s.now(),
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, s.fail(err, "message")
	}

	s.logger.Debug("Message sent",
		slog.String("message_id", msg.ID),
		slog.String("job_id", msg.JobID),
	)
	s.publish(ctx, events.Event{
		Type:     events.MessageSent,
		EntityID: msg.ID,
		JobID:    msg.JobID,
		ActorID:  actor.ID,
	})

	return msg, nil
}

// ListForJob returns the job's messages oldest first and marks those
// addressed to the caller as read. The returned slice shows the read flags
// as they were before this call.
func (s *MessageService) ListForJob(ctx context.Context, actor domain.Identity, jobID string) ([]model.Message, error) {
	job, err := s.loadJob(ctx, s.repo, jobID, false)
	if err != nil {
		return nil, err
	}
	if !job.IsParticipant(actor.ID) {
		return nil, domain.NewAuthorizationError()
	}

	msgs, err := s.repo.ListMessagesByJob(ctx, job.ID)
	if err != nil {
		return nil, s.fail(err, "message")
	}

	if _, err := s.repo.MarkMessagesRead(ctx, job.ID, actor.ID); err != nil {
		s.logger.Warn("Failed to mark messages read",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}
	return msgs, nil
}
