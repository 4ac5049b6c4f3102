package storage

import (
	"context"

	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/jmoiron/sqlx"
)

func (s *Store) CreateMessage(ctx context.Context, msg *model.Message) error {
	query := `
		INSERT INTO messages (id, job_id, sender_id, receiver_id, content, read, created_at)
		VALUES (:id, :job_id, :sender_id, :receiver_id, :content, :read, :created_at)
	`

	if _, err := sqlx.NamedExecContext(ctx, s.q, query, msg); err != nil {
		return classify(err, "create message")
	}
	return nil
}

func (s *Store) ListMessagesByJob(ctx context.Context, jobID string) ([]model.Message, error) {
	var msgs []model.Message
	query := `
		SELECT id, job_id, sender_id, receiver_id, content, read, created_at
		FROM messages
		WHERE job_id = $1
		ORDER BY created_at ASC, id ASC
	`

	if err := sqlx.SelectContext(ctx, s.q, &msgs, query, jobID); err != nil {
		return nil, classify(err, "list messages")
	}
	return msgs, nil
}

func (s *Store) MarkMessagesRead(ctx context.Context, jobID, receiverID string) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE messages SET read = TRUE WHERE job_id = $1 AND receiver_id = $2 AND read = FALSE`,
		jobID, receiverID,
	)
	if err != nil {
		return 0, classify(err, "mark messages read")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err, "mark messages read")
	}
	return n, nil
}
