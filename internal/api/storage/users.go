package storage

import (
	"context"
	"fmt"

	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/jmoiron/sqlx"
)

func (s *Store) UpsertUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, username, email, role, skills, wallet_address, created_at, updated_at)
		VALUES (:id, :username, :email, :role, :skills, :wallet_address, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			skills = EXCLUDED.skills,
			wallet_address = EXCLUDED.wallet_address,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := sqlx.NamedExecContext(ctx, s.q, query, user); err != nil {
		return classify(err, "upsert user")
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	query := `
		SELECT id, username, email, role, skills, wallet_address, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	if err := sqlx.GetContext(ctx, s.q, &user, query, id); err != nil {
		return nil, classify(err, "get user")
	}
	return &user, nil
}

func (s *Store) GetUsers(ctx context.Context, ids []string) (map[string]model.User, error) {
	result := make(map[string]model.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, username, email, role, skills, wallet_address, created_at, updated_at
		FROM users
		WHERE id IN (?)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build users query: %w", err)
	}

	var users []model.User
	if err := sqlx.SelectContext(ctx, s.q, &users, s.q.Rebind(query), args...); err != nil {
		return nil, classify(err, "get users")
	}

	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}
