package service

import (
	"context"
	"errors"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/model"
	"github.com/cuongbtq/gigmarket-be/internal/api/storage"
)

// UserService manages the caller's own profile. Profiles are optional;
// identities come from the bearer token.
type UserService struct {
	*base
}

// Me returns the caller's profile, or an unsaved one built from the identity.
func (s *UserService) Me(ctx context.Context, actor domain.Identity) (*model.User, error) {
	user, err := s.repo.GetUser(ctx, actor.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return &model.User{ID: actor.ID, Role: actor.Role, Skills: []string{}}, nil
	}
	if err != nil {
		return nil, s.fail(err, "user")
	}
	return user, nil
}

// UpdateMe saves the caller's profile. The role of an existing profile
// never changes.
func (s *UserService) UpdateMe(ctx context.Context, actor domain.Identity, in ProfileInput) (*model.User, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	skills := in.Skills
	if skills == nil {
		skills = []string{}
	}

	now := s.now()
	user := &model.User{
		ID:            actor.ID,
		Username:      in.Username,
		Email:         in.Email,
		Role:          actor.Role,
		Skills:        skills,
		WalletAddress: in.WalletAddress,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.UpsertUser(ctx, user); err != nil {
		return nil, s.fail(err, "user")
	}

	return s.Me(ctx, actor)
}
