package dto

import "github.com/cuongbtq/gigmarket-be/internal/api/model"

type UserDTO struct {
	ID            string   `json:"id"`
	Username      string   `json:"username"`
	Email         string   `json:"email,omitempty"`
	Role          string   `json:"role"`
	Skills        []string `json:"skills"`
	WalletAddress string   `json:"wallet_address,omitempty"`
}

// NewUserDTO returns nil for a missing profile.
func NewUserDTO(u *model.User) *UserDTO {
	if u == nil {
		return nil
	}

	skills := []string(u.Skills)
	if skills == nil {
		skills = []string{}
	}

	return &UserDTO{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		Role:          string(u.Role),
		Skills:        skills,
		WalletAddress: u.WalletAddress,
	}
}
