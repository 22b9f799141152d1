package users

import (
	"time"

	"github.com/angelmondragon/nursecall-backend/pkg/db/models"
	"github.com/google/uuid"
)

// UserDTO is the public shape of a credentials record.
type UserDTO struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreateUserDTO captures the fields needed to create a credentials record.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	DisplayName  string
}

// ToModel builds the GORM model. Keys are time-ordered UUIDs.
func (dto CreateUserDTO) ToModel() (*models.User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &models.User{
		ID:           id,
		Email:        dto.Email,
		PasswordHash: dto.PasswordHash,
		DisplayName:  dto.DisplayName,
		IsActive:     true,
		PasswordAt:   &now,
	}, nil
}

// FromModel maps a user model to the public DTO.
func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}
