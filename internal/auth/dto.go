package auth

import (
	"github.com/angelmondragon/nursecall-backend/internal/users"
)

// SignUpRequest creates an account and its profile. Format checks live in the
// service so they fail with provider reasons.
type SignUpRequest struct {
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name" validate:"required"`
	Email           string `json:"email" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password"`
}

// SignInRequest captures the user credentials sent to the sign-in endpoint.
type SignInRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest rotates a session. The access token may be expired.
type RefreshRequest struct {
	AccessToken  string `json:"-"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required"`
}

type ConfirmPasswordResetRequest struct {
	Code            string `json:"code" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
	ConfirmPassword string `json:"confirm_password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
	ConfirmPassword string `json:"confirm_password"`
}

// UpdateIdentityRequest changes the credentials record. Omitted fields are kept.
type UpdateIdentityRequest struct {
	Email       *string `json:"email,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
}

// AuthResponse contains the tokens and user produced by a successful sign-in.
type AuthResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	User         *users.UserDTO `json:"user"`
}

// ResetSent reports a dispatched reset link and when the next one may be sent.
type ResetSent struct {
	CooldownSeconds int `json:"cooldown_seconds"`
}
