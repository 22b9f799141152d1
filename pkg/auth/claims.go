package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
	// AuthTime is when the user last presented their password; refreshes carry it forward.
	AuthTime time.Time
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID      uuid.UUID        `json:"user_id"`
	Email       string           `json:"email"`
	DisplayName string           `json:"display_name,omitempty"`
	AuthTime    *jwt.NumericDate `json:"auth_time,omitempty"`
	jwt.RegisteredClaims
}

// AuthenticatedAt returns the auth_time claim, falling back to iat.
func (c *AccessTokenClaims) AuthenticatedAt() time.Time {
	if c == nil {
		return time.Time{}
	}
	if c.AuthTime != nil {
		return c.AuthTime.Time
	}
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}
