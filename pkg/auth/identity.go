package auth

import "strings"

// Identity is the signed-in user as the rest of the system sees it.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
}

// IdentityFromClaims extracts the identity carried by an access token.
func IdentityFromClaims(c *AccessTokenClaims) (Identity, bool) {
	if c == nil {
		return Identity{}, false
	}
	return Identity{
		UID:         c.UserID.String(),
		Email:       c.Email,
		DisplayName: strings.TrimSpace(c.DisplayName),
	}, true
}

// EmailLocalPart returns the part of the email before "@".
func (i Identity) EmailLocalPart() string {
	local, _, _ := strings.Cut(i.Email, "@")
	return local
}

// IdentityUpdate changes the credentials record. Nil fields are left alone.
type IdentityUpdate struct {
	Email       *string
	DisplayName *string
}

// Empty reports whether the update changes nothing.
func (u IdentityUpdate) Empty() bool {
	return u.Email == nil && u.DisplayName == nil
}
