package profiles

import (
	"strings"

	"github.com/angelmondragon/nursecall-backend/internal/repo"
	pkgauth "github.com/angelmondragon/nursecall-backend/pkg/auth"
	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
)

const (
	collection     = "users"
	unknownName    = "Unknown"
	photoObjectDir = "profiles"
)

// Profile is the user's profile record with display fallbacks applied.
type Profile struct {
	UID         string `json:"uid"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photo_url,omitempty"`
	DisplayName string `json:"display_name"`
}

// SaveProfileRequest is the body of PATCH /profile.
type SaveProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// FullName joins the non-empty name parts.
func FullName(first, last string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{first, last} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// DisplayName picks the name to greet a user with: the profile name, then the
// credential display name, then the email local part.
func DisplayName(first, last string, id pkgauth.Identity) string {
	if name := FullName(first, last); name != "" {
		return name
	}
	if id.DisplayName != "" {
		return id.DisplayName
	}
	if local := id.EmailLocalPart(); local != "" {
		return local
	}
	return unknownName
}

// Decoder returns a decode func for id's profile record. The identity fills in
// what the record lacks.
func Decoder(id pkgauth.Identity) func(key string, rec docstore.Record) Profile {
	return func(key string, rec docstore.Record) Profile {
		p := Profile{
			UID:       key,
			FirstName: repo.String(rec, "firstName"),
			LastName:  repo.String(rec, "lastName"),
			Email:     repo.String(rec, "email"),
			PhotoURL:  repo.String(rec, "photoURL"),
		}
		if p.Email == "" {
			p.Email = id.Email
		}
		p.DisplayName = DisplayName(p.FirstName, p.LastName, id)
		return p
	}
}

// Default is the profile shown before a record exists.
func Default(id pkgauth.Identity) Profile {
	return Decoder(id)(id.UID, nil)
}
