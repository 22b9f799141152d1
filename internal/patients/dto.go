package patients

import (
	"github.com/angelmondragon/nursecall-backend/internal/repo"
	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
)

const collection = "patients"

// Patient is a render-ready patient row.
type Patient struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Room      string `json:"room"`
	Active    bool   `json:"active"`
	CreatedAt *int64 `json:"created_at,omitempty"`
}

// FullName joins the name parts for display.
func (p Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// CreatePatientRequest is the body of POST /patients. Active defaults to true.
type CreatePatientRequest struct {
	FirstName string  `json:"first_name" validate:"required"`
	LastName  string  `json:"last_name" validate:"required"`
	Room      *string `json:"room"`
	Active    *bool   `json:"active"`
}

// UpdatePatientRequest is a partial edit. A blank room clears it.
type UpdatePatientRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Room      *string `json:"room"`
	Active    *bool   `json:"active"`
}

// FromRecord builds a display row. Records without an active flag count as
// active.
func FromRecord(key string, rec docstore.Record) Patient {
	p := Patient{
		ID:        key,
		FirstName: repo.Display(rec, "firstName"),
		LastName:  repo.Display(rec, "lastName"),
		Room:      repo.Display(rec, "room"),
		Active:    repo.Bool(rec, "active", true),
	}
	if ts, ok := repo.Int64(rec, "createdAt"); ok {
		p.CreatedAt = &ts
	}
	return p
}
