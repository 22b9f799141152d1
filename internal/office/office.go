// Package office serves the nursing office information sheet.
package office

import (
	"context"
	"fmt"

	"github.com/angelmondragon/nursecall-backend/internal/repo"
	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"github.com/angelmondragon/nursecall-backend/pkg/mirror"
)

const (
	collection = "office"
	recordKey  = "info"
)

type Head struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Hours struct {
	Week    string `json:"week"`
	Weekend string `json:"weekend"`
}

// Info is the office sheet.
type Info struct {
	ServiceName string `json:"service_name"`
	Description string `json:"description"`
	Address     string `json:"address"`
	OfficePhone string `json:"office_phone"`
	Head        Head   `json:"head"`
	Hours       Hours  `json:"hours"`
	Notes       string `json:"notes"`
}

// Default is shown when nothing is stored or the store cannot be read.
func Default() Info {
	return Info{
		ServiceName: "Service d’Infirmerie – Aile A",
		Description: "Accueil des patients, coordination des soins, gestion des chambres et transmissions.",
		Address:     "Bloc A, 2e étage, Chambre 201 – 205",
		OfficePhone: "+212 5 22 00 00 00",
		Head: Head{
			Name:  "Mme Samira BENALI",
			Title: "Cheffe de service",
			Email: "samira.benali@example.com",
			Phone: "+212 6 12 34 56 78",
		},
		Hours: Hours{
			Week:    "Lun – Ven : 08:00 → 18:00",
			Weekend: "Sam : 09:00 → 13:00, Dim : fermé",
		},
		Notes: "En cas d’urgence, contactez directement le numéro du bureau ou le chef de service.",
	}
}

// Merge lays rec over the default. Head and hours merge field by field;
// any other field replaces the default only when set.
func Merge(rec docstore.Record) Info {
	info := Default()
	if rec == nil {
		return info
	}
	set := func(dst *string, src docstore.Record, key string) {
		if v := repo.String(src, key); v != "" {
			*dst = v
		}
	}
	set(&info.ServiceName, rec, "serviceName")
	set(&info.Description, rec, "description")
	set(&info.Address, rec, "address")
	set(&info.OfficePhone, rec, "officePhone")
	set(&info.Notes, rec, "notes")
	if head := repo.Sub(rec, "head"); head != nil {
		set(&info.Head.Name, head, "name")
		set(&info.Head.Title, head, "title")
		set(&info.Head.Email, head, "email")
		set(&info.Head.Phone, head, "phone")
	}
	if hours := repo.Sub(rec, "hours"); hours != nil {
		set(&info.Hours.Week, hours, "week")
		set(&info.Hours.Weekend, hours, "weekend")
	}
	return info
}

// UpdateRequest edits the sheet. Nested keys use "head/name" style paths.
type UpdateRequest map[string]*string

var editable = map[string]bool{
	"serviceName": true, "description": true, "address": true, "officePhone": true, "notes": true,
	"head/name": true, "head/title": true, "head/email": true, "head/phone": true,
	"hours/week": true, "hours/weekend": true,
}

// Service reads and edits the office sheet.
type Service interface {
	Get(ctx context.Context) Info
	Update(ctx context.Context, req UpdateRequest) (Info, error)
	Watch(ctx context.Context, opts mirror.Options[Info]) (*mirror.Single[Info], error)
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Store  repo.Store
	Source mirror.Source
	Logger *logger.Logger
}

type service struct {
	office repo.Collection
	source mirror.Source
	logg   *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	office, err := repo.NewCollection(params.Store, collection)
	if err != nil {
		return nil, err
	}
	if params.Source == nil {
		return nil, fmt.Errorf("mirror source is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{office: office, source: params.Source, logg: params.Logger}, nil
}

// Get never fails; a read error yields the default sheet.
func (s *service) Get(ctx context.Context) Info {
	rec, _, err := s.office.Find(ctx, recordKey)
	if err != nil {
		s.logg.Warn(ctx, "office.read_failed: "+err.Error())
		return Default()
	}
	return Merge(rec)
}

// Update sets or clears fields. A nil or blank value falls back to the default.
func (s *service) Update(ctx context.Context, req UpdateRequest) (Info, error) {
	if len(req) == 0 {
		return Info{}, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}
	patch := docstore.Record{}
	for key, value := range req {
		if !editable[key] {
			return Info{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown office field").
				WithDetails(map[string]string{key: "unknown"})
		}
		patch[key] = repo.OptionalText(value)
	}
	if err := s.office.Patch(ctx, recordKey, patch); err != nil {
		return Info{}, err
	}
	return s.Get(ctx), nil
}

func (s *service) Watch(ctx context.Context, opts mirror.Options[Info]) (*mirror.Single[Info], error) {
	return mirror.OpenSingle(ctx, s.source, s.office.Path(recordKey), Default(),
		func(_ string, rec docstore.Record) Info { return Merge(rec) }, opts)
}
