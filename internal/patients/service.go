package patients

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/angelmondragon/nursecall-backend/internal/repo"
	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"github.com/angelmondragon/nursecall-backend/pkg/mirror"
	"golang.org/x/text/language"
)

// Service manages patients.
type Service interface {
	CreatePatient(ctx context.Context, req CreatePatientRequest) (string, error)
	GetPatient(ctx context.Context, id string) (*Patient, error)
	UpdatePatient(ctx context.Context, id string, req UpdatePatientRequest) error
	DeletePatient(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]Patient, error)
	WatchActive(ctx context.Context, opts mirror.Options[Patient]) (*mirror.Mirror[Patient], error)
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Store  repo.Store
	Source mirror.Source
	Locale language.Tag
}

type service struct {
	patients repo.Collection
	source   mirror.Source
	locale   language.Tag
}

// NewService builds a patient service.
func NewService(params ServiceParams) (Service, error) {
	patients, err := repo.NewCollection(params.Store, collection)
	if err != nil {
		return nil, err
	}
	if params.Source == nil {
		return nil, fmt.Errorf("mirror source is required")
	}
	return &service{patients: patients, source: params.Source, locale: params.Locale}, nil
}

func activeQuery() docstore.Query {
	return docstore.OrderByChild("active").EqualTo(true)
}

func (s *service) CreatePatient(ctx context.Context, req CreatePatientRequest) (string, error) {
	first := strings.TrimSpace(req.FirstName)
	last := strings.TrimSpace(req.LastName)
	details := map[string]string{}
	if first == "" {
		details["first_name"] = "required"
	}
	if last == "" {
		details["last_name"] = "required"
	}
	if len(details) > 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "first and last name are required").WithDetails(details)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return s.patients.Create(ctx, docstore.Record{
		"firstName": first,
		"lastName":  last,
		"room":      repo.OptionalText(req.Room),
		"active":    active,
		"createdAt": docstore.ServerTimestamp,
	})
}

func (s *service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	rec, ok, err := s.patients.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "patient not found")
	}
	p := FromRecord(id, rec)
	return &p, nil
}

// UpdatePatient merges the supplied fields. Activation has no enforced
// transition; any value may follow any other.
func (s *service) UpdatePatient(ctx context.Context, id string, req UpdatePatientRequest) error {
	patch := docstore.Record{}
	details := map[string]string{}
	if req.FirstName != nil {
		if v := strings.TrimSpace(*req.FirstName); v != "" {
			patch["firstName"] = v
		} else {
			details["first_name"] = "required"
		}
	}
	if req.LastName != nil {
		if v := strings.TrimSpace(*req.LastName); v != "" {
			patch["lastName"] = v
		} else {
			details["last_name"] = "required"
		}
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "first and last name are required").WithDetails(details)
	}
	if req.Room != nil {
		patch["room"] = repo.OptionalText(req.Room)
	}
	if req.Active != nil {
		patch["active"] = *req.Active
	}
	if len(patch) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}

	err := s.patients.PatchExisting(ctx, id, patch, nil)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "patient not found")
	}
	return err
}

func (s *service) DeletePatient(ctx context.Context, id string) error {
	return s.patients.Delete(ctx, id)
}

func (s *service) ListActive(ctx context.Context) ([]Patient, error) {
	children, err := s.patients.List(ctx, activeQuery())
	if err != nil {
		return nil, err
	}
	out := make([]Patient, 0, len(children))
	for _, child := range children {
		out = append(out, FromRecord(child.Key, child.Value))
	}
	less := s.byLastName()
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

// WatchActive mirrors active patients ordered by last name.
func (s *service) WatchActive(ctx context.Context, opts mirror.Options[Patient]) (*mirror.Mirror[Patient], error) {
	return mirror.Open(ctx, s.source, mirror.Spec[Patient]{
		Path:   collection,
		Query:  activeQuery(),
		Decode: FromRecord,
		Less:   s.byLastName(),
	}, opts)
}

func (s *service) byLastName() func(a, b Patient) bool {
	less := mirror.TextLess(s.locale)
	return func(a, b Patient) bool { return less(a.LastName, b.LastName) }
}
