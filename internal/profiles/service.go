package profiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/angelmondragon/nursecall-backend/internal/repo"
	pkgauth "github.com/angelmondragon/nursecall-backend/pkg/auth"
	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"github.com/angelmondragon/nursecall-backend/pkg/mirror"
	"github.com/angelmondragon/nursecall-backend/pkg/photostore"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

const defaultMaxPhotoBytes = 10 << 20

// Caller is the signed-in user issuing a profile command.
type Caller struct {
	Identity pkgauth.Identity
	AuthTime time.Time
}

type identityUpdater interface {
	UpdateIdentity(ctx context.Context, uid string, authTime time.Time, update pkgauth.IdentityUpdate) error
}

// Service manages user profiles under users/{uid}.
type Service interface {
	CreateProfile(ctx context.Context, uid, firstName, lastName, email string) error
	GetProfile(ctx context.Context, id pkgauth.Identity) (*Profile, error)
	SaveProfile(ctx context.Context, caller Caller, req SaveProfileRequest) (*Profile, error)
	UploadPhoto(ctx context.Context, id pkgauth.Identity, r io.Reader) (*Profile, error)
	WatchProfile(ctx context.Context, id pkgauth.Identity, opts mirror.Options[Profile]) (*mirror.Single[Profile], error)
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Store         repo.Store
	Source        mirror.Source
	Photos        photostore.Uploader
	Identities    identityUpdater
	MaxPhotoBytes int64
	Clock         func() time.Time
}

type service struct {
	users      repo.Collection
	source     mirror.Source
	photos     photostore.Uploader
	identities identityUpdater
	maxPhoto   int64
	now        func() time.Time
	validate   *validator.Validate
}

// NewService builds a profile service. Identities may be nil until the
// credential service is wired; SaveProfile then only writes the record.
func NewService(params ServiceParams) (Service, error) {
	users, err := repo.NewCollection(params.Store, collection)
	if err != nil {
		return nil, err
	}
	if params.Source == nil {
		return nil, fmt.Errorf("mirror source is required")
	}
	if params.Photos == nil {
		return nil, fmt.Errorf("photo store is required")
	}
	if params.MaxPhotoBytes <= 0 {
		params.MaxPhotoBytes = defaultMaxPhotoBytes
	}
	if params.Clock == nil {
		params.Clock = time.Now
	}
	return &service{
		users:      users,
		source:     params.Source,
		photos:     params.Photos,
		identities: params.Identities,
		maxPhoto:   params.MaxPhotoBytes,
		now:        params.Clock,
		validate:   validator.New(),
	}, nil
}

// SetIdentityUpdater wires the credential service after construction.
func SetIdentityUpdater(svc Service, updater identityUpdater) {
	if s, ok := svc.(*service); ok {
		s.identities = updater
	}
}

// CreateProfile writes the initial record at sign-up.
func (s *service) CreateProfile(ctx context.Context, uid, firstName, lastName, email string) error {
	return s.users.Put(ctx, uid, docstore.Record{
		"firstName": nonEmpty(firstName),
		"lastName":  nonEmpty(lastName),
		"email":     nonEmpty(strings.ToLower(email)),
		"createdAt": docstore.ServerTimestamp,
	})
}

func (s *service) GetProfile(ctx context.Context, id pkgauth.Identity) (*Profile, error) {
	rec, _, err := s.users.Find(ctx, id.UID)
	if err != nil {
		return nil, err
	}
	p := Decoder(id)(id.UID, rec)
	return &p, nil
}

// SaveProfile updates the credential display name and email when they change,
// then writes the profile record.
func (s *service) SaveProfile(ctx context.Context, caller Caller, req SaveProfileRequest) (*Profile, error) {
	first := strings.TrimSpace(req.FirstName)
	last := strings.TrimSpace(req.LastName)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if first == "" && last == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enter at least a first or last name").
			WithDetails(map[string]string{"first_name": "required_without_last_name"})
	}
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enter a valid email address").
			WithDetails(map[string]string{"email": "email"})
	}

	id := caller.Identity
	update := pkgauth.IdentityUpdate{}
	if full := FullName(first, last); full != id.DisplayName {
		update.DisplayName = &full
	}
	if email != strings.ToLower(id.Email) {
		update.Email = &email
	}
	if !update.Empty() && s.identities != nil {
		if err := s.identities.UpdateIdentity(ctx, id.UID, caller.AuthTime, update); err != nil {
			return nil, err
		}
	}

	if err := s.users.Patch(ctx, id.UID, docstore.Record{
		"firstName": nonEmpty(first),
		"lastName":  nonEmpty(last),
		"email":     email,
	}); err != nil {
		return nil, err
	}
	if update.DisplayName != nil {
		id.DisplayName = *update.DisplayName
	}
	id.Email = email
	return s.GetProfile(ctx, id)
}

// UploadPhoto stores an image and records its URL on the profile.
func (s *service) UploadPhoto(ctx context.Context, id pkgauth.Identity, r io.Reader) (*Profile, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxPhoto+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read upload")
	}
	if len(data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "photo is empty")
	}
	if int64(len(data)) > s.maxPhoto {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "photo is too large")
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "photo must be an image").
			WithDetails(map[string]string{"content_type": mtype.String()})
	}

	object := fmt.Sprintf("%s/%s/%d%s", photoObjectDir, id.UID, s.now().UnixNano(), photostore.ExtensionFor(mtype.String()))
	url, err := s.photos.Upload(ctx, object, mtype.String(), bytes.NewReader(data))
	switch {
	case errors.Is(err, photostore.ErrRejected):
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "photo storage rejected the upload")
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload photo")
	}
	if err := s.users.Patch(ctx, id.UID, docstore.Record{"photoURL": url}); err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, id)
}

// WatchProfile mirrors the caller's profile record.
func (s *service) WatchProfile(ctx context.Context, id pkgauth.Identity, opts mirror.Options[Profile]) (*mirror.Single[Profile], error) {
	if id.UID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in required")
	}
	return mirror.OpenSingle(ctx, s.source, s.users.Path(id.UID), Default(id), Decoder(id), opts)
}

func nonEmpty(v string) any {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return nil
}
