package rooms

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

const roomGoneMessage = "room no longer exists"

// Service manages rooms.
type Service interface {
	CreateRoom(ctx context.Context, req CreateRoomRequest) (string, error)
	GetRoom(ctx context.Context, id string) (*Detail, error)
	UpdateRoom(ctx context.Context, id string, req UpdateRoomRequest) error
	DeleteRoom(ctx context.Context, id string) error
	ListRooms(ctx context.Context) ([]Room, error)
	WatchRooms(ctx context.Context, opts mirror.Options[Room]) (*mirror.Mirror[Room], error)
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Store  repo.Store
	Source mirror.Source
	Locale language.Tag
}

type service struct {
	rooms  repo.Collection
	source mirror.Source
	locale language.Tag
}

// NewService builds a room service.
func NewService(params ServiceParams) (Service, error) {
	rooms, err := repo.NewCollection(params.Store, collection)
	if err != nil {
		return nil, err
	}
	if params.Source == nil {
		return nil, fmt.Errorf("mirror source is required")
	}
	return &service{rooms: rooms, source: params.Source, locale: params.Locale}, nil
}

func (s *service) CreateRoom(ctx context.Context, req CreateRoomRequest) (string, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", nameRequired()
	}
	return s.rooms.Create(ctx, docstore.Record{
		"name":      name,
		"floor":     repo.OptionalText(req.Floor),
		"createdAt": docstore.ServerTimestamp,
	})
}

func (s *service) GetRoom(ctx context.Context, id string) (*Detail, error) {
	rec, ok, err := s.rooms.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, roomGoneMessage)
	}
	return detailFromRecord(id, rec), nil
}

// UpdateRoom merges the edit into the stored room. Only the supplied fields
// change; a room deleted in the meantime is reported as gone, never recreated.
func (s *service) UpdateRoom(ctx context.Context, id string, req UpdateRoomRequest) error {
	patch := docstore.Record{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nameRequired()
		}
		patch["name"] = name
	}
	if req.Floor != nil {
		patch["floor"] = repo.OptionalText(req.Floor)
	}
	if len(patch) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}

	err := s.rooms.PatchExisting(ctx, id, patch, nil)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, roomGoneMessage)
	}
	return err
}

func (s *service) DeleteRoom(ctx context.Context, id string) error {
	return s.rooms.Delete(ctx, id)
}

func (s *service) ListRooms(ctx context.Context) ([]Room, error) {
	children, err := s.rooms.List(ctx, docstore.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]Room, 0, len(children))
	for _, child := range children {
		out = append(out, FromRecord(child.Key, child.Value))
	}
	less := s.byName()
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

// WatchRooms mirrors every room ordered by name.
func (s *service) WatchRooms(ctx context.Context, opts mirror.Options[Room]) (*mirror.Mirror[Room], error) {
	return mirror.Open(ctx, s.source, mirror.Spec[Room]{
		Path:   collection,
		Decode: FromRecord,
		Less:   s.byName(),
	}, opts)
}

func (s *service) byName() func(a, b Room) bool {
	less := mirror.TextLess(s.locale)
	return func(a, b Room) bool { return less(a.Name, b.Name) }
}

func nameRequired() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "room name is required").
		WithDetails(map[string]string{"name": "required"})
}
