package rooms

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
	"github.com/angelmondragon/nursecall-backend/pkg/docstore/docstoretest"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"github.com/angelmondragon/nursecall-backend/pkg/mirror"
	"golang.org/x/text/language"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	store := docstoretest.New(t)
	svc, err := NewService(ServiceParams{Store: store, Source: mirror.FromStore(store), Locale: language.English})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func strPtr(s string) *string { return &s }

func TestCreateRoomRoundTripsVerbatim(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.CreateRoom(ctx, CreateRoomRequest{Name: "  Room 12B ", Floor: strPtr("3rd Floor ")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	room, err := svc.GetRoom(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if room.Name != "Room 12B" || room.Floor == nil || *room.Floor != "3rd Floor" {
		t.Fatalf("unexpected room %+v", room)
	}
	if room.CreatedAt == nil {
		t.Fatal("expected server timestamp on create")
	}
}

func TestCreateRoomRequiresName(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CreateRoom(context.Background(), CreateRoomRequest{Name: "   "})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateFloorOnlyKeepsName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.CreateRoom(ctx, CreateRoomRequest{Name: "Room 12B", Floor: strPtr("3rd Floor")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.UpdateRoom(ctx, id, UpdateRoomRequest{Floor: strPtr("4th Floor")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	room, _ := svc.GetRoom(ctx, id)
	if room.Name != "Room 12B" || *room.Floor != "4th Floor" {
		t.Fatalf("unexpected room %+v", room)
	}

	if err := svc.UpdateRoom(ctx, id, UpdateRoomRequest{Floor: strPtr("")}); err != nil {
		t.Fatalf("clear floor: %v", err)
	}
	room, _ = svc.GetRoom(ctx, id)
	if room.Floor != nil {
		t.Fatalf("expected floor cleared, got %q", *room.Floor)
	}
}

func TestUpdateDeletedRoomIsNotFound(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, _ := svc.CreateRoom(ctx, CreateRoomRequest{Name: "Room 1"})
	if err := svc.DeleteRoom(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	err := svc.UpdateRoom(ctx, id, UpdateRoomRequest{Name: strPtr("Room 2")})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetRoom(ctx, id); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found on get, got %v", err)
	}
}

func TestUpdateRejectsEmptyPatchAndBlankName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id, _ := svc.CreateRoom(ctx, CreateRoomRequest{Name: "Room 1"})

	if err := svc.UpdateRoom(ctx, id, UpdateRoomRequest{}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty patch, got %v", err)
	}
	if err := svc.UpdateRoom(ctx, id, UpdateRoomRequest{Name: strPtr(" ")}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
}

func TestListRoomsSortedByName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	for _, name := range []string{"Room C", "room a", "Room B"} {
		if _, err := svc.CreateRoom(ctx, CreateRoomRequest{Name: name}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	rooms, err := svc.ListRooms(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := []string{rooms[0].Name, rooms[1].Name, rooms[2].Name}
	want := []string{"room a", "Room B", "Room C"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	if rooms[0].Floor != mirror.Placeholder {
		t.Fatalf("missing floor should render placeholder, got %q", rooms[0].Floor)
	}
}

func TestWatchRoomsFollowsWrites(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	m, err := svc.WatchRooms(ctx, mirror.Options[Room]{})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer m.Close()

	waitFor(t, m, func(v mirror.View[Room]) bool { return v.Loaded && len(v.Items) == 0 })

	id, _ := svc.CreateRoom(ctx, CreateRoomRequest{Name: "Room 12B"})
	waitFor(t, m, func(v mirror.View[Room]) bool { return len(v.Items) == 1 && v.Items[0].ID == id })

	if err := svc.DeleteRoom(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	waitFor(t, m, func(v mirror.View[Room]) bool { return v.Loaded && len(v.Items) == 0 })
}

func waitFor(t *testing.T, m *mirror.Mirror[Room], ok func(mirror.View[Room]) bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-m.Updates():
			if ok(v) {
				return
			}
		case <-deadline:
			t.Fatalf("timed out; last view %+v", m.View())
		}
	}
}

// deleteFirstStore removes the record just before an edit reaches the store,
// as a delete from another nurse would.
type deleteFirstStore struct {
	*docstore.Store
}

func (d deleteFirstStore) UpdateExisting(ctx context.Context, path string, patch docstore.Record, guard docstore.Guard) error {
	if err := d.Store.Remove(ctx, path); err != nil {
		return err
	}
	return d.Store.UpdateExisting(ctx, path, patch, guard)
}

func TestUpdateRacingDeleteDoesNotResurrectRoom(t *testing.T) {
	store := docstoretest.New(t)
	svc, err := NewService(ServiceParams{Store: deleteFirstStore{store}, Source: mirror.FromStore(store), Locale: language.English})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	id, err := svc.CreateRoom(ctx, CreateRoomRequest{Name: "Room 12B"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	err = svc.UpdateRoom(ctx, id, UpdateRoomRequest{Floor: strPtr("2nd")})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	rooms, err := svc.ListRooms(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rooms) != 0 {
		t.Fatalf("deleted room came back: %+v", rooms)
	}
}
