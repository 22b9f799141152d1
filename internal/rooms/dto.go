package rooms

import (
	"github.com/angelmondragon/nursecall-backend/internal/repo"
	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
)

const collection = "rooms"

// Room is a render-ready room row. Missing names render the placeholder.
type Room struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Floor     string `json:"floor"`
	CreatedAt *int64 `json:"created_at,omitempty"`
}

// Detail is the stored form of a room, used to prefill edits.
type Detail struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Floor     *string `json:"floor"`
	CreatedAt *int64  `json:"created_at,omitempty"`
}

// CreateRoomRequest is the body of POST /rooms.
type CreateRoomRequest struct {
	Name  string  `json:"name" validate:"required"`
	Floor *string `json:"floor"`
}

// UpdateRoomRequest is a partial edit. A blank floor clears it.
type UpdateRoomRequest struct {
	Name  *string `json:"name"`
	Floor *string `json:"floor"`
}

// FromRecord builds a display row.
func FromRecord(key string, rec docstore.Record) Room {
	room := Room{
		ID:    key,
		Name:  repo.Display(rec, "name"),
		Floor: repo.Display(rec, "floor"),
	}
	if ts, ok := repo.Int64(rec, "createdAt"); ok {
		room.CreatedAt = &ts
	}
	return room
}

func detailFromRecord(key string, rec docstore.Record) *Detail {
	d := &Detail{ID: key, Name: repo.String(rec, "name")}
	if floor := repo.String(rec, "floor"); floor != "" {
		d.Floor = &floor
	}
	if ts, ok := repo.Int64(rec, "createdAt"); ok {
		d.CreatedAt = &ts
	}
	return d
}
