package alerts

import (
	"github.com/angelmondragon/nursecall-backend/internal/repo"
	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
)

const (
	collection = "alerts"

	// StatusUnhandled is the status of a freshly raised alert.
	StatusUnhandled = "unhandled"
	// StatusHandled is terminal.
	StatusHandled = "handled"

	// DefaultHistoryLimit bounds the history feed.
	DefaultHistoryLimit = 100

	SourceApp        = "app"
	SourceCallButton = "call-button"
)

// Alert is a render-ready history row.
type Alert struct {
	ID        string `json:"id"`
	Patient   string `json:"patient"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source,omitempty"`
	HandledAt *int64 `json:"handled_at,omitempty"`
	HandledBy string `json:"handled_by,omitempty"`
}

// Handled reports whether the alert reached its terminal state.
func (a Alert) Handled() bool { return a.Status == StatusHandled }

// RaiseAlertRequest is the body of POST /alerts.
type RaiseAlertRequest struct {
	Patient string `json:"patient" validate:"required"`
}

// FromRecord builds a display row. Records written before statuses existed
// read as unhandled.
func FromRecord(key string, rec docstore.Record) Alert {
	a := Alert{
		ID:        key,
		Patient:   repo.Display(rec, "patient"),
		Status:    repo.String(rec, "status"),
		Source:    repo.String(rec, "source"),
		HandledBy: repo.String(rec, "handledBy"),
	}
	if a.Status == "" {
		a.Status = StatusUnhandled
	}
	a.Timestamp, _ = repo.Int64(rec, "timestamp")
	if ts, ok := repo.Int64(rec, "handledAt"); ok {
		a.HandledAt = &ts
	}
	return a
}

// NewestFirst orders by timestamp descending. Equal timestamps fall back to
// the key, which follows creation order.
func NewestFirst(a, b Alert) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return a.ID > b.ID
}
