package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/nursecall-backend/api/responses"
	"github.com/angelmondragon/nursecall-backend/internal/alerts"
	"github.com/angelmondragon/nursecall-backend/internal/auth"
	"github.com/angelmondragon/nursecall-backend/internal/dashboard"
	"github.com/angelmondragon/nursecall-backend/internal/office"
	"github.com/angelmondragon/nursecall-backend/internal/patients"
	"github.com/angelmondragon/nursecall-backend/internal/profiles"
	"github.com/angelmondragon/nursecall-backend/internal/rooms"
	pkgAuth "github.com/angelmondragon/nursecall-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/nursecall-backend/pkg/errors"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"github.com/angelmondragon/nursecall-backend/pkg/metrics"
	"github.com/angelmondragon/nursecall-backend/pkg/mirror"
)

const defaultHeartbeat = 25 * time.Second

type identityWatcher interface {
	OnIdentityChanged(uid string, fn func(auth.Change)) func()
}

// LiveFeeds holds everything a live stream can mirror.
type LiveFeeds struct {
	Rooms     rooms.Service
	Patients  patients.Service
	Alerts    alerts.Service
	Profiles  profiles.Service
	Office    office.Service
	Dashboard dashboard.Service
	Gate      identityWatcher
	Metrics   *metrics.StoreMetrics
	Heartbeat time.Duration
}

// listFrame is the payload of a collection snapshot event.
type listFrame[T any] struct {
	Loaded bool   `json:"loaded"`
	Items  []T    `json:"items"`
	Error  string `json:"error,omitempty"`
}

// valueFrame is the payload of a single-record snapshot event.
type valueFrame[T any] struct {
	Loaded bool `json:"loaded"`
	Value  T    `json:"value"`
}

type endFrame struct {
	Reason string `json:"reason"`
}

// Live streams a mirrored view as server-sent events. The stream ends when
// the client goes away or the caller's session is signed out or revoked.
func Live(feeds LiveFeeds, logg *logger.Logger) http.HandlerFunc {
	heartbeat := feeds.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := requireSession(w, r, logg)
		if !ok {
			return
		}
		feed := chi.URLParam(r, "feed")
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFeed(ctx, feed)
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		ended := make(chan string, 1)
		var endOnce sync.Once
		end := func(reason string) {
			endOnce.Do(func() {
				ended <- reason
			})
		}
		if feeds.Gate != nil {
			unsubscribe := feeds.Gate.OnIdentityChanged(sess.Identity.UID, func(c auth.Change) {
				if c.Affects(sess.AccessID) {
					end(string(c.Kind))
				}
			})
			defer unsubscribe()
		}

		st := &sseStream{w: w, flusher: flusher, heartbeat: heartbeat, ended: ended}
		start, err := feeds.open(ctx, feed, sess, st)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		if logg != nil {
			logg.Info(ctx, "live.open")
		}
		reason := start()
		if logg != nil {
			logg.Info(logg.WithField(ctx, "reason", reason), "live.closed")
		}
	}
}

// open starts the mirror behind feed and returns the function that pumps it
// until the stream ends.
func (f LiveFeeds) open(ctx context.Context, feed string, sess pkgAuth.Session, st *sseStream) (func() string, error) {
	switch feed {
	case "rooms":
		m, err := f.Rooms.WatchRooms(ctx, mirror.Options[rooms.Room]{Metrics: f.Metrics})
		if err != nil {
			return nil, err
		}
		return func() string { defer m.Close(); return pumpList(ctx, st, m.Updates(), m.Done()) }, nil
	case "patients":
		m, err := f.Patients.WatchActive(ctx, mirror.Options[patients.Patient]{Metrics: f.Metrics})
		if err != nil {
			return nil, err
		}
		return func() string { defer m.Close(); return pumpList(ctx, st, m.Updates(), m.Done()) }, nil
	case "alerts":
		m, err := f.Alerts.WatchHistory(ctx, mirror.Options[alerts.Alert]{Metrics: f.Metrics})
		if err != nil {
			return nil, err
		}
		return func() string { defer m.Close(); return pumpList(ctx, st, m.Updates(), m.Done()) }, nil
	case "profile":
		m, err := f.Profiles.WatchProfile(ctx, sess.Identity, mirror.Options[profiles.Profile]{Metrics: f.Metrics})
		if err != nil {
			return nil, err
		}
		def := profiles.Default(sess.Identity)
		return func() string { defer m.Close(); return pumpValue(ctx, st, m.Updates(), m.Done(), def) }, nil
	case "office":
		m, err := f.Office.Watch(ctx, mirror.Options[office.Info]{Metrics: f.Metrics})
		if err != nil {
			return nil, err
		}
		return func() string { defer m.Close(); return pumpValue(ctx, st, m.Updates(), m.Done(), office.Default()) }, nil
	case "dashboard":
		d, err := f.Dashboard.Watch(ctx, sess.Identity)
		if err != nil {
			return nil, err
		}
		return func() string {
			defer d.Close()
			return pump(ctx, st, d.Updates(), nil, func(s dashboard.Summary) any { return s })
		}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown live feed").
		WithDetails(map[string]string{"feed": feed})
}

func pumpList[T any](ctx context.Context, st *sseStream, updates <-chan mirror.View[T], done <-chan struct{}) string {
	return pump(ctx, st, updates, done, func(v mirror.View[T]) any {
		frame := listFrame[T]{Loaded: v.Loaded, Items: v.Items}
		if frame.Items == nil {
			frame.Items = []T{}
		}
		if v.Err != nil {
			frame.Error = v.Err.Error()
		}
		return frame
	})
}

func pumpValue[T any](ctx context.Context, st *sseStream, updates <-chan mirror.View[T], done <-chan struct{}, def T) string {
	return pump(ctx, st, updates, done, func(v mirror.View[T]) any {
		value, loaded := mirror.ValueOf(v, def)
		return valueFrame[T]{Loaded: loaded, Value: value}
	})
}

// pump relays updates until the client leaves, the source stops, or the
// session ends. It returns why the stream stopped.
func pump[V any](ctx context.Context, st *sseStream, updates <-chan V, done <-chan struct{}, frame func(V) any) string {
	ticker := time.NewTicker(st.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "client_gone"
		case <-done:
			return "source_closed"
		case reason := <-st.ended:
			_ = st.send("end", endFrame{Reason: reason})
			return reason
		case v, ok := <-updates:
			if !ok {
				return "source_closed"
			}
			if err := st.send("snapshot", frame(v)); err != nil {
				return "write_failed"
			}
		case <-ticker.C:
			if err := st.comment("ping"); err != nil {
				return "write_failed"
			}
		}
	}
}

type sseStream struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	heartbeat time.Duration
	ended     <-chan string
	seq       int
}

func (s *sseStream) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseStream) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
