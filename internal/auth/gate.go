package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pkgauth "github.com/angelmondragon/nursecall-backend/pkg/auth"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"github.com/angelmondragon/nursecall-backend/pkg/notify"
)

const identityTopic = "auth:identity"

// ChangeKind names what happened to an identity.
type ChangeKind string

const (
	// ChangeSignedOut ends one session, or every session when AccessID is empty.
	ChangeSignedOut ChangeKind = "signed_out"
	// ChangeCredentialsRevoked ends every session after a password change or reset.
	ChangeCredentialsRevoked ChangeKind = "credentials_revoked"
)

// Change is announced whenever an identity stops being signed in somewhere.
type Change struct {
	UID      string     `json:"uid"`
	Kind     ChangeKind `json:"kind"`
	AccessID string     `json:"access_id,omitempty"`
}

// Affects reports whether c ends the session identified by accessID.
func (c Change) Affects(accessID string) bool {
	return c.AccessID == "" || c.AccessID == accessID
}

// Gate tracks who is signed in and tells interested parties when that changes.
// Announcements travel through the notifier so every instance sees them.
type Gate struct {
	notifier notify.Notifier
	logg     *logger.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]func(Change)

	stop      func()
	closeOnce sync.Once
}

// NewGate starts listening for identity changes.
func NewGate(ctx context.Context, notifier notify.Notifier, logg *logger.Logger) (*Gate, error) {
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	g := &Gate{
		notifier: notifier,
		logg:     logg,
		subs:     make(map[string]map[uint64]func(Change)),
	}
	stop, err := notifier.Listen(ctx, identityTopic, g.dispatch)
	if err != nil {
		return nil, fmt.Errorf("listen for identity changes: %w", err)
	}
	g.stop = stop
	return g, nil
}

// Current returns the identity of the verified caller on ctx.
func (g *Gate) Current(ctx context.Context) (pkgauth.Identity, bool) {
	s, ok := pkgauth.SessionFromContext(ctx)
	if !ok {
		return pkgauth.Identity{}, false
	}
	return s.Identity, true
}

// OnIdentityChanged registers fn for changes to uid. The returned func
// unsubscribes and may be called more than once.
func (g *Gate) OnIdentityChanged(uid string, fn func(Change)) func() {
	g.mu.Lock()
	g.nextID++
	id := g.nextID
	if g.subs[uid] == nil {
		g.subs[uid] = make(map[uint64]func(Change))
	}
	g.subs[uid][id] = fn
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			delete(g.subs[uid], id)
			if len(g.subs[uid]) == 0 {
				delete(g.subs, uid)
			}
		})
	}
}

// Announce broadcasts c to every instance.
func (g *Gate) Announce(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal identity change: %w", err)
	}
	return g.notifier.Publish(ctx, identityTopic, payload)
}

// Watchers reports how many callbacks are registered for uid.
func (g *Gate) Watchers(uid string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.subs[uid])
}

// Close stops listening. Registered callbacks are dropped.
func (g *Gate) Close() {
	g.closeOnce.Do(func() {
		if g.stop != nil {
			g.stop()
		}
		g.mu.Lock()
		g.subs = make(map[string]map[uint64]func(Change))
		g.mu.Unlock()
	})
}

func (g *Gate) dispatch(payload []byte) {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil || c.UID == "" {
		if g.logg != nil {
			g.logg.Warn(context.Background(), "auth.identity_change_dropped")
		}
		return
	}

	g.mu.Lock()
	fns := make([]func(Change), 0, len(g.subs[c.UID]))
	for _, fn := range g.subs[c.UID] {
		fns = append(fns, fn)
	}
	g.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
