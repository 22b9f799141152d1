package auth

import (
	"context"
	"testing"

	pkgAuth "github.com/angelmondragon/nursecall-backend/pkg/auth"
	"github.com/angelmondragon/nursecall-backend/pkg/notify"
)

func TestGateRoutesChangesByUID(t *testing.T) {
	hub := notify.NewLocal()
	gate, err := NewGate(context.Background(), hub, nil)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	defer gate.Close()

	var mine, theirs []Change
	stopMine := gate.OnIdentityChanged("u1", func(c Change) { mine = append(mine, c) })
	stopTheirs := gate.OnIdentityChanged("u2", func(c Change) { theirs = append(theirs, c) })
	defer stopTheirs()

	ctx := context.Background()
	if err := gate.Announce(ctx, Change{UID: "u1", Kind: ChangeSignedOut, AccessID: "a1"}); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if len(mine) != 1 || len(theirs) != 0 {
		t.Fatalf("expected one change for u1 only, got %v / %v", mine, theirs)
	}

	stopMine()
	stopMine()
	if gate.Watchers("u1") != 0 {
		t.Fatalf("expected no watchers after unsubscribe")
	}
	if err := gate.Announce(ctx, Change{UID: "u1", Kind: ChangeCredentialsRevoked}); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("unsubscribed callback ran again")
	}
}

func TestGateIgnoresMalformedPayloads(t *testing.T) {
	hub := notify.NewLocal()
	gate, err := NewGate(context.Background(), hub, nil)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	defer gate.Close()

	called := false
	gate.OnIdentityChanged("u1", func(Change) { called = true })
	_ = hub.Publish(context.Background(), identityTopic, []byte("not json"))
	_ = hub.Publish(context.Background(), identityTopic, []byte(`{"kind":"signed_out"}`))
	if called {
		t.Fatalf("malformed change must not reach callbacks")
	}
}

func TestGateCloseStopsListening(t *testing.T) {
	hub := notify.NewLocal()
	gate, err := NewGate(context.Background(), hub, nil)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	if hub.Listeners(identityTopic) != 1 {
		t.Fatalf("expected gate to listen")
	}
	gate.Close()
	gate.Close()
	if hub.Listeners(identityTopic) != 0 {
		t.Fatalf("expected listener removed on close")
	}
}

func TestGateCurrent(t *testing.T) {
	gate, err := NewGate(context.Background(), notify.NewLocal(), nil)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	defer gate.Close()

	if _, ok := gate.Current(context.Background()); ok {
		t.Fatalf("expected no identity on a bare context")
	}
	ctx := pkgAuth.WithSession(context.Background(), pkgAuth.Session{Identity: pkgAuth.Identity{UID: "u1"}})
	id, ok := gate.Current(ctx)
	if !ok || id.UID != "u1" {
		t.Fatalf("expected u1, got %+v", id)
	}
}
