package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
	sets map[string]map[string]struct{}
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string), sets: make(map[string]map[string]struct{})}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) Take(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	delete(m.data, key)
	return val, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
		delete(m.sets, key)
	}
	return nil
}

func (m *mockStore) AddToSet(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sets[key] == nil {
		m.sets[key] = make(map[string]struct{})
	}
	for _, member := range members {
		m.sets[key][member] = struct{}{}
	}
	return nil
}

func (m *mockStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

func (m *mockStore) AccessSessionKey(accessID string) string {
	return fmt.Sprintf("sess:%s", accessID)
}

func (m *mockStore) UserSessionsKey(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

func newTestManager(store *mockStore) *Manager {
	return &Manager{store: store, keyer: store, ttl: time.Hour, now: time.Now}
}

func TestManagerGenerateAndRotate(t *testing.T) {
	store := newMockStore()
	manager := newTestManager(store)
	ctx := context.Background()

	token, err := manager.Generate(ctx, "uid-1", "access-123")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	stored := store.data[store.AccessSessionKey("access-123")]
	if strings.Contains(stored, token) {
		t.Fatalf("raw refresh token must not be stored: %s", stored)
	}

	newAccessID, newToken, err := manager.Rotate(ctx, "uid-1", "access-123", token)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if newToken == token || newAccessID == "access-123" {
		t.Fatalf("expected fresh credentials")
	}
	if ok, _ := manager.HasSession(ctx, "access-123"); ok {
		t.Fatalf("old session left behind")
	}
	if ok, _ := manager.HasSession(ctx, newAccessID); !ok {
		t.Fatalf("rotated session missing")
	}
	if _, ok := store.sets[store.UserSessionsKey("uid-1")][newAccessID]; !ok {
		t.Fatalf("expected rotated access id indexed under user")
	}

	if _, _, err := manager.Rotate(ctx, "uid-1", "access-123", token); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("refresh token must work once, got %v", err)
	}
}

func TestManagerRotateRejectsWrongTokenAndOwner(t *testing.T) {
	manager := newTestManager(newMockStore())
	ctx := context.Background()

	token, _ := manager.Generate(ctx, "uid-1", "a")
	if _, _, err := manager.Rotate(ctx, "uid-2", "a", token); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected owner mismatch rejected, got %v", err)
	}

	token, _ = manager.Generate(ctx, "uid-1", "b")
	if _, _, err := manager.Rotate(ctx, "uid-1", "b", token+"x"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected wrong token rejected, got %v", err)
	}
	if ok, _ := manager.HasSession(ctx, "b"); ok {
		t.Fatalf("a wrong refresh token ends the session")
	}
}

func TestManagerRevokeUserDropsEverySession(t *testing.T) {
	store := newMockStore()
	manager := newTestManager(store)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := manager.Generate(ctx, "uid-1", id); err != nil {
			t.Fatalf("generate %s: %v", id, err)
		}
	}
	if _, err := manager.Generate(ctx, "uid-2", "c"); err != nil {
		t.Fatalf("generate c: %v", err)
	}

	if err := manager.RevokeUser(ctx, "uid-1"); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	for _, id := range []string{"a", "b"} {
		ok, err := manager.HasSession(ctx, id)
		if err != nil || ok {
			t.Fatalf("expected session %s revoked, ok=%v err=%v", id, ok, err)
		}
	}
	if ok, _ := manager.HasSession(ctx, "c"); !ok {
		t.Fatalf("other users' sessions must survive")
	}
}

func TestManagerRejectsBlankIDs(t *testing.T) {
	manager := newTestManager(newMockStore())
	if _, err := manager.Generate(context.Background(), "", "a"); err == nil {
		t.Fatal("expected error for blank user id")
	}
	if err := manager.Revoke(context.Background(), " "); err == nil {
		t.Fatal("expected error for blank access id")
	}
}
