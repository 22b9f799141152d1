// Package session keeps refresh sessions in Redis. Each access token jti maps
// to one session record; a user index lets sign-out-everywhere find them.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/nursecall-backend/pkg/config"
	redisclient "github.com/angelmondragon/nursecall-backend/pkg/redis"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
)

const refreshTokenBytes = 32

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	errBlankID             = errors.New("session: blank id")
)

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Take(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AddToSet(ctx context.Context, key string, ttl time.Duration, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
}

type sessionKeyer interface {
	AccessSessionKey(accessID string) string
	UserSessionsKey(userID string) string
}

// AccessSessionChecker is what request middleware needs to reject tokens of
// signed-out sessions.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// record is stored per access ID. Only a digest of the refresh token is kept.
type record struct {
	UID       string    `json:"uid"`
	TokenHash string    `json:"token_hash"`
	IssuedAt  time.Time `json:"issued_at"`
}

type Manager struct {
	store sessionStore
	keyer sessionKeyer
	ttl   time.Duration
	now   func() time.Time
}

// NewManager requires a refresh TTL longer than the access token lifetime.
func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, errors.New("session: redis client required")
	}
	ttl := cfg.RefreshTokenTTL()
	access := time.Duration(cfg.ExpirationMinutes) * time.Minute
	if ttl <= access {
		return nil, fmt.Errorf("session: refresh ttl %s must exceed access ttl %s", ttl, access)
	}
	return &Manager{store: client, keyer: client, ttl: ttl, now: time.Now}, nil
}

// NewAccessID returns the identifier used as JWT jti and session key.
func NewAccessID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// Generate opens a session for accessID and returns its refresh token.
func (m *Manager) Generate(ctx context.Context, userID, accessID string) (string, error) {
	if blank(userID, accessID) {
		return "", errBlankID
	}
	return m.open(ctx, userID, accessID)
}

// Rotate consumes the session behind oldAccessID and opens a new one. The old
// record is taken atomically, so a refresh token works once; presenting a
// wrong token also ends the session.
func (m *Manager) Rotate(ctx context.Context, userID, oldAccessID, provided string) (string, string, error) {
	if blank(userID, oldAccessID, provided) {
		return "", "", ErrInvalidRefreshToken
	}
	raw, err := m.store.Take(ctx, m.keyer.AccessSessionKey(oldAccessID))
	if errors.Is(err, redislib.Nil) {
		return "", "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", "", err
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return "", "", ErrInvalidRefreshToken
	}
	if rec.UID != userID || subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(digest(provided))) != 1 {
		return "", "", ErrInvalidRefreshToken
	}

	accessID := NewAccessID()
	token, err := m.open(ctx, userID, accessID)
	if err != nil {
		return "", "", err
	}
	return accessID, token, nil
}

// Revoke ends one session.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if blank(accessID) {
		return errBlankID
	}
	return m.store.Del(ctx, m.keyer.AccessSessionKey(accessID))
}

// RevokeUser ends every session of userID.
func (m *Manager) RevokeUser(ctx context.Context, userID string) error {
	if blank(userID) {
		return errBlankID
	}
	index := m.keyer.UserSessionsKey(userID)
	ids, err := m.store.SetMembers(ctx, index)
	if err != nil {
		return err
	}
	keys := []string{index}
	for _, id := range ids {
		keys = append(keys, m.keyer.AccessSessionKey(id))
	}
	return m.store.Del(ctx, keys...)
}

// HasSession reports whether accessID is still signed in.
func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if blank(accessID) {
		return false, errBlankID
	}
	_, err := m.store.Get(ctx, m.keyer.AccessSessionKey(accessID))
	switch {
	case errors.Is(err, redislib.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (m *Manager) open(ctx context.Context, userID, accessID string) (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session: refresh token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	payload, err := json.Marshal(record{UID: userID, TokenHash: digest(token), IssuedAt: m.clock().UTC()})
	if err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, m.keyer.AccessSessionKey(accessID), string(payload), m.ttl); err != nil {
		return "", err
	}
	if err := m.store.AddToSet(ctx, m.keyer.UserSessionsKey(userID), m.ttl, accessID); err != nil {
		return "", err
	}
	return token, nil
}

func (m *Manager) clock() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func blank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}
