package security_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/angelmondragon/nursecall-backend/pkg/config"
	"github.com/angelmondragon/nursecall-backend/pkg/security"
)

func TestHashAndVerifyPassword(t *testing.T) {
	cfg := config.PasswordConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}

	hash, err := security.HashPassword("very-secure-password", cfg)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if hash == "" {
		t.Fatal("HashPassword returned empty string")
	}

	ok, err := security.VerifyPassword("very-secure-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyPassword failed for the correct password")
	}

	ok, err = security.VerifyPassword("bogus-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for invalid password: %v", err)
	}
	if ok {
		t.Fatal("VerifyPassword returned true for incorrect password")
	}
}

func TestVerifyPasswordBadHash(t *testing.T) {
	if _, err := security.VerifyPassword("irrelevant", "not-a-hash"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestHashPasswordRejectsShortPasswords(t *testing.T) {
	if _, err := security.HashPassword("12345", config.PasswordConfig{}); err == nil {
		t.Fatal("expected error for password shorter than minimum")
	}
}

func TestGenerateActionCode(t *testing.T) {
	a, err := security.GenerateActionCode(24)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := security.GenerateActionCode(24)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct codes")
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 url-safe characters, got %d", len(a))
	}
	if _, err := security.GenerateActionCode(8); err == nil {
		t.Fatal("expected error for short code")
	}
}

func TestNeedsRehashTracksConfiguredCost(t *testing.T) {
	cheap := config.PasswordConfig{ArgonMemoryKB: 64, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
	hash, err := security.HashPassword("secret1", cheap)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if security.NeedsRehash(hash, cheap) {
		t.Fatal("hash made with the current cost should not need a rehash")
	}
	stronger := cheap
	stronger.ArgonTime = 2
	if !security.NeedsRehash(hash, stronger) {
		t.Fatal("expected rehash after the time cost grew")
	}
	if !security.NeedsRehash("garbage", cheap) {
		t.Fatal("malformed hashes always need a rehash")
	}
}

func TestVerifyPasswordRejectsUnknownVersion(t *testing.T) {
	cfg := config.PasswordConfig{ArgonMemoryKB: 64, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
	hash, _ := security.HashPassword("secret1", cfg)
	tampered := strings.Replace(hash, "v=19", "v=16", 1)
	if _, err := security.VerifyPassword("secret1", tampered); !errors.Is(err, security.ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}
