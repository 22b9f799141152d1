package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNotifierDeliversAcrossConnections(t *testing.T) {
	client := newMiniredisClient(t)
	notifier, err := NewNotifier(client, nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	ctx := context.Background()
	got := make(chan string, 1)
	cancel, err := notifier.Listen(ctx, "docstore:rooms", func(payload []byte) {
		select {
		case got <- string(payload):
		default:
		}
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer cancel()

	if err := notifier.Publish(ctx, "docstore:rooms", []byte(`{"collection":"rooms"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case payload := <-got:
		if payload != `{"collection":"rooms"}` {
			t.Fatalf("unexpected payload %q", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestNotifierCancelIsIdempotent(t *testing.T) {
	client := newMiniredisClient(t)
	notifier, err := NewNotifier(client, nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	cancel, err := notifier.Listen(context.Background(), "docstore:alerts", func([]byte) {})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cancel()
	cancel()
}

func TestNewNotifierRequiresClient(t *testing.T) {
	if _, err := NewNotifier(nil, nil); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewNotifier(&Client{}, nil); err == nil {
		t.Fatal("expected error for uninitialized client")
	}
}

func TestCooldownWithMiniredis(t *testing.T) {
	client := newMiniredisClient(t)
	ctx := context.Background()

	ok, _, err := client.AcquireCooldown(ctx, "reset:nurse@example.com", 30*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}
	ok, remaining, err := client.AcquireCooldown(ctx, "reset:nurse@example.com", 30*time.Second)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("expected cooldown to block second acquire")
	}
	if remaining <= 0 || remaining > 30*time.Second {
		t.Fatalf("unexpected remaining %v", remaining)
	}

	if err := client.ReleaseCooldown(ctx, "reset:nurse@example.com"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _, _ := client.AcquireCooldown(ctx, "reset:nurse@example.com", 30*time.Second); !ok {
		t.Fatal("expected acquire after release")
	}
}

func TestTakeConsumesValue(t *testing.T) {
	client := newMiniredisClient(t)
	ctx := context.Background()
	key := client.ResetTokenKey("code-1")
	if err := client.Set(ctx, key, "uid-1", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, err := client.Take(ctx, key)
	if err != nil || val != "uid-1" {
		t.Fatalf("unexpected take result %q err=%v", val, err)
	}
	if _, err := client.Take(ctx, key); err != redis.Nil {
		t.Fatalf("expected redis.Nil on second take, got %v", err)
	}
}
