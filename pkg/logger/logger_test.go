package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func decodeLast(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("decode entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestErrorCarriesContextFieldsAndCallers(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "nursecall-api", Level: "debug", Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithFeed(ctx, "alerts")

	log.Error(ctx, "mirror.refresh_failed", errors.New("boom"))

	entry := decodeLast(t, buf)
	if entry["request_id"] != "req-123" || entry["feed"] != "alerts" {
		t.Fatalf("context fields missing: %v", entry)
	}
	if entry["service"] != "nursecall-api" || entry["error"] != "boom" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	stack, ok := entry["stack"].([]any)
	if !ok || len(stack) == 0 {
		t.Fatalf("expected caller frames, got %v", entry["stack"])
	}
	if !strings.Contains(stack[0].(string), "TestErrorCarriesContextFieldsAndCallers") {
		t.Fatalf("first frame should be the caller, got %v", stack[0])
	}
}

func TestScopedFieldsDoNotLeakToParent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	parent := log.WithField(context.Background(), "room", "101")
	_ = log.WithUserID(parent, "nurse-1")

	log.Info(parent, "parent")
	entry := decodeLast(t, buf)
	if entry["room"] != "101" {
		t.Fatalf("expected room field, got %v", entry)
	}
	if _, leaked := entry["user_id"]; leaked {
		t.Fatalf("child field leaked into parent: %v", entry)
	}
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	if _, ok := decodeLast(t, buf)["stack"]; !ok {
		t.Fatalf("expected stack when warn stack enabled")
	}

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Output: buf})
	quiet.Warn(context.Background(), "warny")
	if _, ok := decodeLast(t, buf)["stack"]; ok {
		t.Fatalf("expected no stack when warn stack disabled")
	}
}

func TestDebugRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: "info", Output: buf})
	log.Debug(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug entry should be filtered at info level: %s", buf.String())
	}
}

func TestUnsetLevelDefaultsToInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	log.Debug(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug entry should be filtered without a level: %s", buf.String())
	}
	log.Info(context.Background(), "shown")
	if decodeLast(t, buf)["level"] != "info" {
		t.Fatalf("expected info entry, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"invalid": zerolog.InfoLevel,
		" WARN ":  zerolog.WarnLevel,
		"debug":   zerolog.DebugLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
