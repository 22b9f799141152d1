package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Add Alert Index!":      "add_alert_index",
		"  rooms -- floor col ": "rooms_floor_col",
		"!!!":                   "",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

	path, err := CreateSQLMigration(dir, "Add Alert Index", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20260302083000_add_alert_index.sql" {
		t.Fatalf("unexpected path %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(data), "-- +goose Up") {
		t.Fatalf("missing goose header:\n%s", data)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}

	if _, err := CreateSQLMigration(dir, "another", now); err == nil {
		t.Fatal("expected version clash")
	}
	if _, err := CreateSQLMigration(dir, "!!!", now.Add(time.Second)); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestValidateRejectsBadFiles(t *testing.T) {
	cases := map[string]struct {
		name string
		body string
	}{
		"bad name":     {name: "1_rooms.sql", body: "-- +goose Up\n-- +goose Down\n"},
		"missing down": {name: "20260302083000_rooms.sql", body: "-- +goose Up\n"},
		"down first":   {name: "20260302083000_rooms.sql", body: "-- +goose Down\n-- +goose Up\n"},
	}
	for label, tc := range cases {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, tc.name), []byte(tc.body), 0o644); err != nil {
			t.Fatalf("%s: write: %v", label, err)
		}
		if err := ValidateDir(dir); err == nil {
			t.Fatalf("%s: expected validation error", label)
		}
	}
}

func TestEmbeddedMatchesDisk(t *testing.T) {
	embeddedFS, err := Source("")
	if err != nil {
		t.Fatalf("embedded source: %v", err)
	}
	fromBinary, err := List(embeddedFS)
	if err != nil {
		t.Fatalf("list embedded: %v", err)
	}
	fromDisk, err := List(os.DirFS("migrations"))
	if err != nil {
		t.Fatalf("list disk: %v", err)
	}
	if len(fromBinary) == 0 || len(fromBinary) != len(fromDisk) {
		t.Fatalf("expected the same migrations, got %d embedded and %d on disk", len(fromBinary), len(fromDisk))
	}
	for i := range fromDisk {
		if fromBinary[i] != fromDisk[i] {
			t.Fatalf("mismatch at %d: %+v vs %+v", i, fromBinary[i], fromDisk[i])
		}
	}
	if err := Validate(embeddedFS); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestToRejectsMalformedVersion(t *testing.T) {
	r := &Runner{}
	for _, v := range []string{"", "2026", "abcdefghijklmn"} {
		if err := r.To(t.Context(), v); err == nil {
			t.Fatalf("expected error for %q", v)
		}
	}
}
