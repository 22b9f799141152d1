package repo

import (
	"testing"

	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
	"github.com/angelmondragon/nursecall-backend/pkg/mirror"
)

func TestFieldHelpers(t *testing.T) {
	rec := docstore.Record{
		"name":   "  Room 12B ",
		"blank":  "   ",
		"count":  float64(42),
		"active": false,
		"head":   map[string]any{"name": "Dr. A"},
	}
	if got := String(rec, "name"); got != "Room 12B" {
		t.Fatalf("String = %q", got)
	}
	if got := Display(rec, "blank"); got != mirror.Placeholder {
		t.Fatalf("Display blank = %q", got)
	}
	if got := Display(rec, "missing"); got != mirror.Placeholder {
		t.Fatalf("Display missing = %q", got)
	}
	if n, ok := Int64(rec, "count"); !ok || n != 42 {
		t.Fatalf("Int64 = %d %v", n, ok)
	}
	if _, ok := Int64(rec, "name"); ok {
		t.Fatal("string should not convert to int")
	}
	if Bool(rec, "active", true) {
		t.Fatal("explicit false must win over default")
	}
	if !Bool(rec, "missing", true) {
		t.Fatal("missing bool should use default")
	}
	if Sub(rec, "head")["name"] != "Dr. A" {
		t.Fatal("expected nested record")
	}

	blank := "  "
	if OptionalText(&blank) != nil || OptionalText(nil) != nil {
		t.Fatal("blank optional text should map to nil")
	}
	floor := " 3rd Floor "
	if OptionalText(&floor) != "3rd Floor" {
		t.Fatal("optional text should be trimmed")
	}
}
