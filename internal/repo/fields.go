package repo

import (
	"strings"

	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
	"github.com/angelmondragon/nursecall-backend/pkg/mirror"
)

// String returns the trimmed string at key, or "" when absent or not a string.
func String(rec docstore.Record, key string) string {
	v, _ := rec[key].(string)
	return strings.TrimSpace(v)
}

// Display returns the string at key, or the placeholder when it is blank.
func Display(rec docstore.Record, key string) string {
	if v := String(rec, key); v != "" {
		return v
	}
	return mirror.Placeholder
}

// Int64 returns the number at key truncated to an integer.
func Int64(rec docstore.Record, key string) (int64, bool) {
	switch v := rec[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// Bool returns the boolean at key, or def when absent.
func Bool(rec docstore.Record, key string, def bool) bool {
	if v, ok := rec[key].(bool); ok {
		return v
	}
	return def
}

// Sub returns the nested record at key, or nil.
func Sub(rec docstore.Record, key string) docstore.Record {
	v, _ := rec[key].(map[string]any)
	return v
}

// OptionalText trims s and maps blank input to nil so the field is not stored.
func OptionalText(s *string) any {
	if s == nil {
		return nil
	}
	if v := strings.TrimSpace(*s); v != "" {
		return v
	}
	return nil
}
