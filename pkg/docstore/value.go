package docstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record is the decoded form of a stored document.
type Record = map[string]any

type serverValue string

// ServerTimestamp is replaced by the store with the write time in Unix milliseconds.
const ServerTimestamp serverValue = "timestamp"

// Decode copies rec into dst through its JSON form.
func Decode(rec Record, dst any) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// Millis converts t to the integer form stored for timestamps.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// resolve returns a deep copy of rec with server values filled in. When
// keepNil is false, nil fields and empty sub-records are dropped.
func resolve(rec Record, now time.Time, keepNil bool) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		switch val := v.(type) {
		case nil:
			if keepNil {
				out[k] = nil
			}
		case serverValue:
			out[k] = Millis(now)
		case map[string]any:
			nested := resolve(val, now, keepNil)
			if len(nested) > 0 || keepNil {
				out[k] = nested
			}
		default:
			out[k] = val
		}
	}
	return out
}

func encode(rec Record) (string, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return string(raw), nil
}

func decode(data string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// applyPatch merges patch into dst. Keys may address nested fields with "/";
// nil values delete the addressed field.
func applyPatch(dst Record, patch Record) error {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for i := strings.Index(k, "/"); i > 0; i = nextSlash(k, i) {
			if _, ok := patch[k[:i]]; ok {
				return fmt.Errorf("%w: %q overlaps %q", ErrInvalidPatch, k[:i], k)
			}
		}
	}

	for _, k := range keys {
		parts := strings.Split(strings.Trim(k, "/"), "/")
		for _, part := range parts {
			if err := validateSegment(part); err != nil {
				return fmt.Errorf("%w: field %q", ErrInvalidPatch, k)
			}
		}
		v := patch[k]
		cur := dst
		for _, part := range parts[:len(parts)-1] {
			next, ok := cur[part].(map[string]any)
			if !ok {
				if v == nil {
					cur = nil
					break
				}
				next = make(map[string]any)
				cur[part] = next
			}
			cur = next
		}
		if cur == nil {
			continue
		}
		leaf := parts[len(parts)-1]
		if v == nil {
			delete(cur, leaf)
		} else {
			cur[leaf] = v
		}
	}
	prune(dst)
	return nil
}

func nextSlash(s string, from int) int {
	if i := strings.Index(s[from+1:], "/"); i >= 0 {
		return from + 1 + i
	}
	return -1
}

func prune(rec Record) {
	for k, v := range rec {
		if nested, ok := v.(map[string]any); ok {
			prune(nested)
			if len(nested) == 0 {
				delete(rec, k)
			}
		}
	}
}

// field looks up a possibly nested child value addressed with "/".
func field(rec Record, name string) any {
	var cur any = rec
	for _, part := range strings.Split(name, "/") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// compareValues orders values the way the store sorts children:
// null < false < true < numbers < strings < objects.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case rankNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
	case rankString:
		return strings.Compare(a.(string), b.(string))
	}
	return 0
}

const (
	rankNull = iota
	rankFalse
	rankTrue
	rankNumber
	rankString
	rankObject
)

func rank(v any) int {
	switch val := v.(type) {
	case nil:
		return rankNull
	case bool:
		if val {
			return rankTrue
		}
		return rankFalse
	case string:
		return rankString
	}
	if _, ok := toFloat(v); ok {
		return rankNumber
	}
	return rankObject
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
