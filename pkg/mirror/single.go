package mirror

import (
	"context"

	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
)

// Single mirrors one record and substitutes a default when it is missing or
// unreadable.
type Single[T any] struct {
	*Mirror[T]
	def T
}

// OpenSingle mirrors the record at path. A missing record yields def.
func OpenSingle[T any](ctx context.Context, src Source, path string, def T, decode func(key string, rec docstore.Record) T, opts Options[T]) (*Single[T], error) {
	m, err := Open(ctx, src, Spec[T]{
		Path:     path,
		Decode:   decode,
		Fallback: []T{def},
	}, opts)
	if err != nil {
		return nil, err
	}
	return &Single[T]{Mirror: m, def: def}, nil
}

// Current returns the mirrored value and whether the first snapshot arrived.
func (s *Single[T]) Current() (T, bool) {
	return ValueOf(s.View(), s.def)
}

// ValueOf collapses a single-record view to its value.
func ValueOf[T any](v View[T], def T) (T, bool) {
	if !v.Loaded {
		return def, false
	}
	if len(v.Items) == 0 {
		return def, true
	}
	return v.Items[0], true
}
