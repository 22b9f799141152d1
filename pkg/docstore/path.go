package docstore

import (
	"errors"
	"fmt"
	"strings"
)

const maxSegmentLen = 128

var (
	ErrInvalidPath   = errors.New("invalid store path")
	ErrNotRecord     = errors.New("path does not address a single record")
	ErrNotCollection = errors.New("path does not address a collection")
	ErrEmptyRecord   = errors.New("record has no fields")
	ErrInvalidPatch  = errors.New("invalid update patch")
	ErrNotFound      = errors.New("record not found")
)

// Path addresses either a whole collection ("rooms") or one record ("rooms/<key>").
type Path struct {
	Collection string
	Key        string
}

// ParsePath validates raw and splits it into collection and key.
func ParsePath(raw string) (Path, error) {
	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return Path{}, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) > 2 {
		return Path{}, fmt.Errorf("%w: %q is nested deeper than collection/key", ErrInvalidPath, raw)
	}
	for _, part := range parts {
		if err := validateSegment(part); err != nil {
			return Path{}, err
		}
	}
	p := Path{Collection: parts[0]}
	if len(parts) == 2 {
		p.Key = parts[1]
	}
	return p, nil
}

// Join builds "collection/key" without validating it.
func Join(collection, key string) string {
	return collection + "/" + key
}

func (p Path) IsRecord() bool { return p.Key != "" }

func (p Path) String() string {
	if p.Key == "" {
		return p.Collection
	}
	return Join(p.Collection, p.Key)
}

func validateSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("%w: empty segment", ErrInvalidPath)
	}
	if len(seg) > maxSegmentLen {
		return fmt.Errorf("%w: segment longer than %d bytes", ErrInvalidPath, maxSegmentLen)
	}
	if strings.ContainsAny(seg, ".#$[]") {
		return fmt.Errorf("%w: segment %q contains a reserved character", ErrInvalidPath, seg)
	}
	for _, r := range seg {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: segment contains control characters", ErrInvalidPath)
		}
	}
	return nil
}
