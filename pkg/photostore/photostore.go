// Package photostore saves uploaded images and hands back a URL clients can
// load them from.
package photostore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound      = errors.New("photo not found")
	ErrInvalidObject = errors.New("invalid object name")
	// ErrRejected marks uploads the backend refused outright; retrying the
	// same request will not help.
	ErrRejected = errors.New("upload rejected")
)

// Uploader stores objects.
type Uploader interface {
	Upload(ctx context.Context, object, contentType string, r io.Reader) (publicURL string, err error)
	DeleteObject(ctx context.Context, object string) error
}

// Local keeps objects on disk and serves them under a public base URL.
type Local struct {
	basePath   string
	publicBase string
}

// NewLocal creates basePath if needed.
func NewLocal(basePath, publicBase string) (*Local, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Local{basePath: basePath, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

func (s *Local) Upload(_ context.Context, object, _ string, r io.Reader) (string, error) {
	filePath, err := s.safeJoin(object)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return "", err
	}

	f, err := os.Create(filePath)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(filePath)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(filePath)
		return "", err
	}
	return s.publicBase + "/" + strings.TrimLeft(filepath.ToSlash(object), "/"), nil
}

func (s *Local) DeleteObject(_ context.Context, object string) error {
	filePath, err := s.safeJoin(object)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Open returns the stored object.
func (s *Local) Open(object string) (io.ReadCloser, error) {
	filePath, err := s.safeJoin(object)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return f, err
}

// Handler serves stored objects; mount it under the public base path.
func (s *Local) Handler() http.Handler {
	return http.StripPrefix(s.publicBase, http.FileServer(http.Dir(s.basePath)))
}

// safeJoin resolves object relative to basePath and rejects traversal.
func (s *Local) safeJoin(object string) (string, error) {
	if strings.TrimSpace(object) == "" {
		return "", ErrInvalidObject
	}
	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(filepath.Join(s.basePath, object))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", ErrInvalidObject
	}
	return absPath, nil
}

// ExtensionFor maps an image content type to a file extension.
func ExtensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	default:
		return ".jpg"
	}
}
