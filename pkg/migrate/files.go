package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const versionLen = 14

var (
	fileNameRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	slugRe     = regexp.MustCompile(`[^a-z0-9]+`)
)

// File is one migration on disk.
type File struct {
	Version string
	Name    string
	Path    string
}

// Slug turns a free-form description into a migration name.
func Slug(name string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// CreateSQLMigration writes an empty Up/Down migration stamped with now and
// returns its path. A second migration in the same second is refused.
func CreateSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := Slug(name)
	if slug == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}
	existing, err := List(os.DirFS(dir))
	if err != nil {
		return "", err
	}
	version := now.UTC().Format("20060102150405")
	for _, f := range existing {
		if f.Version == version {
			return "", fmt.Errorf("version %s already used by %s", version, f.Path)
		}
	}

	path := filepath.Join(dir, version+"_"+slug+".sql")
	body := "-- +goose Up\n-- " + slug + "\n\n-- +goose Down\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

// List returns the migrations in fsys ordered by version. Non-SQL files are
// ignored; badly named SQL files are an error.
func List(fsys fs.FS) ([]File, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	files := make([]File, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := fileNameRe.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name())
		}
		files = append(files, File{Version: m[1], Name: m[2], Path: e.Name()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

// Validate checks names, version uniqueness, and that every file declares
// both goose directions.
func Validate(fsys fs.FS) error {
	files, err := List(fsys)
	if err != nil {
		return err
	}
	for i, f := range files {
		if i > 0 && files[i-1].Version == f.Version {
			return fmt.Errorf("duplicate migration version %s in %q and %q", f.Version, files[i-1].Path, f.Path)
		}
		data, err := fs.ReadFile(fsys, f.Path)
		if err != nil {
			return fmt.Errorf("read %q: %w", f.Path, err)
		}
		text := string(data)
		up := strings.Index(text, "-- +goose Up")
		down := strings.Index(text, "-- +goose Down")
		switch {
		case up < 0:
			return fmt.Errorf("migration %q missing \"-- +goose Up\"", f.Path)
		case down < 0:
			return fmt.Errorf("migration %q missing \"-- +goose Down\"", f.Path)
		case down < up:
			return fmt.Errorf("migration %q declares Down before Up", f.Path)
		}
	}
	return nil
}

// ValidateDir is Validate on a directory.
func ValidateDir(dir string) error {
	fsys, err := Source(dir)
	if err != nil {
		return err
	}
	return Validate(fsys)
}
