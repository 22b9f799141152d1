// Package migrate owns the Postgres schema. Migrations are compiled into the
// binary; a directory on disk can replace them while authoring new ones.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/nursecall-backend/pkg/logger"
)

// DefaultDir is where new migrations are written, relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// goose keeps its filesystem and dialect in package globals.
var gooseMu sync.Mutex

// Runner applies migrations from one source to one database.
type Runner struct {
	db   *sql.DB
	fsys fs.FS
	logg *logger.Logger
}

// NewRunner uses the embedded migrations when dir is empty.
func NewRunner(db *sql.DB, dir string, logg *logger.Logger) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	fsys, err := Source(dir)
	if err != nil {
		return nil, err
	}
	return &Runner{db: db, fsys: fsys, logg: logg}, nil
}

// Source returns the migration files rooted at their directory.
func Source(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, "migrations")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("migrations dir %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations dir %q is not a directory", dir)
	}
	return os.DirFS(dir), nil
}

func (r *Runner) Up(ctx context.Context) error {
	return r.with(ctx, "up", func() error { return goose.UpContext(ctx, r.db, ".") })
}

func (r *Runner) Down(ctx context.Context) error {
	return r.with(ctx, "down", func() error { return goose.DownContext(ctx, r.db, ".") })
}

// Status prints applied and pending migrations through goose's logger.
func (r *Runner) Status(ctx context.Context) error {
	return r.with(ctx, "status", func() error { return goose.StatusContext(ctx, r.db, ".") })
}

// Version reports the highest applied migration.
func (r *Runner) Version(ctx context.Context) (int64, error) {
	var version int64
	err := r.with(ctx, "version", func() error {
		v, err := goose.GetDBVersionContext(ctx, r.db)
		version = v
		return err
	})
	return version, err
}

// To moves the schema up or down until target (YYYYMMDDHHMMSS) is the
// current version.
func (r *Runner) To(ctx context.Context, target string) error {
	want, err := strconv.ParseInt(target, 10, 64)
	if err != nil || len(target) != versionLen {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", target)
	}
	current, err := r.Version(ctx)
	if err != nil {
		return err
	}
	switch {
	case current < want:
		return r.with(ctx, "up-to", func() error { return goose.UpToContext(ctx, r.db, ".", want) })
	case current > want:
		return r.with(ctx, "down-to", func() error { return goose.DownToContext(ctx, r.db, ".", want) })
	}
	return nil
}

func (r *Runner) with(ctx context.Context, command string, fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(r.fsys)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := fn(); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	if r.logg != nil {
		r.logg.Debug(r.logg.WithField(ctx, "command", command), "goose command completed")
	}
	return nil
}
