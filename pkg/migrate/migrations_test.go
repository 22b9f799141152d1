package migrate_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/nursecall-backend/pkg/config"
	"github.com/angelmondragon/nursecall-backend/pkg/db"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"github.com/angelmondragon/nursecall-backend/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one migration matching %s, got %d", pattern, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestUsersMigrationContainsSchema(t *testing.T) {
	content := readMigration(t, "*_create_users_table.sql")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS users",
		"password_changed_at timestamptz",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email",
		"DROP TABLE IF EXISTS users",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestDocumentsMigrationContainsSchema(t *testing.T) {
	content := readMigration(t, "*_create_documents_table.sql")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS documents",
		"PRIMARY KEY (collection, doc_key)",
		"DROP TABLE IF EXISTS documents",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestPrepareAutoMigratesSQLite(t *testing.T) {
	cfg := &config.Config{DB: config.DBConfig{Driver: db.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "dev.db")}}
	client, err := db.New(context.Background(), cfg.DB, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer client.Close()

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	if err := migrate.Prepare(context.Background(), cfg, logg, client); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	for _, table := range []string{"users", "documents"} {
		if !client.DB().Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
}
