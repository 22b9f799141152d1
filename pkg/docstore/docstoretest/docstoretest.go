// Package docstoretest opens throwaway document stores for tests.
package docstoretest

import (
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/nursecall-backend/pkg/db/models"
	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// New returns a store on a private in-memory SQLite database.
func New(t testing.TB) *docstore.Store {
	t.Helper()
	return NewWithClock(t, nil)
}

// NewWithClock is New with a fixed server clock.
func NewWithClock(t testing.TB, clock func() time.Time) *docstore.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := conn.AutoMigrate(&models.Document{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	store, err := docstore.New(conn, docstore.Options{Clock: clock})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}
