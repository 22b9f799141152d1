package migrate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/angelmondragon/nursecall-backend/pkg/config"
	"github.com/angelmondragon/nursecall-backend/pkg/db"
	"github.com/angelmondragon/nursecall-backend/pkg/db/models"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
)

// Models lists the tables gorm creates for the SQLite driver.
func Models() []any {
	return []any{&models.User{}, &models.Document{}}
}

// Prepare brings the schema in line before a process starts serving.
//
// SQLite is auto-migrated every time. Postgres is migrated only in dev with
// the auto-migrate flag; elsewhere the applied version is compared with the
// newest embedded migration and a lagging schema is logged, since migrations
// ship through cmd/migrate ahead of the rollout.
func Prepare(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if client.Driver() == db.DriverSQLite {
		logg.Info(logg.WithField(ctx, "path", cfg.DB.SQLitePath), "migrate.sqlite_automigrate")
		if err := client.AutoMigrate(ctx, Models()...); err != nil {
			return fmt.Errorf("auto-migrating sqlite: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, "", logg)
	if err != nil {
		return err
	}
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	if cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate {
		if err := runner.Up(ctx); err != nil {
			return err
		}
		logg.Info(ctx, "migrate.dev_autorun_complete")
		return nil
	}
	return checkVersion(ctx, runner, logg)
}

func checkVersion(ctx context.Context, runner *Runner, logg *logger.Logger) error {
	files, err := List(runner.fsys)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}
	current, err := runner.Version(ctx)
	if err != nil {
		return err
	}
	newest, err := strconv.ParseInt(files[len(files)-1].Version, 10, 64)
	if err != nil {
		return fmt.Errorf("parse migration version: %w", err)
	}
	ctx = logg.WithFields(ctx, map[string]any{"applied": current, "embedded": newest})
	if current < newest {
		logg.Warn(ctx, "migrate.schema_behind")
		return nil
	}
	logg.Debug(ctx, "migrate.schema_current")
	return nil
}
