package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/nursecall-backend/pkg/config"
	"github.com/angelmondragon/nursecall-backend/pkg/db"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"github.com/angelmondragon/nursecall-backend/pkg/migrate"
)

const usage = "migration command: up|down|status|version|to|create|validate"

func main() {
	cmd := flag.String("cmd", "up", usage)
	dir := flag.String("dir", "", "migrations directory (default: the set compiled into this binary)")
	name := flag.String("name", "", "description of the new migration (-cmd=create)")
	target := flag.String("version", "", "target version YYYYMMDDHHMMSS (-cmd=to)")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	// create and validate work on files only.
	switch *cmd {
	case "create":
		out := *dir
		if out == "" {
			out = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(out, *name, time.Now())
		exitOn(err, "create migration")
		fmt.Println("created migration:", path)
		return
	case "validate":
		exitOn(migrate.ValidateDir(*dir), "validate migrations")
		fmt.Println("migrations valid")
		return
	}

	cfg, err := config.Load()
	exitOn(err, "load config")
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(err, "open database")
	defer dbClient.Close()

	if dbClient.Driver() == db.DriverSQLite {
		if *cmd != "up" {
			exitOn(fmt.Errorf("sqlite only supports -cmd=up"), "migrate")
		}
		exitOn(dbClient.AutoMigrate(ctx, migrate.Models()...), "auto-migrate sqlite")
		logg.Info(ctx, "sqlite schema up to date")
		return
	}

	sqlDB, err := dbClient.DB().DB()
	exitOn(err, "extract sql.DB")
	runner, err := migrate.NewRunner(sqlDB, *dir, logg)
	exitOn(err, "load migrations")

	switch *cmd {
	case "up":
		err = runner.Up(ctx)
	case "down":
		err = runner.Down(ctx)
	case "status":
		err = runner.Status(ctx)
	case "version":
		var v int64
		if v, err = runner.Version(ctx); err == nil {
			fmt.Println(v)
		}
	case "to":
		if *target == "" {
			err = fmt.Errorf("-version is required")
		} else {
			err = runner.To(ctx, *target)
		}
	default:
		err = fmt.Errorf("unknown -cmd %q (%s)", *cmd, usage)
	}
	exitOn(err, "goose "+*cmd)
	logg.Info(ctx, "migrate finished")
}

func exitOn(err error, what string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
