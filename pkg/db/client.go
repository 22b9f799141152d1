// Package db opens the relational store behind documents and credentials:
// Postgres in deployments, a single SQLite file for local runs and tests.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/nursecall-backend/pkg/config"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var ErrMissingDSN = errors.New("db: dsn required for postgres")

type Client struct {
	conn   *gorm.DB
	driver string
}

// New opens the configured database and tunes its pool.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	driver, dialector, err := open(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", driver, err)
	}
	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("db: pool handle: %w", err)
	}
	tunePool(pool, driver, cfg)

	if logg != nil {
		logg.Info(logg.WithField(ctx, "driver", driver), "db.connected")
	}
	return &Client{conn: conn, driver: driver}, nil
}

func open(cfg config.DBConfig) (string, gorm.Dialector, error) {
	if strings.EqualFold(cfg.Driver, DriverSQLite) {
		path := cfg.SQLitePath
		if path == "" {
			path = config.DefaultSQLitePath
		}
		if !strings.Contains(path, "?") {
			// WAL lets live readers proceed while a command commits.
			path += "?_journal_mode=WAL&_busy_timeout=5000"
		}
		return DriverSQLite, sqlite.Open(path), nil
	}
	if cfg.DSN == "" {
		return "", nil, ErrMissingDSN
	}
	return DriverPostgres, postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}), nil
}

func tunePool(pool *sql.DB, driver string, cfg config.DBConfig) {
	switch driver {
	case DriverSQLite:
		// one writer at a time
		pool.SetMaxOpenConns(1)
	default:
		if cfg.MaxOpenConns > 0 {
			pool.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			pool.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func (c *Client) DB() *gorm.DB { return c.conn }

func (c *Client) Driver() string { return c.driver }

// AutoMigrate is the SQLite substitute for the Goose migrations.
func (c *Client) AutoMigrate(ctx context.Context, models ...any) error {
	return c.conn.WithContext(ctx).AutoMigrate(models...)
}

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in a transaction. An error or panic from fn rolls back.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
