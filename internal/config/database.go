package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const pingTimeout = 5 * time.Second

// Database is the membership store connection plus its schema migrations
type Database struct {
	*sql.DB
	logger *logrus.Logger
}

// SchemaVersion is the state of the migrations table
type SchemaVersion struct {
	Version uint
	Dirty   bool
	// Empty is set when no migration was ever applied
	Empty bool
}

// NewDatabase opens and pings the postgres database at databaseURL
func NewDatabase(databaseURL string, pool PoolConfig, logger *logrus.Logger) (*Database, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"max_open": pool.MaxOpenConns,
		"max_idle": pool.MaxIdleConns,
	}).Info("Database connection established")

	return &Database{DB: db, logger: logger}, nil
}

// migrator binds the migration files under path to this connection.
// Closing the returned instance would close the shared *sql.DB, so callers don't.
func (d *Database) migrator(path string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(d.DB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations from %s: %w", path, err)
	}
	return m, nil
}

// Migrate applies every pending migration
func (d *Database) Migrate(path string) error {
	m, err := d.migrator(path)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return d.logVersion(m, "Database schema is up to date")
}

// Rollback reverts the last steps migrations
func (d *Database) Rollback(path string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("rollback steps must be positive, got %d", steps)
	}
	m, err := d.migrator(path)
	if err != nil {
		return err
	}
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return d.logVersion(m, fmt.Sprintf("Rolled back %d migration(s)", steps))
}

// Version reports the applied schema version
func (d *Database) Version(path string) (SchemaVersion, error) {
	m, err := d.migrator(path)
	if err != nil {
		return SchemaVersion{}, err
	}
	return version(m)
}

func version(m *migrate.Migrate) (SchemaVersion, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return SchemaVersion{Empty: true}, nil
	}
	if err != nil {
		return SchemaVersion{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	return SchemaVersion{Version: v, Dirty: dirty}, nil
}

func (d *Database) logVersion(m *migrate.Migrate, msg string) error {
	v, err := version(m)
	if err != nil {
		return err
	}
	d.logger.WithFields(logrus.Fields{
		"version": v.Version,
		"dirty":   v.Dirty,
	}).Info(msg)
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
