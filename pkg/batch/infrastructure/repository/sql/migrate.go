package sql

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migrateDatabase "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/notepipe/pkg/batch/adapter/database"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

// MigrationsTable tracks the applied schema version of the checkpoint tables.
const MigrationsTable = "notepipe_schema_migrations"

//go:embed migrations
var migrationsFS embed.FS

// Migrator applies the embedded checkpoint schema migrations to a database connection.
type Migrator struct {
	dbConn database.DBConnection
	dbType string
}

// NewMigrator creates a Migrator for dbConn. The dialect is taken from dbConn.Type().
func NewMigrator(dbConn database.DBConnection) *Migrator {
	return &Migrator{
		dbConn: dbConn,
		dbType: dbConn.Type(),
	}
}

// getDatabaseDriver returns the golang-migrate driver of the connection's dialect.
func (m *Migrator) getDatabaseDriver(sqlDB *stdsql.DB) (migrateDatabase.Driver, error) {
	switch m.dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: MigrationsTable})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: MigrationsTable})
	case "sqlite":
		return sqlite3.WithInstance(sqlDB, &sqlite3.Config{MigrationsTable: MigrationsTable})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}

// run executes fn on a migrate instance. Only the source driver is closed afterwards: closing
// the database driver would close the *sql.DB shared with the connection.
func (m *Migrator) run(ctx context.Context, command string, fn func(*migrate.Migrate) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sqlDB, err := m.dbConn.GetSQLDB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	path := "migrations/" + m.dbType
	sourceDriver, err := iofs.New(migrationsFS, path)
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	defer sourceDriver.Close()

	dbDriver, err := m.getDatabaseDriver(sqlDB)
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	logger.Infof("Migrator: executing '%s' on '%s' (%s).", command, m.dbConn.Name(), m.dbType)
	if err := fn(mInstance); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration '%s' failed (DB: %s): %w", command, m.dbType, err)
	}
	logger.Infof("Migrator: '%s' completed.", command)
	return nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, "up", func(mi *migrate.Migrate) error { return mi.Up() })
}

// Down rolls back all applied migrations.
func (m *Migrator) Down(ctx context.Context) error {
	return m.run(ctx, "down", func(mi *migrate.Migrate) error { return mi.Down() })
}

// Version returns the applied schema version. ok is false when no migration has been applied.
func (m *Migrator) Version(ctx context.Context) (version uint, ok bool, err error) {
	err = m.run(ctx, "version", func(mi *migrate.Migrate) error {
		v, dirty, verr := mi.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		if verr != nil {
			return verr
		}
		if dirty {
			return fmt.Errorf("schema version %d is dirty", v)
		}
		version, ok = v, true
		return nil
	})
	return version, ok, err
}
