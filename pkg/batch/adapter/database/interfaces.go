// Package database defines the database adapter abstractions used by the SQL checkpoint store.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/notepipe/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/notepipe/pkg/batch/core/adapter"
)

// DBExecutor defines the read and write operations the repositories need.
type DBExecutor interface {
	// ExecuteUpsert inserts model, or updates updateColumns of the row that conflicts on
	// conflictColumns. With no updateColumns a conflicting row is left untouched.
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)

	// ExecuteQuery loads the rows matching query into target, which must point to a slice.
	// No matching row is not an error; target stays empty.
	ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error
}

// DBConnection represents a named database connection.
type DBConnection interface {
	coreAdapter.ResourceConnection // Type(), Name(), Close()
	DBExecutor                     // ExecuteUpsert(), ExecuteQuery()

	// RefreshConnection pings the connection pool.
	RefreshConnection(ctx context.Context) error
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves database connections by their configured name.
type DBConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver // ResolveConnection()

	// ResolveDBConnection resolves a database connection by name. A connection whose ping
	// fails is re-established before it is returned.
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider provides the database connections of one database type.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider (e.g., "sqlite", "postgres").
	Type() string
	// ForceReconnect closes and re-establishes the connection with the specified name.
	ForceReconnect(name string) (DBConnection, error)
}

// DBProviderGroup is the Fx value group all DBProvider implementations are collected into.
const DBProviderGroup = "db_providers"
