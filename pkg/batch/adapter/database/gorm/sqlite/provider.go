// Package sqlite provides a GORM DBProvider implementation for SQLite databases.
package sqlite

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/notepipe/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/notepipe/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/notepipe/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/notepipe/pkg/batch/core/config"
)

// ProviderType is the database type served by this package.
const ProviderType = "sqlite"

// init registers the SQLite dialector factory with the GORM adapter.
func init() {
	gormadapter.RegisterDialector(ProviderType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// SQLiteDBProvider implements database.DBProvider for SQLite connections.
type SQLiteDBProvider struct {
	*gormadapter.BaseProvider
}

// ConnectionString returns the DSN of the database file. Foreign keys are enabled and writers
// wait for the lock instead of failing with SQLITE_BUSY.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	return c.Database + "?_foreign_keys=on&_busy_timeout=5000"
}

// NewProvider creates a new database.DBProvider for SQLite.
//
// Parameters:
//
//	cfg: The application's global configuration.
//
// Returns:
//
//	A database.DBProvider instance configured for SQLite.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &SQLiteDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, ProviderType)}
}
