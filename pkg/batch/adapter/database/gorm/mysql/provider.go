// Package mysql provides a GORM DBProvider implementation for MySQL databases.
package mysql

import (
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/notepipe/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/notepipe/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/notepipe/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/notepipe/pkg/batch/core/config"
)

// ProviderType is the database type served by this package.
const ProviderType = "mysql"

// init registers the MySQL dialector factory with the gorm adapter.
func init() {
	gormadapter.RegisterDialector(ProviderType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// MySQLDBProvider implements database.DBProvider for MySQL connections.
type MySQLDBProvider struct {
	*gormadapter.BaseProvider
}

// ConnectionString builds the DSN with the driver's own formatter, so credentials containing
// reserved characters are escaped. Times are parsed into time.Time in UTC.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	dsn := driver.NewConfig()
	dsn.User = c.User
	dsn.Passwd = c.Password
	dsn.Net = "tcp"
	dsn.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	dsn.DBName = c.Database
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	// golang-migrate sends each migration file as one statement batch.
	dsn.MultiStatements = true
	return dsn.FormatDSN()
}

// NewProvider creates a new MySQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &MySQLDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, ProviderType)}
}
