// Package config holds the per-connection settings of the database adapters.
package config

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds the settings of one database connection (adapter.database.<name>).
type DatabaseConfig struct {
	Type     string     `yaml:"type"`      // "sqlite", "postgres" or "mysql".
	Host     string     `yaml:"host"`      // Database host address.
	Port     int        `yaml:"port"`      // Database port number.
	Database string     `yaml:"database"`  // Database name, or the file path for sqlite.
	User     string     `yaml:"user"`      // Database user.
	Password string     `yaml:"password"`  // Database password.
	Sslmode  string     `yaml:"sslmode"`   // SSL mode for PostgreSQL.
	LogLevel string     `yaml:"log_level"` // GORM log level: SILENT, ERROR, WARN or INFO. Defaults to SILENT.
	Pool     PoolConfig `yaml:"pool"`      // Connection pool settings.
}
