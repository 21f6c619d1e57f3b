package coordinator

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend is a named remote storage target's static connection parameters.
// A Backend is created once at registry construction and never mutated.
type Backend struct {
	ID       string
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// ConnectionTimeout bounds how long acquiring a session may block.
	ConnectionTimeout time.Duration
	// PoolSize bounds the number of live sessions held for this backend.
	PoolSize int
}

// DSN renders the MySQL data-source-name for this backend, suitable for
// database/sql.Open with the go-sql-driver/mysql driver.
func (b Backend) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?timeout=%s&parseTime=true",
		b.User, b.Password, b.Host, b.Port, b.Database, b.ConnectionTimeout)
}

// BackendConfig holds the env-var-driven defaults for loading Backends,
// mirroring original_source/config.py's DatabaseConfig.
type BackendConfig struct {
	PoolSize          int
	ConnectionTimeout time.Duration
}

// LoadBackendConfig reads CONNECTION_POOL_SIZE and CONNECTION_TIMEOUT from
// the environment, falling back to spec defaults (5, 30s).
func LoadBackendConfig() BackendConfig {
	return BackendConfig{
		PoolSize:          envInt("CONNECTION_POOL_SIZE", 5),
		ConnectionTimeout: time.Duration(envInt("CONNECTION_TIMEOUT", 30)) * time.Second,
	}
}

// LoadBackend builds a Backend named id from DB<n>_HOST, DB<n>_PORT,
// DB<n>_USER, DB<n>_PASSWORD and DB<n>_DATABASE environment variables, where
// n is the supplied index (e.g. LoadBackend(1, "db1", cfg) reads DB1_HOST).
func LoadBackend(index int, id string, cfg BackendConfig) Backend {
	prefix := fmt.Sprintf("DB%d_", index)
	return Backend{
		ID:                id,
		Host:              envString(prefix+"HOST", "localhost"),
		Port:              envInt(prefix+"PORT", 3306),
		User:              envString(prefix+"USER", "root"),
		Password:          envString(prefix+"PASSWORD", "password"),
		Database:          envString(prefix+"DATABASE", id),
		ConnectionTimeout: cfg.ConnectionTimeout,
		PoolSize:          cfg.PoolSize,
	}
}

func envString(name, def string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
