// Package config centralizes the environment variables the daemon
// reads, with their defaults. Flags in cmd/httptriggerd can override
// these on top of the hardcoded defaults.
package config

import (
	"os"
	"strconv"
	"time"
)

type DBType string

const (
	DBSQLite DBType = "sqlite"
	DBMySQL  DBType = "mysql"
)

type Config struct {
	Port string

	DBType     DBType
	DBHost     string
	DBPort     string
	DBUsername string
	DBPassword string
	DBDatabase string
	DBPath     string

	LogRetentionDays  int
	LogCleanupEnabled bool
	LogFormat         string // "console" or "json"

	TZ string
}

// Load reads the environment, filling in defaults for anything unset.
func Load() Config {
	return Config{
		Port: getenv("PORT", "4000"),

		DBType:     DBType(getenv("DB_TYPE", string(DBSQLite))),
		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenv("DB_PORT", "3306"),
		DBUsername: getenv("DB_USERNAME", ""),
		DBPassword: getenv("DB_PASSWORD", ""),
		DBDatabase: getenv("DB_DATABASE", "httptrigger"),
		DBPath:     getenv("DB_PATH", "httptrigger.db"),

		LogRetentionDays:  getenvInt("LOG_RETENTION_DAYS", 3),
		LogCleanupEnabled: getenvBool("LOG_CLEANUP_ENABLED", true),
		LogFormat:         getenv("LOG_FORMAT", "console"),

		TZ: getenv("TZ", "UTC"),
	}
}

// Location resolves c.TZ to a *time.Location, falling back to UTC for
// an unrecognized zone (logged by the caller).
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.TZ)
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
