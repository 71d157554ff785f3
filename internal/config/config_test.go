package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_TYPE", "DB_PATH", "LOG_RETENTION_DAYS", "LOG_CLEANUP_ENABLED", "LOG_FORMAT", "TZ"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	require.Equal(t, "4000", cfg.Port)
	require.Equal(t, DBSQLite, cfg.DBType)
	require.Equal(t, "httptrigger.db", cfg.DBPath)
	require.Equal(t, 3, cfg.LogRetentionDays)
	require.True(t, cfg.LogCleanupEnabled)
	require.Equal(t, "console", cfg.LogFormat)
	require.Equal(t, "UTC", cfg.TZ)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_TYPE", "mysql")
	t.Setenv("LOG_RETENTION_DAYS", "7")
	t.Setenv("LOG_CLEANUP_ENABLED", "false")

	cfg := Load()
	require.Equal(t, "9090", cfg.Port)
	require.Equal(t, DBMySQL, cfg.DBType)
	require.Equal(t, 7, cfg.LogRetentionDays)
	require.False(t, cfg.LogCleanupEnabled)
}

func TestLocationDefaultsResolve(t *testing.T) {
	cfg := Config{TZ: "UTC"}
	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, "UTC", loc.String())
}

func TestLocationInvalidZoneErrors(t *testing.T) {
	cfg := Config{TZ: "Not/AZone"}
	_, err := cfg.Location()
	require.Error(t, err)
}
