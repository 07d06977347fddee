package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 12*time.Hour, cfg.JWT.Expiration)
	assert.True(t, cfg.Printing.WorkerEnabled)
	assert.Equal(t, 2*time.Second, cfg.Printing.PollInterval)
	assert.Equal(t, int64(25*1024*1024), cfg.Printing.MaxUploadBytes)
	assert.Equal(t, "lp", cfg.Printing.LPCommand)
	assert.Equal(t, 5*time.Minute, cfg.Quota.CacheTTL)
	assert.Equal(t, 100, cfg.Quota.FallbackLimit)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestOverridesAndFallbacks(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("DB_DRIVER", " SQLITE3 ")
	v.Set("PRINT_POLL_INTERVAL", "not-a-duration")
	v.Set("MAX_UPLOAD_BYTES", -1)
	v.Set("QUOTA_FALLBACK_LIMIT", -5)
	v.Set("ALLOWED_ORIGINS", "http://a.local, ,http://b.local ")
	v.Set("CUPS_PRINTER", " sala-1 ")
	cfg := fromViper(v)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 2*time.Second, cfg.Printing.PollInterval)
	assert.Equal(t, int64(25*1024*1024), cfg.Printing.MaxUploadBytes)
	assert.Equal(t, 0, cfg.Quota.FallbackLimit)
	assert.Equal(t, []string{"http://a.local", "http://b.local"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "sala-1", cfg.Printing.Printer)
}

func TestLoadWithoutEnvFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(wd) //nolint:errcheck

	t.Setenv("PORT", "9090")
	t.Setenv("PRINT_WORKER_ENABLED", "false")
	t.Setenv("SPOOL_DIR", "/var/spool/print")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.False(t, cfg.Printing.WorkerEnabled)
	assert.Equal(t, "/var/spool/print", cfg.Printing.SpoolDir)
}
