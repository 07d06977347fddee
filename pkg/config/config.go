package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Printing PrintingConfig
	Quota    QuotaConfig
	Catalog  CatalogConfig
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PrintingConfig controls the spool directory, the worker loop and the lp invocation.
type PrintingConfig struct {
	WorkerEnabled  bool
	PollInterval   time.Duration
	SpoolDir       string
	KeepSpoolFiles bool
	MaxUploadBytes int64
	LPCommand      string
	LPTimeout      time.Duration
	Printer        string
}

// QuotaConfig tunes quota snapshots and the seed fallback.
type QuotaConfig struct {
	CacheTTL      time.Duration
	FallbackLimit int
}

// CatalogConfig points at optional catalog files loaded at startup.
type CatalogConfig struct {
	ShiftsFile string
	SeedFile   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Driver:       strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		SQLitePath:   v.GetString("DB_SQLITE_PATH"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUpload := v.GetInt64("MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 25 * 1024 * 1024
	}
	cfg.Printing = PrintingConfig{
		WorkerEnabled:  v.GetBool("PRINT_WORKER_ENABLED"),
		PollInterval:   parseDuration(v.GetString("PRINT_POLL_INTERVAL"), 2*time.Second),
		SpoolDir:       v.GetString("SPOOL_DIR"),
		KeepSpoolFiles: v.GetBool("KEEP_SPOOL_FILES"),
		MaxUploadBytes: maxUpload,
		LPCommand:      v.GetString("CUPS_LP_COMMAND"),
		LPTimeout:      parseDuration(v.GetString("CUPS_LP_TIMEOUT"), 30*time.Second),
		Printer:        strings.TrimSpace(v.GetString("CUPS_PRINTER")),
	}

	fallback := v.GetInt("QUOTA_FALLBACK_LIMIT")
	if fallback < 0 {
		fallback = 0
	}
	cfg.Quota = QuotaConfig{
		CacheTTL:      parseDuration(v.GetString("QUOTA_CACHE_TTL"), 5*time.Minute),
		FallbackLimit: fallback,
	}

	cfg.Catalog = CatalogConfig{
		ShiftsFile: v.GetString("SHIFTS_FILE"),
		SeedFile:   v.GetString("SEED_FILE"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_print")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_SQLITE_PATH", "./data/print.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_ISSUER", "sma-print-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PRINT_WORKER_ENABLED", true)
	v.SetDefault("PRINT_POLL_INTERVAL", "2s")
	v.SetDefault("SPOOL_DIR", "./spool")
	v.SetDefault("KEEP_SPOOL_FILES", false)
	v.SetDefault("MAX_UPLOAD_BYTES", 25*1024*1024)
	v.SetDefault("CUPS_LP_COMMAND", "lp")
	v.SetDefault("CUPS_LP_TIMEOUT", "30s")
	v.SetDefault("CUPS_PRINTER", "")

	v.SetDefault("QUOTA_CACHE_TTL", "5m")
	v.SetDefault("QUOTA_FALLBACK_LIMIT", 100)

	v.SetDefault("SHIFTS_FILE", "")
	v.SetDefault("SEED_FILE", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
