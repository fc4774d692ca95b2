// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env             string `mapstructure:"APP_ENV"`
	Port            string `mapstructure:"PORT"`
	JWTSecret       string `mapstructure:"JWT_SECRET"`
	SessionTTLHours int    `mapstructure:"SESSION_TTL_HOURS"`
	AllowedOrigins  string `mapstructure:"ALLOWED_ORIGINS"`
	PublicBaseURL   string `mapstructure:"PUBLIC_BASE_URL"`
	FeatureFlags    string `mapstructure:"FEATURE_FLAGS"`

	DBHost                        string `mapstructure:"DB_HOST"`
	DBPort                        string `mapstructure:"DB_PORT"`
	DBUser                        string `mapstructure:"DB_USER"`
	DBPassword                    string `mapstructure:"DB_PASSWORD"`
	DBName                        string `mapstructure:"DB_NAME"`
	DBSSLMode                     string `mapstructure:"DB_SSLMODE"`
	DBSchemaMode                  string `mapstructure:"DB_SCHEMA_MODE"`
	DBAutoMigrateAllowDestructive bool   `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`
	DBMaxOpenConns                int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns                int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes      int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL string `mapstructure:"REDIS_URL"`

	StorageDriver   string `mapstructure:"STORAGE_DRIVER"`
	StorageDir      string `mapstructure:"STORAGE_DIR"`
	StorageBucket   string `mapstructure:"STORAGE_BUCKET"`
	S3Endpoint      string `mapstructure:"S3_ENDPOINT"`
	S3AccessKey     string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey     string `mapstructure:"S3_SECRET_KEY"`
	S3UseSSL        bool   `mapstructure:"S3_USE_SSL"`
	UploadMaxSizeMB int    `mapstructure:"UPLOAD_MAX_SIZE_MB"`

	PreviewWidth           int    `mapstructure:"PREVIEW_WIDTH"`
	PreviewHeight          int    `mapstructure:"PREVIEW_HEIGHT"`
	PreviewGravity         string `mapstructure:"PREVIEW_GRAVITY"`
	PreviewQuality         int    `mapstructure:"PREVIEW_QUALITY"`
	PreviewCacheTTLMinutes int    `mapstructure:"PREVIEW_CACHE_TTL_MINUTES"`

	CleanupSchedule    string `mapstructure:"CLEANUP_SCHEDULE"`
	CleanupBatchSize   int    `mapstructure:"CLEANUP_BATCH_SIZE"`
	CleanupMaxAttempts int    `mapstructure:"CLEANUP_MAX_ATTEMPTS"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// defaults apply to keys absent from both the files and the environment.
var defaults = map[string]any{
	"APP_ENV":           "development",
	"PORT":              "8375",
	"JWT_SECRET":        defaultJWTSecret,
	"SESSION_TTL_HOURS": 24 * 7,
	"ALLOWED_ORIGINS":   "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173",
	"PUBLIC_BASE_URL":   "http://localhost:8375",
	"FEATURE_FLAGS":     "realtime_feed=on,webp_previews=on",

	"DB_HOST":                          "localhost",
	"DB_PORT":                          "5432",
	"DB_USER":                          "user",
	"DB_PASSWORD":                      "password",
	"DB_NAME":                          "knot",
	"DB_SSLMODE":                       "disable",
	"DB_SCHEMA_MODE":                   "hybrid",
	"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE": false,
	"DB_MAX_OPEN_CONNS":                25,
	"DB_MAX_IDLE_CONNS":                5,
	"DB_CONN_MAX_LIFETIME_MINUTES":     5,

	"REDIS_URL": "localhost:6379",

	"STORAGE_DRIVER":     "disk",
	"STORAGE_DIR":        "/tmp/knot/storage",
	"STORAGE_BUCKET":     "knot-media",
	"S3_ENDPOINT":        "localhost:9000",
	"S3_ACCESS_KEY":      "",
	"S3_SECRET_KEY":      "",
	"S3_USE_SSL":         false,
	"UPLOAD_MAX_SIZE_MB": 10,

	"PREVIEW_WIDTH":             2000,
	"PREVIEW_HEIGHT":            2000,
	"PREVIEW_GRAVITY":           "top",
	"PREVIEW_QUALITY":           100,
	"PREVIEW_CACHE_TTL_MINUTES": 60,

	"CLEANUP_SCHEDULE":     "@every 1m",
	"CLEANUP_BATCH_SIZE":   50,
	"CLEANUP_MAX_ATTEMPTS": 10,

	"TRACING_ENABLED":       false,
	"TRACING_EXPORTER":      "stdout",
	"OTLP_ENDPOINT":         "localhost:4318",
	"TRACING_SAMPLER_RATIO": 1.0,
}

// searchPaths lets binaries find config.yml when run from cmd/ subdirectories.
var searchPaths = []string{".", "..", "../.."}

// LoadConfig reads config.yml, then config.<APP_ENV>.yml for any env other
// than development and test, then the environment, which wins.
func LoadConfig() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	v.SetConfigType("yml")
	v.SetConfigName("config")
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	// The base file is optional.
	_ = v.ReadInConfig()

	if env := strings.ToLower(v.GetString("APP_ENV")); env != "development" && env != "test" {
		profile := "config." + env
		v.SetConfigName(profile)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("profile %s.yml is required for APP_ENV=%s: %w", profile, env, err)
		}
		slog.Info("configuration profile loaded", slog.String("profile", profile))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	lower := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	c.Env = lower(c.Env)
	c.DBSSLMode = lower(c.DBSSLMode)
	c.DBSchemaMode = lower(c.DBSchemaMode)
	c.StorageDriver = lower(c.StorageDriver)
	c.PreviewGravity = lower(c.PreviewGravity)
	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
}

// IsProduction reports whether the config targets a production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate reports every problem at once, joined.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Port == "" {
		fail("PORT is required")
	}
	if c.JWTSecret == "" {
		fail("JWT_SECRET is required")
	}
	if c.UploadMaxSizeMB <= 0 {
		fail("UPLOAD_MAX_SIZE_MB must be positive")
	}

	switch c.StorageDriver {
	case "", "disk":
	case "s3":
		if c.S3Endpoint == "" || c.StorageBucket == "" {
			fail("S3_ENDPOINT and STORAGE_BUCKET are required for STORAGE_DRIVER=s3")
		}
	default:
		fail("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.CleanupSchedule); err != nil {
			fail("invalid CLEANUP_SCHEDULE %q: %w", c.CleanupSchedule, err)
		}
	}

	if c.IsProduction() {
		errs = append(errs, c.productionProblems()...)
	} else if len(c.JWTSecret) < 32 {
		slog.Warn("JWT_SECRET is shorter than 32 characters; production rejects it")
	}
	return errors.Join(errs...)
}

func (c *Config) productionProblems() []error {
	var errs []error
	switch {
	case c.JWTSecret == defaultJWTSecret:
		errs = append(errs, errors.New("JWT_SECRET must be changed from the default in production"))
	case len(c.JWTSecret) < 32:
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters in production"))
	}
	if c.DBPassword == "" || c.DBPassword == defaults["DB_PASSWORD"] {
		errs = append(errs, errors.New("a non-default DB_PASSWORD is required in production"))
	}
	if c.DBSSLMode == "" || c.DBSSLMode == "disable" {
		errs = append(errs, errors.New("DB_SSLMODE must enable TLS in production"))
	}
	if c.StorageDriver == "s3" && (c.S3AccessKey == "" || c.S3SecretKey == "") {
		errs = append(errs, errors.New("S3_ACCESS_KEY and S3_SECRET_KEY are required in production"))
	}
	if c.AllowedOrigins == "*" {
		slog.Warn("ALLOWED_ORIGINS is '*' in production")
	}
	return errs
}
