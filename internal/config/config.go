package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Env           string `env:"APP_ENV" envDefault:"dev"`
	Port          string `env:"PORT" envDefault:"8080"`
	DBDriver      string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBPath        string `env:"DB_PATH" envDefault:"./dev.db"`
	DatabaseURL   string `env:"DATABASE_URL"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	SessionSecret string `env:"SESSION_SECRET"`

	RulesFile string `env:"RULES_FILE"`

	AnalysisURL     string        `env:"ANALYSIS_URL"`
	AnalysisToken   string        `env:"ANALYSIS_TOKEN"`
	AnalysisTimeout time.Duration `env:"ANALYSIS_TIMEOUT" envDefault:"60s"`
	DevVolumeMl     float64       `env:"DEV_VOLUME_ML" envDefault:"10"`
	DevPrintHours   float64       `env:"DEV_PRINT_HOURS" envDefault:"1"`

	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	AnalysisCacheTTL time.Duration `env:"ANALYSIS_CACHE_TTL" envDefault:"24h"`

	TelegramToken  string `env:"TELEGRAM_TOKEN"`
	TelegramChatID int64  `env:"TELEGRAM_CHAT_ID"`

	PaymentBaseURL string `env:"PAYMENT_BASE_URL" envDefault:"http://localhost:8080"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	UploadMaxBytes int64  `env:"UPLOAD_MAX_BYTES" envDefault:"52428800"`
	MaxQuantity    int    `env:"MAX_QUANTITY" envDefault:"500"`
}

// Load reads the optional .env file and the environment into a Config.
func Load() (Config, error) {
	// Local development only; production injects real environment variables.
	_ = loadDotEnv(".env")

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsDev reports whether the service runs in local development mode.
func (c Config) IsDev() bool {
	return c.Env == "dev"
}

// DSN returns the data source name for the configured driver.
func (c Config) DSN() string {
	if c.DBDriver == DriverPostgres {
		return c.DatabaseURL
	}
	return c.DBPath
}

// Validate checks settings that have no sensible default.
func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.AnalysisURL == "" && !c.IsDev() {
		return fmt.Errorf("ANALYSIS_URL is required outside dev")
	}
	if c.AnalysisTimeout <= 0 {
		return fmt.Errorf("ANALYSIS_TIMEOUT must be positive")
	}
	if c.MaxQuantity < 1 {
		return fmt.Errorf("MAX_QUANTITY must be at least 1")
	}
	return nil
}

// Warnings lists optional settings that are missing.
func (c Config) Warnings() []string {
	var out []string
	if c.AdminEmail == "" {
		out = append(out, "ADMIN_EMAIL is not set")
	}
	if c.AdminPassword == "" {
		out = append(out, "ADMIN_PASSWORD is not set")
	}
	if c.SessionSecret == "" {
		out = append(out, "SESSION_SECRET is not set")
	}
	return out
}
