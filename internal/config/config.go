package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Port                string   `mapstructure:"PORT"`
	Env                 string   `mapstructure:"ENV"`
	LogLevel            string   `mapstructure:"LOG_LEVEL"`
	LogFile             string   `mapstructure:"LOG_FILE"`
	LogMaxSizeMB        int      `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups       int      `mapstructure:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays       int      `mapstructure:"LOG_MAX_AGE_DAYS"`
	CORSOrigins         []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS        float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int      `mapstructure:"RATE_LIMIT_BURST"`
	ScheduleHorizonDays int      `mapstructure:"SCHEDULE_HORIZON_DAYS"`
	RandomSeed          uint64   `mapstructure:"RANDOM_SEED"`
	SeedPatients        int      `mapstructure:"SEED_PATIENTS"`
	MetricsEnabled      bool     `mapstructure:"METRICS_ENABLED"`
	MaxBatch            int      `mapstructure:"MAX_BATCH"`
	BodyLimit           string   `mapstructure:"BODY_LIMIT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 50)
	v.SetDefault("LOG_MAX_BACKUPS", 3)
	v.SetDefault("LOG_MAX_AGE_DAYS", 14)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("SCHEDULE_HORIZON_DAYS", 365)
	v.SetDefault("RANDOM_SEED", 0)
	v.SetDefault("SEED_PATIENTS", 0)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("MAX_BATCH", 1000)
	v.SetDefault("BODY_LIMIT", "1M")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS",
		"LOG_MAX_AGE_DAYS", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"SCHEDULE_HORIZON_DAYS", "RANDOM_SEED", "SEED_PATIENTS", "METRICS_ENABLED",
		"MAX_BATCH", "BODY_LIMIT",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// A comma separated env value arrives as a single element.
	if len(cfg.CORSOrigins) <= 1 {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is usable before anything is
// constructed from it.
func (c *Config) Validate() error {
	if c.ScheduleHorizonDays <= 0 {
		return fmt.Errorf("SCHEDULE_HORIZON_DAYS must be positive, got %d", c.ScheduleHorizonDays)
	}
	if c.MaxBatch <= 0 {
		return fmt.Errorf("MAX_BATCH must be positive, got %d", c.MaxBatch)
	}
	if c.SeedPatients < 0 {
		return fmt.Errorf("SEED_PATIENTS must not be negative, got %d", c.SeedPatients)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level: %w", c.LogLevel, err)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if c.IsProduction() && slices.Contains(c.CORSOrigins, "*") {
		return fmt.Errorf("CORS_ORIGINS must list explicit origins in production")
	}
	return nil
}
