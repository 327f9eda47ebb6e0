package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sitepulse/collector/internal/pkg/logger"
)

// DefaultRetentionMonths is the retention window applied when none is
// configured or the configured value is unusable.
const DefaultRetentionMonths = 24

// Config holds all configuration for the collector.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Dedup     DedupConfig     `yaml:"dedup"`
	GeoIP     GeoIPConfig     `yaml:"geoip"`
	CORS      CORSConfig      `yaml:"cors"`
	Retention RetentionConfig `yaml:"retention"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL              string `yaml:"url"`
	TxTimeoutSeconds int    `yaml:"tx_timeout_seconds"`
}

// TxTimeout returns the bounded transaction budget as a duration.
func (d DatabaseConfig) TxTimeout() time.Duration {
	return time.Duration(d.TxTimeoutSeconds) * time.Second
}

// DedupConfig holds the visitor dedup store settings. Secret keys the
// fingerprint hash; rotating it resets uniqueness for the current day.
type DedupConfig struct {
	RedisURL string `yaml:"redis_url"`
	Secret   string `yaml:"secret"`
}

// GeoIPConfig points at the MaxMind country database on disk.
type GeoIPConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// CORSConfig holds the origin allow-list for cross-origin tracker requests.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RetentionConfig holds the sweep window in months.
type RetentionConfig struct {
	Months int `yaml:"months"`
}

// Load reads configuration from a YAML file and applies defaults.
// An empty path yields a default configuration.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.TxTimeoutSeconds == 0 {
		cfg.Database.TxTimeoutSeconds = 10
	}
	if cfg.Dedup.RedisURL == "" {
		cfg.Dedup.RedisURL = "redis://localhost:6379/0"
	}
	if cfg.Retention.Months == 0 {
		cfg.Retention.Months = DefaultRetentionMonths
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("DEDUP_REDIS_URL"); v != "" {
		cfg.Dedup.RedisURL = v
	}
	if v := os.Getenv("DEDUP_SECRET"); v != "" {
		cfg.Dedup.Secret = v
	}
	if v := os.Getenv("GEOIP_DB_PATH"); v != "" {
		cfg.GeoIP.DatabasePath = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = splitOrigins(v)
	}
	if v := os.Getenv("RETENTION_MONTHS"); v != "" {
		months, err := strconv.Atoi(v)
		if err != nil || months <= 0 {
			logger.Warn("invalid RETENTION_MONTHS, falling back to default",
				"value", v, "default", DefaultRetentionMonths)
		} else {
			cfg.Retention.Months = months
		}
	}

	return cfg, nil
}

func splitOrigins(v string) []string {
	var origins []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
