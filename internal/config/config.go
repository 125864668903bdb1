package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const defaultEnrichmentTimeout = 5 * time.Second

type Config struct {
	Environment string `toml:"-"`

	Host string `toml:"host"`
	Port int    `toml:"port"`

	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// postgres
	PostgresHost    string `toml:"postgres_host"`
	PostgresPort    string `toml:"postgres_port"`
	PostgresDBName  string `toml:"postgres_db_name"`
	PostgresUser    string `toml:"postgres_user"`
	PostgresSSLMode string `toml:"postgres_ssl_mode"`
	// DatabaseURL comes from the DATABASE_URL env var only.
	DatabaseURL string `toml:"-"`

	// redis, empty host disables the geo ip cache and rate limiting
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	WriteRateLimitPerMin int      `toml:"write_rate_limit_per_min"`
	AllowedOrigins       []string `toml:"allowed_origins"`
	Timezone             string   `toml:"timezone"`

	// enrichment
	EnrichmentEnabled bool     `toml:"enrichment_enabled"`
	EnrichmentTimeout Duration `toml:"enrichment_timeout"`
	DefaultLatitude   float64  `toml:"default_latitude"`
	DefaultLongitude  float64  `toml:"default_longitude"`
	OpenWeatherApiURL string   `toml:"open_weather_api_url"`
	CaloriesApiURL    string   `toml:"calories_api_url"`
	IpInfoApiURL      string   `toml:"ipinfo_api_url"`
}

// Duration reads toml strings like "5s" or "1m30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration [%s]: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(env) {
	case "dev", "development":
		cfg = t.Development
	case "prod", "production":
		cfg = t.Production
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
	if cfg == nil {
		return nil, fmt.Errorf("no config for env: %s", env)
	}
	return cfg, nil
}

// Load reads the env table from the toml file at path, then applies the
// env var overrides and defaults.
func Load(env, path string) (*Config, error) {
	var t Toml
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("decode config file [%s]: %w", path, err)
	}

	cfg, err := t.Get(env)
	if err != nil {
		return nil, err
	}
	cfg.Environment = strings.ToLower(env)

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if dbURL, ok := lookup("DATABASE_URL"); ok && dbURL != "" {
		c.DatabaseURL = dbURL
	}
	if portEnv, ok := lookup("PORT"); ok && portEnv != "" {
		port, err := strconv.Atoi(portEnv)
		if err != nil {
			return fmt.Errorf("invalid PORT env var [%s]: %w", portEnv, err)
		}
		c.Port = port
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5000
	}
	if c.PrometheusMetricsHost == "" {
		c.PrometheusMetricsHost = "localhost"
	}
	if c.PrometheusMetricsPort == "" {
		c.PrometheusMetricsPort = "2112"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.EnrichmentTimeout.Duration <= 0 {
		c.EnrichmentTimeout.Duration = defaultEnrichmentTimeout
	}
	if c.WriteRateLimitPerMin <= 0 {
		c.WriteRateLimitPerMin = 60
	}
}

func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone [%s]: %w", c.Timezone, err)
	}
	if c.DefaultLatitude < -90 || c.DefaultLatitude > 90 {
		return errors.New("default_latitude out of range")
	}
	if c.DefaultLongitude < -180 || c.DefaultLongitude > 180 {
		return errors.New("default_longitude out of range")
	}
	return nil
}

// Location returns the zone used for day boundaries.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
