// Package config loads service settings from the environment, an optional
// .env file and an optional YAML overlay named by REGISTRY_CONFIG.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Routing provider names.
const (
	ProviderMatrix = "matrix"
	ProviderRoutes = "routes"
)

// Config holds the service settings.
type Config struct {
	HTTPAddr       string    `yaml:"http_addr"`
	DatabaseURL    string    `yaml:"database_url"`
	MigrateOnStart bool      `yaml:"migrate_on_start"`
	RedisURL       string    `yaml:"redis_url"`
	LogLevel       string    `yaml:"log_level"`
	LogFormat      string    `yaml:"log_format"`
	Routing        Routing   `yaml:"routing"`
	Quota          Quota     `yaml:"quota"`
	Nearby         Nearby    `yaml:"nearby"`
	RateLimit      RateLimit `yaml:"rate_limit"`
}

// Routing configures the upstream routing API.
type Routing struct {
	Provider      string        `yaml:"provider"`
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Quota holds daily limits per surface. Zero means unlimited.
type Quota struct {
	MapsDaily   int64 `yaml:"maps_daily"`
	RoutesDaily int64 `yaml:"routes_daily"`
}

// Nearby tunes the proximity prefilter.
type Nearby struct {
	RadiusKm      float64 `yaml:"radius_km"`
	MaxCandidates int     `yaml:"max_candidates"`
}

// RateLimit tunes the per-client inbound limiter. Zero RPS disables it.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Load reads .env (if present), the environment and the YAML overlay.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:       getenvDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:    getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		MigrateOnStart: getenvBool("MIGRATE_ON_START", true),
		RedisURL:       getenvDefault("REDIS_URL", ""),
		LogLevel:       getenvDefault("LOG_LEVEL", "info"),
		LogFormat:      getenvDefault("LOG_FORMAT", "json"),
		Routing: Routing{
			Provider:      getenvDefault("ROUTING_PROVIDER", ProviderRoutes),
			BaseURL:       getenvDefault("ROUTING_BASE_URL", ""),
			APIKey:        getenvDefault("ROUTING_API_KEY", ""),
			Timeout:       getenvDuration("ROUTING_TIMEOUT", 15*time.Second),
			CacheTTL:      getenvDuration("ROUTING_CACHE_TTL", 5*time.Minute),
			SweepInterval: getenvDuration("ROUTING_SWEEP_INTERVAL", time.Minute),
		},
		Quota: Quota{
			MapsDaily:   int64(getenvIntDefault("QUOTA_MAPS_DAILY", 0)),
			RoutesDaily: int64(getenvIntDefault("QUOTA_ROUTES_DAILY", 0)),
		},
		Nearby: Nearby{
			RadiusKm:      getenvFloatDefault("NEARBY_RADIUS_KM", 20),
			MaxCandidates: getenvIntDefault("NEARBY_MAX_CANDIDATES", 25),
		},
		RateLimit: RateLimit{
			RPS:   getenvFloatDefault("RATE_LIMIT_RPS", 0),
			Burst: getenvIntDefault("RATE_LIMIT_BURST", 20),
		},
	}

	if path := os.Getenv("REGISTRY_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: http addr required")
	}
	switch c.Routing.Provider {
	case ProviderMatrix, ProviderRoutes:
	default:
		return fmt.Errorf("config: unknown routing provider %q", c.Routing.Provider)
	}
	if c.Routing.Timeout <= 0 || c.Routing.CacheTTL <= 0 || c.Routing.SweepInterval <= 0 {
		return errors.New("config: routing durations must be positive")
	}
	if c.Nearby.RadiusKm <= 0 {
		return errors.New("config: nearby radius must be positive")
	}
	if c.Nearby.MaxCandidates <= 0 || c.Nearby.MaxCandidates > 25 {
		return errors.New("config: nearby max candidates must be within 1..25")
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
