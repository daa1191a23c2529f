package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the storyline service.
// Environment variables are parsed from the STORYLINE_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Postgres Configuration
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// Identity provider (session issuing / code exchange)
	AuthBaseURL    string `envconfig:"AUTH_BASE_URL" default:""`
	AuthAnonKey    string `envconfig:"AUTH_ANON_KEY" default:""`
	AuthServiceKey string `envconfig:"AUTH_SERVICE_KEY" default:""`
	SessionSecret  string `envconfig:"SESSION_SECRET" default:""`

	// Session cookie handling
	SessionCookieName    string        `envconfig:"SESSION_COOKIE_NAME" default:"sl-access-token"`
	RefreshCookieName    string        `envconfig:"REFRESH_COOKIE_NAME" default:"sl-refresh-token"`
	SessionRefreshWindow time.Duration `envconfig:"SESSION_REFRESH_WINDOW" default:"5m"`

	// AI backend
	AIBaseURL  string `envconfig:"AI_BASE_URL" default:""`
	AIAPIKey   string `envconfig:"AI_API_KEY" default:""`
	AIModel    string `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	EmbedModel string `envconfig:"EMBED_MODEL" default:"text-embedding-3-small"`

	// Search index (hosted Weaviate), host:port without scheme
	SearchIndexURL string  `envconfig:"SEARCH_INDEX_URL" default:"weaviate:8080"`
	SearchAlpha    float32 `envconfig:"SEARCH_ALPHA" default:"0.6"`

	// Scrape runner
	ScrapeRunnerURL string `envconfig:"SCRAPE_RUNNER_URL" default:""`
	CronSecret      string `envconfig:"CRON_SECRET" default:""`

	// Reporting
	PlatformStartYear int `envconfig:"PLATFORM_START_YEAR" default:"2020"`

	// Health checking
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates the configuration after env parsing.
func (c *Config) ResolveDefaults() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP_PORT: %d", c.HTTPPort)
	}
	if c.PlatformStartYear < 2000 {
		return fmt.Errorf("invalid PLATFORM_START_YEAR: %d", c.PlatformStartYear)
	}
	if c.SessionRefreshWindow <= 0 {
		c.SessionRefreshWindow = 5 * time.Minute
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Variables are prefixed with STORYLINE_, e.g. STORYLINE_POSTGRES_DSN.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("STORYLINE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("ai_model", cfg.AIModel).
		Str("embed_model", cfg.EmbedModel).
		Str("search_index_url", cfg.SearchIndexURL).
		Int("platform_start_year", cfg.PlatformStartYear).
		Str("postgres_dsn_present", func() string {
			if cfg.PostgresDSN != "" {
				return "true"
			}
			return "false"
		}()).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing.
func NewForTesting() *Config {
	return &Config{
		Environment:               EnvTesting,
		HTTPPort:                  8080,
		SessionCookieName:         "sl-access-token",
		RefreshCookieName:         "sl-refresh-token",
		SessionRefreshWindow:      5 * time.Minute,
		SessionSecret:             "test-secret",
		AIModel:                   "gpt-4o-mini",
		EmbedModel:                "text-embedding-3-small",
		SearchIndexURL:            "localhost:8082",
		SearchAlpha:               0.6,
		PlatformStartYear:         2020,
		HealthIntervalSeconds:     30,
		HealthProbeTimeoutSeconds: 2,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
