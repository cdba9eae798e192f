// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Token signing and key encryption secrets
	JWTSecret           string `env:"JWT_SECRET,required"`
	CredentialSecretKey string `env:"CREDENTIAL_SECRET_KEY,required"`

	// Token lifetimes
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	ResetTokenTTL   time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`

	// Integration key validation
	IntegrationValidateKeys      bool          `env:"INTEGRATION_VALIDATE_KEYS" envDefault:"true"`
	IntegrationValidationTimeout time.Duration `env:"INTEGRATION_VALIDATION_TIMEOUT" envDefault:"8s"`

	// Provider base URL overrides, for staging and tests.
	PerplexityBaseURL string `env:"PERPLEXITY_BASE_URL" envDefault:""`
	OpenAIBaseURL     string `env:"OPENAI_BASE_URL" envDefault:""`
	AnthropicBaseURL  string `env:"ANTHROPIC_BASE_URL" envDefault:""`
	SerpAPIBaseURL    string `env:"SERPAPI_BASE_URL" envDefault:""`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting for the unauthenticated auth endpoints
	RateLimitEnabled          bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRegisterPerHour  int  `env:"RATE_LIMIT_REGISTER_PER_HOUR" envDefault:"5"`
	RateLimitLoginPerMinute   int  `env:"RATE_LIMIT_LOGIN_PER_MINUTE" envDefault:"10"`
	RateLimitForgotPerHour    int  `env:"RATE_LIMIT_FORGOT_PER_HOUR" envDefault:"5"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
