// Package main is the entrypoint for the identity API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/researchhub/identity/internal/auth"
	"github.com/researchhub/identity/internal/cache"
	"github.com/researchhub/identity/internal/config"
	"github.com/researchhub/identity/internal/handler"
	"github.com/researchhub/identity/internal/metrics"
	"github.com/researchhub/identity/internal/middleware"
	"github.com/researchhub/identity/internal/provider"
	"github.com/researchhub/identity/internal/repository"
	"github.com/researchhub/identity/internal/secrets"
	"github.com/researchhub/identity/internal/server"
	"github.com/researchhub/identity/internal/service"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Run migrations before opening the pool
	if err := repository.Migrate(ctx, cfg.DatabaseURL); err != nil {
		logger.Error(
			"failed to run migrations",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Initialize credential encryption
	box, err := secrets.NewBox(cfg.CredentialSecretKey)
	if err != nil {
		logger.Error("failed to initialize credential encryption", "error", err)
		os.Exit(1)
	}

	// Initialize services
	tokenIssuer := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.AccessTokenTTL)
	keyValidator := provider.NewHTTPValidator(provider.Config{
		Timeout:           cfg.IntegrationValidationTimeout,
		PerplexityBaseURL: cfg.PerplexityBaseURL,
		OpenAIBaseURL:     cfg.OpenAIBaseURL,
		AnthropicBaseURL:  cfg.AnthropicBaseURL,
		SerpAPIBaseURL:    cfg.SerpAPIBaseURL,
	})
	metricsRecorder := metrics.NewInMemory()

	authService := service.NewAuthService(
		repo,
		tokenIssuer,
		box,
		keyValidator,
		&logResetSender{logger: logger},
		metricsRecorder,
		logger,
		service.Config{
			RefreshTokenTTL:         cfg.RefreshTokenTTL,
			ResetTokenTTL:           cfg.ResetTokenTTL,
			ValidateIntegrationKeys: cfg.IntegrationValidateKeys,
		},
	)

	// Clear out long-dead refresh tokens on boot
	if deleted, err := repo.DeleteExpiredRefreshTokens(ctx, time.Now().UTC()); err != nil {
		logger.Warn("refresh token cleanup failed", "error", err)
	} else if deleted > 0 {
		logger.Info("expired refresh tokens removed", "count", deleted)
	}

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	authHandler := handler.NewAuthHandler(authService, logger, cfg.AccessTokenTTL)
	metricsHandler := handler.NewMetricsHandler(metricsRecorder)

	// Setup router
	r := setupRouter(authHandler, healthHandler, metricsHandler, tokenIssuer, cacheClient, cfg, logger)

	// Create and run server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"key_validation", cfg.IntegrationValidateKeys,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// logResetSender logs reset issuance instead of sending mail. Swap in a real
// mailer by providing another service.ResetSender.
type logResetSender struct {
	logger *slog.Logger
}

func (s *logResetSender) SendPasswordReset(_ context.Context, email, token string) error {
	// The token itself stays out of the logs.
	s.logger.Info("password reset issued",
		slog.String("email", email),
		slog.Int("token_length", len(token)),
	)
	return nil
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	authHandler *handler.AuthHandler,
	healthHandler *handler.HealthHandler,
	metricsHandler *handler.MetricsHandler,
	tokenIssuer *auth.TokenIssuer,
	cacheClient *cache.Cache,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	securityCfg := middleware.DefaultSecurityConfig()
	securityCfg.IsDevelopment = cfg.IsDevelopment()
	r.Use(middleware.Security(securityCfg))
	r.Use(middleware.MaxBodySize(securityCfg.MaxRequestBodySize))

	if origins := cfg.GetCORSAllowedOrigins(); len(origins) > 0 {
		corsCfg := middleware.DefaultCORSConfig()
		corsCfg.AllowedOrigins = origins
		r.Use(middleware.CORS(corsCfg))
	}

	// Health endpoints (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	authCfg := middleware.AuthConfig{
		Logger:   logger,
		Verifier: tokenIssuer,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  logger,
		Cache:   cacheClient,
		Enabled: cfg.RateLimitEnabled,
	}

	registerLimit := cache.Limit{Requests: cfg.RateLimitRegisterPerHour, Window: time.Hour}
	loginLimit := cache.Limit{Requests: cfg.RateLimitLoginPerMinute, Window: time.Minute}
	forgotLimit := cache.Limit{Requests: cfg.RateLimitForgotPerHour, Window: time.Hour}

	r.Route("/api/v1/auth", func(r chi.Router) {
		// Public endpoints, each with its own per-IP bucket
		r.With(middleware.RateLimitEndpoint(rateLimitCfg, "register", registerLimit)).
			Post("/register", authHandler.Register)
		r.With(middleware.RateLimitEndpoint(rateLimitCfg, "login", loginLimit)).
			Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
		r.With(middleware.RateLimitEndpoint(rateLimitCfg, "forgot", forgotLimit)).
			Post("/password/forgot", authHandler.ForgotPassword)
		r.Post("/password/reset", authHandler.ResetPassword)

		// Endpoints that require a valid access token
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authCfg))
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
			r.Put("/me", authHandler.UpdateMe)
			r.Post("/change-password", authHandler.ChangePassword)
		})
	})

	// 404 and 405 handlers
	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
