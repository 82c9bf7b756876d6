package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/solistry/auth-service/internal/auth"
	"github.com/solistry/auth-service/internal/identity"
	"github.com/solistry/auth-service/internal/messaging"
	"github.com/solistry/auth-service/internal/observability"
	"github.com/solistry/auth-service/internal/otp"
	"github.com/solistry/auth-service/internal/profile"
	"github.com/solistry/auth-service/internal/rate"
	"github.com/solistry/auth-service/internal/replay"
	"github.com/solistry/auth-service/internal/reset"
	"github.com/solistry/auth-service/internal/session"
	"github.com/solistry/auth-service/internal/token"
)

// Route names used as rate-limit keys.
const (
	RouteInit           = "init"
	RouteSignup         = "signup"
	RouteLogin          = "login"
	RouteLoginVerify    = "login_verify"
	RouteRefresh        = "refresh"
	RouteForgotPassword = "forgot_password"
	RouteSocial         = "social"
)

type Options struct {
	LoadDotEnv bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	redisURL, err := mustEnv("REDIS_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	redisOptions, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOptions)

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	issuer, err := token.NewIssuer(token.Config{
		Secret:    []byte(jwtSecret),
		AccessTTL: envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 60),
		Issuer:    envOrDefault("TOKEN_ISSUER", "solistry-auth"),
		Leeway:    30 * time.Second,
	})
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	otpManager := otp.NewManager(redisClient, "", otp.Config{
		Digits:      envIntOrDefault("OTP_DIGITS", 6),
		TTL:         envMinutesOrDefault("OTP_TTL_MINUTES", 10),
		MaxAttempts: envIntOrDefault("OTP_MAX_ATTEMPTS", 5),
	})
	replayGuard := replay.NewGuard(redisClient, "", envMinutesOrDefault("CHALLENGE_TTL_MINUTES", 5))
	sessions := session.NewStore(redisClient, "")
	resets := reset.NewStore(redisClient, "", 15*time.Minute)

	limiter := rate.New(redisClient, "", map[string]rate.Rule{
		RouteInit:           {Max: envIntOrDefault("RATE_INIT_PER_MINUTE", 30), Window: time.Minute},
		RouteSignup:         {Max: envIntOrDefault("RATE_SIGNUP_PER_HOUR", 10), Window: time.Hour},
		RouteLogin:          {Max: envIntOrDefault("RATE_LOGIN_PER_MINUTE", 10), Window: time.Minute},
		RouteLoginVerify:    {Max: envIntOrDefault("RATE_LOGIN_VERIFY_PER_MINUTE", 10), Window: time.Minute},
		RouteRefresh:        {Max: envIntOrDefault("RATE_REFRESH_PER_MINUTE", 60), Window: time.Minute},
		RouteForgotPassword: {Max: envIntOrDefault("RATE_FORGOT_PASSWORD_PER_HOUR", 5), Window: time.Hour},
		RouteSocial:         {Max: envIntOrDefault("RATE_SOCIAL_PER_MINUTE", 20), Window: time.Minute},
	})

	dispatcher := messaging.NewDispatcher(
		messaging.NewLogSender(logger),
		logger,
		envIntOrDefault("OTP_DELIVERY_BUFFER", 256),
	)

	profiles := profile.NewRepository(database)

	service := auth.NewService(
		profiles, otpManager, replayGuard, issuer, sessions, resets,
		dispatcher, identity.NewDisabled(), logger,
		auth.Config{
			AccessTTL:    envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 60),
			RefreshTTL:   envDaysOrDefault("REFRESH_TOKEN_TTL_DAYS", 60),
			StoreTimeout: 2 * time.Second,
		},
	)
	handler := auth.NewHandler(service)

	mux := http.NewServeMux()
	mux.Handle("POST /auth/init", auth.RateLimit(limiter, RouteInit, http.HandlerFunc(handler.Init)))
	mux.Handle("POST /auth/signup", auth.RateLimit(limiter, RouteSignup, http.HandlerFunc(handler.Signup)))
	mux.Handle("POST /auth/signup/verify", auth.RequireAuth(issuer, http.HandlerFunc(handler.SignupVerify)))
	mux.Handle("POST /auth/login", auth.RateLimit(limiter, RouteLogin, http.HandlerFunc(handler.Login)))
	mux.Handle("POST /auth/login/verify", auth.RateLimit(limiter, RouteLoginVerify, http.HandlerFunc(handler.LoginVerify)))
	mux.Handle("POST /auth/refresh", auth.RateLimit(limiter, RouteRefresh, http.HandlerFunc(handler.Refresh)))
	mux.Handle("POST /auth/logout", auth.RequireAuth(issuer, http.HandlerFunc(handler.Logout)))
	mux.Handle("GET /auth/validate", auth.RequireAuth(issuer, http.HandlerFunc(handler.Validate)))
	mux.Handle("POST /auth/forgot-password/otp", auth.RateLimit(limiter, RouteForgotPassword, http.HandlerFunc(handler.ForgotPassword)))
	mux.Handle("POST /auth/forgot-password/verify", auth.RateLimit(limiter, RouteForgotPassword, http.HandlerFunc(handler.ForgotPasswordVerify)))
	mux.HandleFunc("POST /auth/reset-password", handler.ResetPassword)
	mux.Handle("POST /auth/google", auth.RateLimit(limiter, RouteSocial, http.HandlerFunc(handler.Google)))
	mux.Handle("POST /auth/apple", auth.RateLimit(limiter, RouteSocial, http.HandlerFunc(handler.Apple)))
	mux.HandleFunc("GET /auth/suspended", handler.Suspended)
	mux.HandleFunc("GET /health", healthHandler(database, redisClient))

	wrapped := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: wrapped,
		Close: func() error {
			dispatcher.Close()
			observability.FlushSentry()
			_ = redisClient.Close()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}
