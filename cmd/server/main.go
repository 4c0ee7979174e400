// Package main is the entry point for the price tracking server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main" package.
// The main package should be kept minimal — its job is to:
// 1. Read configuration (from env vars, flags, or config files)
// 2. Create dependencies (logger, database connections, etc.)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/tracker, etc.).
// This separation makes the app testable and its components reusable.
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/pricepulse/internal/notifier"
	"github.com/sakif/pricepulse/internal/server"
)

func main() {
	// Load .env if present. In production the environment is set by the
	// deployment platform and no .env file exists — that's fine, Load
	// returning an error for a missing file is not fatal.
	_ = godotenv.Load()

	// === 1. SET UP LOGGING ===
	// slog.New creates a structured logger. slog.NewTextHandler outputs human-readable logs.
	// LOG_LEVEL=debug enables all log levels; the default Info keeps the
	// per-tick scrape chatter out of production logs.
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	// === 2. READ CONFIGURATION ===
	// Env vars with sensible defaults. In a larger app you'd use a config
	// library (like viper); for a service this size env vars are simple
	// and standard.
	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	// JWT_SECRET must be a long random string. Use:
	//   JWT_SECRET=$(openssl rand -hex 32)
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET not set — refusing to start without a signing key")
		os.Exit(1)
	}

	// === 3. DATABASE PATH ===
	// Default to "data/pricepulse.db" in the project root.
	// DB_PATH env var allows overriding for production deployments.
	dbPath := "data/pricepulse.db"
	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		dbPath = envDB
	}

	// Ensure the data directory exists.
	// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", dbDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// === 4. TRACKING CONFIGURATION ===
	// TRACK_INTERVAL accepts Go duration syntax ("30m", "1h"). Zero falls
	// back to the service default.
	var trackInterval time.Duration
	if v := os.Getenv("TRACK_INTERVAL"); v != "" {
		var err error
		trackInterval, err = time.ParseDuration(v)
		if err != nil {
			logger.Error("invalid TRACK_INTERVAL value", slog.String("value", v))
			os.Exit(1)
		}
	}

	// === 5. SMTP CONFIGURATION ===
	// Without SMTP_HOST the server still starts; alert delivery will fail
	// and be retried, which is the right behavior for a dev environment
	// where you want to watch the tracking loop without sending mail.
	smtpPort := 587
	if v := os.Getenv("SMTP_PORT"); v != "" {
		var err error
		smtpPort, err = strconv.Atoi(v)
		if err != nil {
			logger.Error("invalid SMTP_PORT value", slog.String("value", v))
			os.Exit(1)
		}
	}
	smtp := notifier.SMTPConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     smtpPort,
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("FROM_EMAIL"),
	}
	if smtp.Host == "" {
		logger.Warn("SMTP_HOST not set — price alerts will not be delivered")
	}

	// === 6. CREATE AND START THE SERVER ===
	cfg := server.Config{
		Port:          port,
		DBPath:        dbPath,
		JWTSecret:     jwtSecret,
		TrackInterval: trackInterval,
		AlertPolicy:   os.Getenv("ALERT_POLICY"),
		SMTP:          smtp,
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
