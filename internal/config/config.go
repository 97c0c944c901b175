package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the configuration for the application.
type Config struct {
	BackendURL        string
	SessionCookie     string
	SessionCookieName string
	ClientID          string
	ClientSecret      string
	RequestTimeout    time.Duration
	AuthReturnPath    string

	DownloadDir  string
	DatabasePath string

	LogLevel  string
	LogFormat string

	DefaultMealKind  string
	DefaultMealCount int
	DefaultZip       string

	// Plan source: "backend" (default) or "gemini"
	PlanSource   string
	GeminiAPIKey string
	GeminiModel  string

	// Telegram Config
	TelegramBotToken    string
	TelegramWebhookURL  string
	TelegramAllowUserID int64
	AdminTelegramID     int64
	Port                string
}

// NewFromEnv creates a new Config object from environment variables.
// A .env file in the working directory and the YAML file named by CONFIG_FILE
// are read first; environment variables always win.
func NewFromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.BackendURL = envOr("BACKEND_URL", cfg.BackendURL)
	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("BACKEND_URL environment variable not set")
	}

	cfg.SessionCookie = envOr("BACKEND_SESSION_COOKIE", cfg.SessionCookie)
	cfg.SessionCookieName = envOr("BACKEND_SESSION_COOKIE_NAME", cfg.SessionCookieName)
	cfg.ClientID = envOr("BACKEND_CLIENT_ID", cfg.ClientID)
	cfg.ClientSecret = envOr("BACKEND_CLIENT_SECRET", cfg.ClientSecret)
	cfg.AuthReturnPath = envOr("AUTH_RETURN_PATH", cfg.AuthReturnPath)
	cfg.DownloadDir = envOr("DOWNLOAD_DIR", cfg.DownloadDir)
	cfg.DatabasePath = envOr("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOr("LOG_FORMAT", cfg.LogFormat)
	cfg.DefaultMealKind = envOr("DEFAULT_MEAL_KIND", cfg.DefaultMealKind)
	cfg.DefaultZip = envOr("DEFAULT_ZIP", cfg.DefaultZip)
	cfg.PlanSource = envOr("PLAN_SOURCE", cfg.PlanSource)
	cfg.GeminiAPIKey = envOr("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.GeminiModel = envOr("GEMINI_MODEL", cfg.GeminiModel)
	cfg.TelegramBotToken = envOr("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	cfg.TelegramWebhookURL = envOr("TELEGRAM_WEBHOOK_URL", cfg.TelegramWebhookURL)
	cfg.Port = envOr("PORT", cfg.Port)

	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUEST_TIMEOUT %q: %w", v, err)
		}
		cfg.RequestTimeout = d
	}

	if v := os.Getenv("DEFAULT_MEAL_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid DEFAULT_MEAL_COUNT %q: must be a positive integer", v)
		}
		cfg.DefaultMealCount = n
	}

	// Telegram Config (Optional for CLI, required for Bot)
	if v := os.Getenv("TELEGRAM_ALLOW_USER_ID"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.TelegramAllowUserID)
	}
	if v := os.Getenv("ADMIN_TELEGRAM_ID"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.AdminTelegramID)
	}

	switch cfg.PlanSource {
	case "backend":
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
	default:
		return nil, fmt.Errorf("unknown PLAN_SOURCE %q", cfg.PlanSource)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		SessionCookieName: "session",
		RequestTimeout:    30 * time.Second,
		AuthReturnPath:    "/kroger-success",
		DownloadDir:       "downloads",
		DatabasePath:      "data/planner.db",
		LogLevel:          "info",
		LogFormat:         "text",
		DefaultMealKind:   "dinner",
		DefaultMealCount:  3,
		PlanSource:        "backend",
		GeminiModel:       "gemini-1.5-flash",
		Port:              "8080",
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
