package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendREST   = "rest"
	BackendSDK    = "sdk"
	BackendVertex = "vertex"
)

type Config struct {
	WebAddr  string
	LogLevel string
	Debug    bool

	PreferIPv4     bool
	HTTPTimeout    time.Duration
	RequestTimeout time.Duration

	Gemini GeminiConfig

	MaxMediaItems int
	MaxUploadMB   int

	DBDriver string
	DBDSN    string

	AuthSecret string
	TokenTTL   time.Duration
	LoginDelay time.Duration

	HistoryLimit         int
	HistoryRetentionDays int
	HistoryCleanupCron   string

	TelegramToken      string
	MaxConcurrent      int
	MediaGroupDebounce time.Duration
}

type GeminiConfig struct {
	Backend       string
	APIKey        string
	BaseURL       string
	APIVersion    string
	Model         string
	Project       string
	Location      string
	RatePerMinute int
}

// Load reads the settings shared by every front-end.
func Load() (Config, error) {
	cfg := LoadOffline()

	switch cfg.Gemini.Backend {
	case BackendREST, BackendSDK:
		if cfg.Gemini.APIKey == "" {
			return Config{}, errors.New("GEMINI_API_KEY is required")
		}
	case BackendVertex:
		if cfg.Gemini.Project == "" {
			return Config{}, errors.New("GOOGLE_CLOUD_PROJECT is required for the vertex backend")
		}
	default:
		return Config{}, fmt.Errorf("unknown GEMINI_BACKEND %q", cfg.Gemini.Backend)
	}
	return cfg, nil
}

// LoadOffline reads every setting without requiring model credentials. Used
// by tooling that only touches the database.
func LoadOffline() Config {
	cfg := Config{
		WebAddr:  strings.TrimSpace(getEnv("WEB_ADDR", ":8080")),
		LogLevel: strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:    getEnvBool("DEBUG", false),

		PreferIPv4:     getEnvBool("PREFER_IPV4", true),
		HTTPTimeout:    time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 240)) * time.Second,

		Gemini: GeminiConfig{
			Backend:       strings.ToLower(getEnv("GEMINI_BACKEND", BackendREST)),
			APIKey:        strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			BaseURL:       getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			APIVersion:    getEnv("GEMINI_API_VERSION", "v1beta"),
			Model:         getEnv("GEMINI_MODEL", "gemini-3-pro-preview"),
			Project:       strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT")),
			Location:      getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
			RatePerMinute: getEnvInt("GEMINI_RATE_PER_MINUTE", 30),
		},

		MaxMediaItems: getEnvInt("MAX_MEDIA_ITEMS", 10),
		MaxUploadMB:   getEnvInt("MAX_UPLOAD_MB", 20),

		DBDriver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:    strings.TrimSpace(os.Getenv("DB_DSN")),

		AuthSecret: strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		TokenTTL:   time.Duration(getEnvInt("TOKEN_TTL_HOURS", 168)) * time.Hour,
		LoginDelay: time.Duration(getEnvInt("LOGIN_DELAY_MS", 1500)) * time.Millisecond,

		HistoryLimit:         getEnvInt("HISTORY_LIMIT", 50),
		HistoryRetentionDays: getEnvInt("HISTORY_RETENTION_DAYS", 0),
		HistoryCleanupCron:   getEnv("HISTORY_CLEANUP_CRON", "0 30 3 * * *"),

		TelegramToken:      strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		MaxConcurrent:      getEnvInt("MAX_CONCURRENT", 4),
		MediaGroupDebounce: time.Duration(getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", 1200)) * time.Millisecond,
	}

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxMediaItems < 1 {
		cfg.MaxMediaItems = 1
	}
	if cfg.MaxUploadMB < 1 {
		cfg.MaxUploadMB = 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 240 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 168 * time.Hour
	}
	if cfg.LoginDelay < 0 {
		cfg.LoginDelay = 0
	}
	if cfg.HistoryLimit < 0 {
		cfg.HistoryLimit = 0
	}
	if cfg.Gemini.RatePerMinute < 0 {
		cfg.Gemini.RatePerMinute = 0
	}

	return cfg
}

// LoadBot is Load plus the Telegram token requirement.
func LoadBot() (Config, error) {
	cfg, err := Load()
	if err != nil {
		return Config{}, err
	}
	if cfg.TelegramToken == "" {
		return Config{}, errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return cfg, nil
}

func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func NewLogger(c Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: c.SlogLevel(),
	}))
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
