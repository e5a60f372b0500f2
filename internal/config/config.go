package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database holds the connection settings for the GORM dialector.
type Database struct {
	Driver   string // mysql, postgres or sqlite
	DSN      string
	LogLevel string // silent, error, warn, info
}

// Config holds application configuration values.
type Config struct {
	Env               string
	Port              string
	BaseURL           string
	AllowedOrigins    []string
	AllowRegistration bool

	Database Database

	JWTSecret string
	TokenTTL  time.Duration

	CancelWindow      time.Duration
	LowStockThreshold int
	Location          *time.Location

	GeminiAPIKey string
	GeminiModel  string
}

// Load reads a .env file when present and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from environment variables with defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		Env:               getenv("APP_ENV", "development"),
		Port:              getenv("PORT", "8080"),
		AllowRegistration: os.Getenv("ALLOW_REGISTRATION") == "true",
		Database: Database{
			Driver:   strings.ToLower(getenv("DB_DRIVER", "mysql")),
			DSN:      os.Getenv("DB_DSN"),
			LogLevel: getenv("DB_LOG_LEVEL", "warn"),
		},
		JWTSecret:    os.Getenv("JWT_SECRET"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getenv("GEMINI_MODEL", "gemini-2.0-flash-001"),
	}

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return Config{}, fmt.Errorf("invalid PORT %q: %w", cfg.Port, err)
	}
	cfg.BaseURL = getenv("BASE_URL", "http://localhost:"+cfg.Port)

	for _, o := range strings.Split(getenv("ALLOWED_ORIGINS", "http://localhost:5173"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	switch cfg.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		if cfg.Database.Driver != "sqlite" {
			return Config{}, fmt.Errorf("DB_DSN is required for driver %s", cfg.Database.Driver)
		}
		cfg.Database.DSN = "pos.db"
	}

	if cfg.JWTSecret == "" {
		if cfg.Env == "production" {
			return Config{}, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev_secret"
	}

	var err error
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.CancelWindow, err = durationEnv("CANCEL_WINDOW", 24*time.Hour); err != nil {
		return Config{}, err
	}

	cfg.LowStockThreshold = 5
	if v := os.Getenv("LOW_STOCK_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid LOW_STOCK_THRESHOLD %q", v)
		}
		cfg.LowStockThreshold = n
	}

	cfg.Location, err = time.LoadLocation(getenv("TIMEZONE", "UTC"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return d, nil
}
