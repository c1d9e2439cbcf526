package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every externally supplied knob for the lookup backend.
// All values are loaded once at startup and injected into the components
// that need them; nothing in the services reads the environment directly.
type Config struct {
	ServerPort     string
	DatabaseURL    string
	AdminToken     string
	LogLevel       string
	SiteURL        string
	WorkerBaseURL  string
	ChatServiceURL string

	RequestTimeout  time.Duration
	HourlyRateLimit int
	DailyQuota      int

	VehicleCacheTTL  time.Duration
	AISummaryTTL     time.Duration
	HealthCacheTTL   time.Duration
	LogRetentionDays int
}

// LoadConfig reads configuration from the environment (.env supported),
// applying defaults and clamping admin-configurable values to their
// allowed ranges.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AdminToken:     getEnv("ADMIN_TOKEN", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		SiteURL:        getEnv("SITE_URL", "https://beepi.no"),
		WorkerBaseURL:  getEnv("WORKER_BASE_URL", "https://vehicle-lookup.beepi.workers.dev"),
		ChatServiceURL: getEnv("CHAT_SERVICE_URL", "https://chatkit.beepi.no"),

		RequestTimeout:  time.Duration(getEnvIntClamped("REQUEST_TIMEOUT_SECONDS", 15, 5, 30)) * time.Second,
		HourlyRateLimit: getEnvIntClamped("HOURLY_RATE_LIMIT", 50, 1, 100),
		DailyQuota:      getEnvIntClamped("DAILY_QUOTA", 5000, 100, 10000),

		VehicleCacheTTL:  time.Duration(getEnvInt("VEHICLE_CACHE_TTL_SECONDS", 3600)) * time.Second,
		AISummaryTTL:     time.Duration(getEnvInt("AI_CACHE_TTL_SECONDS", 86400)) * time.Second,
		HealthCacheTTL:   time.Duration(getEnvInt("HEALTH_CACHE_TTL_SECONDS", 420)) * time.Second,
		LogRetentionDays: getEnvInt("LOG_RETENTION_DAYS", 90),
	}
}

// ConfigureLogging applies the configured log level to the global logger.
func (c *Config) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logrus.Warnf("Invalid LOG_LEVEL %q, falling back to info", c.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %d", key, raw, fallback)
		return fallback
	}
	return value
}

func getEnvIntClamped(key string, fallback, min, max int) int {
	value := getEnvInt(key, fallback)
	if value < min {
		logrus.Warnf("%s=%d below minimum %d, clamping", key, value, min)
		return min
	}
	if value > max {
		logrus.Warnf("%s=%d above maximum %d, clamping", key, value, max)
		return max
	}
	return value
}
