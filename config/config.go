package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	MaxConcurrency   int
	RateLimitMs      int
	MaxRetries       int
	MaxPagesPerRoute int
	RunDeadlineMin   int

	Routes []string

	AuditDir       string
	RawCSVPath     string
	Headless       bool
	ChromeBin      string
	WaitTimeoutSec int
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "redbus_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MaxConcurrency:   getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitMs:      getEnvInt("RATE_LIMIT_MS", 2000),
		MaxRetries:       getEnvInt("MAX_RETRIES", 3),
		MaxPagesPerRoute: getEnvInt("MAX_PAGES_PER_ROUTE", 0),
		RunDeadlineMin:   getEnvInt("RUN_DEADLINE_MIN", 0),

		Routes: getEnvRoutes("ROUTES", "Chennai,Bangalore"),

		AuditDir:       getEnv("AUDIT_DIR", "./data/raw"),
		RawCSVPath:     getEnv("RAW_CSV_PATH", "./data/raw/records.csv"),
		Headless:       getEnvBool("SCRAPER_HEADLESS", true),
		ChromeBin:      getEnv("CHROME_BIN", ""),
		WaitTimeoutSec: getEnvInt("WAIT_TIMEOUT_SEC", 20),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

// getEnvRoutes parses a semicolon-separated list of "Origin,Destination"
// pairs, e.g. "Chennai,Bangalore;Madurai,Chennai".
func getEnvRoutes(key, fallback string) []string {
	raw := getEnv(key, fallback)
	parts := strings.Split(raw, ";")
	routes := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			routes = append(routes, p)
		}
	}
	return routes
}
