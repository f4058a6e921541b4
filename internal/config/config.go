package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DBDriver    string
	DBPath      string
	DatabaseURL string

	IngestInterval time.Duration
	RunTimeout     time.Duration
	RunOnStart     bool
	SourcesFile    string

	RateLimit  int
	RateWindow time.Duration

	LogLevel  string
	LogFormat string
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Load reads configuration from the environment. A .env file in the working
// directory, or the file named by ENV_FILE, is loaded first without
// overriding variables already set.
func Load() (Config, error) {
	loadDotenvOnce()

	cfg := Config{
		Port:           getEnv("PORT", "8080"),
		DBDriver:       strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:         getEnv("DB_PATH", "market.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		IngestInterval: getEnvDuration("INGEST_INTERVAL", 5*time.Minute),
		RunTimeout:     getEnvDuration("RUN_TIMEOUT", 0),
		RunOnStart:     getEnvBool("RUN_ON_START", true),
		SourcesFile:    getEnv("SOURCES_FILE", "etc/sources.yaml"),
		RateLimit:      getEnvInt("RATE_LIMIT", 100),
		RateWindow:     getEnvDuration("RATE_WINDOW", 15*time.Minute),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("config: DB_PATH is required for sqlite")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.IngestInterval <= 0 {
		return fmt.Errorf("config: INGEST_INTERVAL must be positive, got %s", c.IngestInterval)
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("config: RUN_TIMEOUT must not be negative, got %s", c.RunTimeout)
	}
	if c.RateLimit <= 0 || c.RateWindow <= 0 {
		return fmt.Errorf("config: RATE_LIMIT and RATE_WINDOW must be positive")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

var dotenvOnce sync.Once

func loadDotenvOnce() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}
	if f := os.Getenv("ENV_FILE"); f != "" {
		_ = godotenv.Load(f)
		return
	}
	_ = godotenv.Load()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}
