package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr           string
	DatabaseURL    string
	MigrationsDir  string
	JWTSecret      string
	AccessTTL      time.Duration
	CORSOrigin     string
	RequestTimeout time.Duration
	// Local fallback state
	RedisURL      string
	LocalCacheDir string
	// Search
	MeiliURL       string
	MeiliMasterKey string
	// History archive, disabled when empty
	ArchiveDir string
	// Summary generation, disabled when empty
	SummaryAPIURL string
	SummaryAPIKey string
	SummaryModel  string
	// Logging
	LogLevel  string
	LogFormat string
	// Operator account seeded in local mode
	LocalAdminEmail    string
	LocalAdminPassword string
	LocalAdminName     string
}

// Load reads an optional dotenv file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFile string) Config {
	if strings.TrimSpace(envFile) != "" {
		_ = godotenv.Load(envFile)
	}
	return Config{
		Addr:           getenv("API_ADDR", ":8787"),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		MigrationsDir:  getenv("MIGRATIONS_DIR", "./db/migrations"),
		JWTSecret:      getenv("OPSDESK_JWT_SECRET", "opsdesk-dev-secret"),
		AccessTTL:      time.Duration(getenvInt("OPSDESK_ACCESS_TTL_SECONDS", 43200)) * time.Second,
		CORSOrigin:     getenv("OPSDESK_CORS_ORIGIN", "*"),
		RequestTimeout: time.Duration(getenvInt("OPSDESK_REQUEST_TIMEOUT_SECONDS", 10)) * time.Second,
		RedisURL:       getenv("REDIS_URL", ""),
		LocalCacheDir:  getenv("LOCAL_CACHE_DIR", "./data/cache"),
		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),
		ArchiveDir:     getenv("ARCHIVE_DIR", ""),
		SummaryAPIURL:  getenv("SUMMARY_API_URL", ""),
		SummaryAPIKey:  getenv("SUMMARY_API_KEY", ""),
		SummaryModel:   getenv("SUMMARY_MODEL", "gpt-4o-mini"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogFormat:      getenv("LOG_FORMAT", "json"),
		// Local mode only; ignored when DATABASE_URL is set
		LocalAdminEmail:    getenv("LOCAL_ADMIN_EMAIL", "admin@opsdesk.local"),
		LocalAdminPassword: getenv("LOCAL_ADMIN_PASSWORD", "opsdesk"),
		LocalAdminName:     getenv("LOCAL_ADMIN_NAME", "Local Operator"),
	}
}

// RemoteConfigured reports whether a relational backend is configured.
func (c Config) RemoteConfigured() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
