package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
)

const (
	StorageMySQL  = "mysql"
	StorageSQLite = "sqlite"

	EnvProduction  = "production"
	EnvDevelopment = "development"

	minSecretLength = 32
)

type Config struct {
	// Application
	AppEnv   string
	LogLevel string
	LogDir   string
	Port     string
	TimeZone string

	// Storage
	StorageType      string
	SQLiteDBPath     string
	DBUser           string
	DBPass           string
	DBHost           string
	DBPort           string
	DBName           string
	FullDSN          string
	DBMaxOpenConns   int
	DBAcquireTimeout time.Duration

	// Tokens
	JWTSecret     string
	TokenLifetime time.Duration

	// HTTP
	CORSOrigins []string

	// values that were set but could not be parsed
	parseProblems []string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}
	return FromEnv(), nil
}

// FromEnv reads the process environment. Malformed numbers and durations
// fall back to their defaults and are reported later by Validate.
func FromEnv() *Config {
	var problems []string
	cfg := &Config{
		AppEnv:   strings.ToLower(getEnv("APP_ENV", EnvDevelopment)),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogDir:   getEnv("LOG_DIR", ""),
		Port:     getEnv("APP_PORT", "8080"),
		TimeZone: getEnv("APP_TIMEZONE", "UTC"),

		StorageType:      strings.ToLower(getEnv("STORAGE_TYPE", StorageSQLite)),
		SQLiteDBPath:     getEnv("SQLITE_DB_PATH", "./data/expenses.db"),
		DBUser:           getEnv("DB_USER", ""),
		DBPass:           getEnv("DB_PASS", ""),
		DBHost:           getEnv("DB_HOST", ""),
		DBPort:           getEnv("DB_PORT", "3306"),
		DBName:           getEnv("DB_NAME", "expense_tracker"),
		FullDSN:          getEnv("FULL_DSN", ""),
		DBMaxOpenConns:   getEnvInt("DB_MAX_OPEN_CONNS", 10, &problems),
		DBAcquireTimeout: getEnvDuration("DB_ACQUIRE_TIMEOUT", 5*time.Second, &problems),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		TokenLifetime: getEnvDuration("TOKEN_LIFETIME", 24*time.Hour, &problems),

		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),
	}
	cfg.parseProblems = problems
	return cfg
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	problems := append([]string(nil), c.parseProblems...)

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		problems = append(problems, fmt.Sprintf("invalid time zone '%s': %v", c.TimeZone, err))
	}

	switch c.StorageType {
	case StorageSQLite:
		if c.SQLiteDBPath == "" {
			problems = append(problems, "SQLite database path cannot be empty when using sqlite storage")
		} else if c.SQLiteDBPath != ":memory:" {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0755); err != nil {
					problems = append(problems, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case StorageMySQL:
		if c.FullDSN == "" && (c.DBUser == "" || c.DBHost == "" || c.DBPort == "") {
			problems = append(problems, "mysql storage requires FULL_DSN or DB_USER, DB_HOST and DB_PORT")
		}
		if c.DBName == "" {
			problems = append(problems, "DB_NAME cannot be empty when using mysql storage")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid storage type '%s': must be one of [%s %s]", c.StorageType, StorageMySQL, StorageSQLite))
	}

	if c.DBMaxOpenConns < 1 {
		problems = append(problems, fmt.Sprintf("invalid DB_MAX_OPEN_CONNS %d: must be at least 1", c.DBMaxOpenConns))
	}
	if c.DBAcquireTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("invalid DB_ACQUIRE_TIMEOUT %v: must be positive", c.DBAcquireTimeout))
	}

	if c.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	} else if c.AppEnv != EnvDevelopment && len(c.JWTSecret) < minSecretLength {
		problems = append(problems, fmt.Sprintf("JWT_SECRET must be at least %d bytes outside development", minSecretLength))
	}
	if c.TokenLifetime < time.Minute {
		problems = append(problems, fmt.Sprintf("invalid TOKEN_LIFETIME %v: must be at least 1 minute", c.TokenLifetime))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// Location returns the time zone used for calendar day boundaries.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MySQLDSN builds the data source name, preferring FULL_DSN when set.
func (c *Config) MySQLDSN() string {
	if c.FullDSN != "" {
		return c.FullDSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC", c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int, problems *[]string) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("invalid %s '%s': must be an integer", key, value))
		return defaultValue
	}
	return i
}

func getEnvDuration(key string, defaultValue time.Duration, problems *[]string) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("invalid %s '%s': must be a duration like 5s or 24h", key, value))
		return defaultValue
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
