package appconf

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// EnvFlagToEnvironment maps the --env flag / BUSLADER_ENV value to an Environment.
// Unknown values fall back to Development.
func EnvFlagToEnvironment(env string) Environment {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "test":
		return Test
	case "production", "prod":
		return Production
	default:
		return Development
	}
}

// Config holds process-wide settings for the bus-lader-db tool.
type Config struct {
	Env     Environment
	Verbose bool

	// Storage
	DBPath              string
	BulkInsertBatchSize int

	// Feed registry and scratch area
	RegistryPath string
	ScratchDir   string

	// Fetching
	MaxFeedBytes     int64
	FetchMinInterval time.Duration

	// Freshness
	Timezone    string
	ClockEnvVar string

	// Metrics are written to this file (node exporter textfile format) when set
	MetricsFile string
}

const (
	DefaultMaxFeedBytes        = 200 * 1024 * 1024
	DefaultBulkInsertBatchSize = 1000
	DefaultClockEnvVar         = "BUSLADER_CLOCK_TIME"
)

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		Env:                 EnvFlagToEnvironment(getEnv("BUSLADER_ENV", "development")),
		Verbose:             getEnvBool("BUSLADER_VERBOSE", false),
		DBPath:              getEnv("BUSLADER_DB_PATH", "bus-lader.db"),
		BulkInsertBatchSize: getEnvInt("BUSLADER_BATCH_SIZE", DefaultBulkInsertBatchSize),
		RegistryPath:        getEnv("BUSLADER_REGISTRY", "registry.yml"),
		ScratchDir:          getEnv("BUSLADER_SCRATCH_DIR", "tmp"),
		MaxFeedBytes:        int64(getEnvInt("BUSLADER_MAX_FEED_BYTES", DefaultMaxFeedBytes)),
		FetchMinInterval:    time.Duration(getEnvInt("BUSLADER_FETCH_MIN_INTERVAL_SECONDS", 0)) * time.Second,
		Timezone:            getEnv("BUSLADER_TIMEZONE", "Local"),
		ClockEnvVar:         DefaultClockEnvVar,
		MetricsFile:         getEnv("BUSLADER_METRICS_FILE", ""),
	}
}

// Location resolves Timezone, falling back to time.Local when it cannot be loaded.
func (c Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
