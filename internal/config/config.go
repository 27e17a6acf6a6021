package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment profiles selected by APP_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// testingMaxUpload keeps uploads small under the testing profile.
const testingMaxUpload = 500 * 1024

// defaultMaxImagePixels caps the declared area of a decoded image (about 190MB of RGBA).
const defaultMaxImagePixels = 50_000_000

// AnalyzerConfig holds settings for both ends of the analysis RPC.
type AnalyzerConfig struct {
	// Address is where the API dials the analysis service.
	Address     string
	Timeout     time.Duration
	MaxInFlight int

	// ListenAddr, MetricsAddr, Workers and MaxImagePixels apply to cmd/analyzer only.
	ListenAddr     string
	MetricsAddr    string
	Workers        int
	MaxImagePixels int64
}

// RedisConfig captures connection options for the redis cache driver.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// CacheConfig selects and tunes the fingerprint cache backing store.
type CacheConfig struct {
	Driver         string
	TTL            time.Duration
	Timeout        time.Duration
	Prefix         string
	CoalesceMisses bool
	Redis          RedisConfig
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables once at startup and passed to constructors.
type AppConfig struct {
	Env             string
	AppHost         string
	Port            string
	LogLevel        string
	MaxUploadBytes  int64
	AllowedFormats  []string
	ShutdownTimeout time.Duration
	Analyzer        AnalyzerConfig
	Cache           CacheConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	env := strings.ToLower(getEnv("APP_ENV", EnvDevelopment))
	switch env {
	case EnvDevelopment, EnvProduction, EnvTesting:
	default:
		env = EnvDevelopment
	}

	maxUpload := int64(5 * 1024 * 1024)
	logLevel := "info"
	switch env {
	case EnvTesting:
		maxUpload = testingMaxUpload
	case EnvDevelopment:
		logLevel = "debug"
	}

	return &AppConfig{
		Env:             env,
		AppHost:         getEnv("APP_HOST", "localhost:8080"),
		Port:            getEnv("PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", logLevel),
		MaxUploadBytes:  getEnvInt64("MAX_CONTENT_LENGTH", maxUpload),
		AllowedFormats:  getEnvList("ALLOWED_IMAGE_FORMATS", []string{"PNG", "JPEG"}),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Analyzer: AnalyzerConfig{
			Address:     getEnv("GRPC_SERVER_ADDRESS", "localhost:50051"),
			Timeout:     getEnvDuration("ANALYZER_TIMEOUT", 10*time.Second),
			MaxInFlight: getEnvInt("ANALYZER_MAX_IN_FLIGHT", 8),
			ListenAddr:     getEnv("ANALYZER_LISTEN_ADDR", ":50051"),
			MetricsAddr:    getEnv("ANALYZER_METRICS_ADDR", ":9090"),
			Workers:        getEnvInt("ANALYZER_WORKERS", 10),
			MaxImagePixels: getEnvInt64("MAX_IMAGE_PIXELS", defaultMaxImagePixels),
		},
		Cache: CacheConfig{
			Driver:         strings.ToLower(getEnv("CACHE_DRIVER", "memory")),
			TTL:            getEnvDuration("CACHE_TTL", time.Hour),
			Timeout:        getEnvDuration("CACHE_TIMEOUT", 200*time.Millisecond),
			Prefix:         getEnv("CACHE_PREFIX", "intensity:"),
			CoalesceMisses: getEnvBool("COALESCE_MISSES", false),
			Redis: RedisConfig{
				Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
				Username: getEnv("REDIS_USERNAME", ""),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
			},
		},
	}
}

// Validate reports settings that would make the service unusable.
func (c *AppConfig) Validate() error {
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid config: MAX_CONTENT_LENGTH must be positive")
	}
	if len(c.AllowedFormats) == 0 {
		return fmt.Errorf("invalid config: ALLOWED_IMAGE_FORMATS must not be empty")
	}
	if c.Analyzer.Timeout <= 0 {
		return fmt.Errorf("invalid config: ANALYZER_TIMEOUT must be positive")
	}
	if c.Analyzer.MaxInFlight <= 0 {
		return fmt.Errorf("invalid config: ANALYZER_MAX_IN_FLIGHT must be positive")
	}
	if c.Analyzer.MaxImagePixels <= 0 {
		return fmt.Errorf("invalid config: MAX_IMAGE_PIXELS must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("invalid config: CACHE_TTL must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go duration strings ("250ms", "1h") or a bare number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if s, err := strconv.Atoi(v); err == nil {
			return time.Duration(s) * time.Second
		}
	}
	return def
}

// getEnvList splits a comma-separated value, trimming and upper-casing each entry.
func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
