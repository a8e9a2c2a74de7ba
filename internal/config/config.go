// Package config provides application configuration management with support
// for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App        AppConfig
	Logger     LoggerConfig
	Server     ServerConfig
	Storage    StorageConfig
	Catalog    CatalogConfig
	Resolver   ResolverConfig
	Refresh    RefreshConfig
	Classifier ClassifierConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
	// ResolveDeadline bounds interactive resolution requests.
	ResolveDeadline time.Duration
}

// StorageConfig holds the document store configuration.
type StorageConfig struct {
	// BasePath is the directory holding the badger database.
	BasePath string
}

// CatalogConfig holds upstream catalog API configuration.
type CatalogConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string

	// Admission gate budgets. TotalRPS is split across caller classes:
	// half to interactive, a quarter each to webhook and batch.
	TotalRPS float64
	Burst    int
	// MaxWait bounds how long a saturated acquire blocks before failing.
	MaxWait time.Duration

	// Retry budget for transient upstream failures.
	MaxRetries     int
	RetryBaseDelay time.Duration
	RequestTimeout time.Duration
	CrawlPageSize  int
}

// ResolverConfig holds the resolution decision thresholds. These are
// operational tuning values exposed as configuration per deployment.
type ResolverConfig struct {
	AcceptThreshold float64 // minimum top-candidate score to accept
	Margin          float64 // minimum lead over the runner-up
	Floor           float64 // minimal score for a candidate to count at all
	YearWindow      int     // years beyond which the year bonus is zero
	MaxCandidates   int     // candidate cap per resolution
	// LiveSearchFallback enables a live upstream title search when the
	// reference index yields no candidates.
	LiveSearchFallback bool
}

// RefreshConfig holds refresh coordinator configuration.
type RefreshConfig struct {
	// Interval between scheduled bulk passes.
	Interval time.Duration
	// MinCatalogSize guards rebuilds against truncated game snapshots.
	MinCatalogSize int
	// MinFamilySize guards the auxiliary entity families.
	MinFamilySize int
	// WebhookDedupTTL is how long webhook idempotency receipts are kept.
	WebhookDedupTTL time.Duration
}

// ClassifierConfig holds the genre classifier service configuration. An
// empty base URL disables genre classification in crawl runs.
type ClassifierConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for database storage")

	serverPort := flag.String("port", "", "Server port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	resolveDeadline := flag.String("resolve-deadline", "", "Interactive resolution deadline (default: 10s)")

	catalogBaseURL := flag.String("catalog-url", "", "Upstream catalog API base URL")
	catalogTokenURL := flag.String("catalog-token-url", "", "Upstream catalog OAuth token URL")
	catalogClientID := flag.String("catalog-client-id", "", "Upstream catalog client id")
	catalogSecret := flag.String("catalog-secret", "", "Upstream catalog client secret")

	acceptThreshold := flag.String("accept-threshold", "", "Resolution accept threshold (default: 0.80)")
	margin := flag.String("margin", "", "Resolution margin over runner-up (default: 0.05)")
	floor := flag.String("floor", "", "Resolution candidate floor (default: 0.30)")

	refreshInterval := flag.String("refresh-interval", "", "Interval between bulk refresh passes (default: 24h)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port: getConfigValue(*serverPort, "SERVER_PORT", "8080"),
		},
		Storage: StorageConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Catalog: CatalogConfig{
			BaseURL:      getConfigValue(*catalogBaseURL, "CATALOG_URL", "https://api.igdb.com/v4"),
			TokenURL:     getConfigValue(*catalogTokenURL, "CATALOG_TOKEN_URL", "https://id.twitch.tv/oauth2/token"),
			ClientID:     getConfigValue(*catalogClientID, "CATALOG_CLIENT_ID", ""),
			ClientSecret: getConfigValue(*catalogSecret, "CATALOG_SECRET", ""),
			TotalRPS:      getFloatConfigValue("", "CATALOG_RPS", 4),
			Burst:         getIntConfigValue("", "CATALOG_BURST", 8),
			MaxRetries:    getIntConfigValue("", "CATALOG_MAX_RETRIES", 3),
			CrawlPageSize: getIntConfigValue("", "CATALOG_CRAWL_PAGE_SIZE", 500),
		},
		Resolver: ResolverConfig{
			AcceptThreshold:    getFloatConfigValue(*acceptThreshold, "ACCEPT_THRESHOLD", 0.80),
			Margin:             getFloatConfigValue(*margin, "MARGIN", 0.05),
			Floor:              getFloatConfigValue(*floor, "FLOOR", 0.30),
			YearWindow:         getIntConfigValue("", "YEAR_WINDOW", 3),
			MaxCandidates:      getIntConfigValue("", "MAX_CANDIDATES", 50),
			LiveSearchFallback: getBoolConfigValue("", "LIVE_SEARCH_FALLBACK", true),
		},
		Refresh: RefreshConfig{
			MinCatalogSize: getIntConfigValue("", "MIN_CATALOG_SIZE", 1000),
			MinFamilySize:  getIntConfigValue("", "MIN_FAMILY_SIZE", 10),
		},
		Classifier: ClassifierConfig{
			BaseURL: getConfigValue("", "CLASSIFIER_URL", ""),
		},
	}

	// Parse durations.
	for _, d := range []struct {
		dest         *time.Duration
		flagValue    string
		envKey       string
		defaultValue string
	}{
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"},
		{&cfg.Server.ResolveDeadline, *resolveDeadline, "RESOLVE_DEADLINE", "10s"},
		{&cfg.Catalog.MaxWait, "", "CATALOG_MAX_WAIT", "30s"},
		{&cfg.Catalog.RetryBaseDelay, "", "CATALOG_RETRY_BASE_DELAY", "500ms"},
		{&cfg.Catalog.RequestTimeout, "", "CATALOG_REQUEST_TIMEOUT", "30s"},
		{&cfg.Refresh.Interval, *refreshInterval, "REFRESH_INTERVAL", "24h"},
		{&cfg.Refresh.WebhookDedupTTL, "", "WEBHOOK_DEDUP_TTL", "72h"},
		{&cfg.Classifier.RequestTimeout, "", "CLASSIFIER_REQUEST_TIMEOUT", "60s"},
	} {
		value := getConfigValue(d.flagValue, d.envKey, d.defaultValue)
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.envKey, value, err)
		}
		*d.dest = parsed
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Storage.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	if c.Resolver.AcceptThreshold < c.Resolver.Floor {
		return fmt.Errorf("accept threshold %.2f below floor %.2f", c.Resolver.AcceptThreshold, c.Resolver.Floor)
	}
	if c.Resolver.Margin < 0 || c.Resolver.Margin > 1 {
		return fmt.Errorf("margin must be in [0,1], got %.2f", c.Resolver.Margin)
	}

	if c.Catalog.TotalRPS <= 0 {
		return errors.New("catalog rps must be positive")
	}

	// Catalog credentials may be empty in development; the client refuses to
	// start crawls without them.

	return nil
}

// expandDataPath expands ~ and makes the path absolute.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "QuestLog", "data")

	expanded, err := expandPath(c.Storage.BasePath, defaultPath)
	if err != nil {
		return err
	}
	c.Storage.BasePath = expanded
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float64 from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
