// Package config provides configuration loading from environment variables,
// optionally layered over a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Paging defaults
const (
	DefaultPageSizeValue = 20
	MaxPageSizeValue     = 100
)

// Token store backends
const (
	TokenStoreFile   = "file"
	TokenStoreSQLite = "sqlite"
)

// Export sink backends
const (
	ExportSinkLocal = "local"
	ExportSinkS3    = "s3"
)

// ConfigFileEnv names the variable pointing at the optional YAML overlay.
const ConfigFileEnv = "CUSTOMS_CONFIG_FILE"

// Config holds all configuration for the MCP server.
type Config struct {
	APIBaseURL        string        `yaml:"api_url"`                 // CUSTOMS_API_URL, default "http://localhost:8000"
	HTTPClientTimeout time.Duration `yaml:"http_client_timeout"`     // HTTP_CLIENT_TIMEOUT_MS, default 60000ms (60s); YAML takes "60s"
	DefaultPageSize   int           `yaml:"default_page_size"`       // DEFAULT_PAGE_SIZE, default 20
	MaxPageSize       int           `yaml:"max_page_size"`           // MAX_PAGE_SIZE, default 100
	OptionsCacheMax   int           `yaml:"options_cache_max_items"` // OPTIONS_CACHE_MAX_ITEMS, default 64
	MCPHTTPAddr       string        `yaml:"mcp_http_addr"`           // MCP_HTTP_ADDR, default "" (stdio only)

	// Token persistence
	TokenStore string `yaml:"token_store"` // TOKEN_STORE, "file" or "sqlite"
	TokenFile  string `yaml:"token_file"`  // TOKEN_FILE, default "$HOME/.customs-mcp/token"
	TokenDB    string `yaml:"token_db"`    // TOKEN_DB, default "$HOME/.customs-mcp/session.db"

	// Export
	ExportSink   string `yaml:"export_sink"`   // EXPORT_SINK, "local" or "s3"
	ExportDir    string `yaml:"export_dir"`    // EXPORT_DIR, default "./exports"
	ExportPrefix string `yaml:"export_prefix"` // EXPORT_PREFIX, default "海关数据"
	S3Bucket     string `yaml:"s3_bucket"`     // S3_BUCKET
	S3Region     string `yaml:"s3_region"`     // S3_REGION, default "us-east-1"
	S3Endpoint   string `yaml:"s3_endpoint"`   // S3_ENDPOINT (for MinIO and friends)
	S3AccessKey  string `yaml:"s3_access_key"` // S3_ACCESS_KEY
	S3SecretKey  string `yaml:"s3_secret_key"` // S3_SECRET_KEY
	S3KeyPrefix  string `yaml:"s3_key_prefix"` // S3_KEY_PREFIX
	S3PublicURL  string `yaml:"s3_public_url"` // S3_PUBLIC_URL

	// Logging configuration
	LogLevel      string `yaml:"log_level"`        // LOG_LEVEL, default "info"
	LogFormat     string `yaml:"log_format"`       // LOG_FORMAT, "text" or "json", default "text"
	LogFile       string `yaml:"log_file"`         // LOG_FILE, default "" (stderr only)
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`  // LOG_MAX_SIZE_MB, default 10
	LogMaxBackups int    `yaml:"log_max_backups"`  // LOG_MAX_BACKUPS, default 5
	LogMaxAgeDays int    `yaml:"log_max_age_days"` // LOG_MAX_AGE_DAYS, default 28
	LogCompress   bool   `yaml:"log_compress"`     // LOG_COMPRESS, default true
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	home, _ := os.UserHomeDir()
	stateDir := home + "/.customs-mcp"
	return &Config{
		APIBaseURL:        "http://localhost:8000",
		HTTPClientTimeout: 60 * time.Second,
		DefaultPageSize:   DefaultPageSizeValue,
		MaxPageSize:       MaxPageSizeValue,
		OptionsCacheMax:   64,

		TokenStore: TokenStoreFile,
		TokenFile:  stateDir + "/token",
		TokenDB:    stateDir + "/session.db",

		ExportSink:   ExportSinkLocal,
		ExportDir:    "./exports",
		ExportPrefix: "海关数据",
		S3Region:     "us-east-1",

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  10,
		LogMaxBackups: 5,
		LogMaxAgeDays: 28,
		LogCompress:   true,
	}
}

// Load reads configuration with sensible defaults. When CUSTOMS_CONFIG_FILE
// is set its values are applied first; environment variables always win.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.APIBaseURL = getEnvString("CUSTOMS_API_URL", c.APIBaseURL)
	c.HTTPClientTimeout = getEnvDurationMs("HTTP_CLIENT_TIMEOUT_MS", c.HTTPClientTimeout)
	c.DefaultPageSize = getEnvInt("DEFAULT_PAGE_SIZE", c.DefaultPageSize)
	c.MaxPageSize = getEnvInt("MAX_PAGE_SIZE", c.MaxPageSize)
	c.OptionsCacheMax = getEnvInt("OPTIONS_CACHE_MAX_ITEMS", c.OptionsCacheMax)
	c.MCPHTTPAddr = getEnvString("MCP_HTTP_ADDR", c.MCPHTTPAddr)

	c.TokenStore = getEnvString("TOKEN_STORE", c.TokenStore)
	c.TokenFile = getEnvString("TOKEN_FILE", c.TokenFile)
	c.TokenDB = getEnvString("TOKEN_DB", c.TokenDB)

	c.ExportSink = getEnvString("EXPORT_SINK", c.ExportSink)
	c.ExportDir = getEnvString("EXPORT_DIR", c.ExportDir)
	c.ExportPrefix = getEnvString("EXPORT_PREFIX", c.ExportPrefix)
	c.S3Bucket = getEnvString("S3_BUCKET", c.S3Bucket)
	c.S3Region = getEnvString("S3_REGION", c.S3Region)
	c.S3Endpoint = getEnvString("S3_ENDPOINT", c.S3Endpoint)
	c.S3AccessKey = getEnvString("S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = getEnvString("S3_SECRET_KEY", c.S3SecretKey)
	c.S3KeyPrefix = getEnvString("S3_KEY_PREFIX", c.S3KeyPrefix)
	c.S3PublicURL = getEnvString("S3_PUBLIC_URL", c.S3PublicURL)

	c.LogLevel = getEnvString("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvString("LOG_FORMAT", c.LogFormat)
	c.LogFile = getEnvString("LOG_FILE", c.LogFile)
	c.LogMaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", c.LogMaxSizeMB)
	c.LogMaxBackups = getEnvInt("LOG_MAX_BACKUPS", c.LogMaxBackups)
	c.LogMaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", c.LogMaxAgeDays)
	c.LogCompress = getEnvBool("LOG_COMPRESS", c.LogCompress)
}

// Validate checks enumerated values and bounds.
func (c *Config) Validate() error {
	switch c.TokenStore {
	case TokenStoreFile, TokenStoreSQLite:
	default:
		return fmt.Errorf("TOKEN_STORE must be %q or %q, got %q", TokenStoreFile, TokenStoreSQLite, c.TokenStore)
	}
	switch c.ExportSink {
	case ExportSinkLocal:
	case ExportSinkS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when EXPORT_SINK=s3")
		}
	default:
		return fmt.Errorf("EXPORT_SINK must be %q or %q, got %q", ExportSinkLocal, ExportSinkS3, c.ExportSink)
	}
	if c.MaxPageSize < 1 {
		return fmt.Errorf("MAX_PAGE_SIZE must be positive, got %d", c.MaxPageSize)
	}
	if c.DefaultPageSize < 1 || c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be between 1 and %d, got %d", c.MaxPageSize, c.DefaultPageSize)
	}
	return nil
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultVal
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDurationMs(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
