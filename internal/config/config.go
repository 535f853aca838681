package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the facereg service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Registry  RegistryConfig  `yaml:"registry"`
	Database  DatabaseConfig  `yaml:"database"`
	Matching  MatchingConfig  `yaml:"matching"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Tenant    TenantConfig    `yaml:"tenant"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxBodyBytes    int64 `yaml:"max_body_bytes"`
}

// Snapshot backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// RegistryConfig holds identity snapshot settings.
type RegistryConfig struct {
	Backend     string `yaml:"backend"`     // file (default), redis
	Path        string `yaml:"path"`        // file backend
	Key         string `yaml:"key"`         // redis backend
	Compression string `yaml:"compression"` // none (default), zstd
}

// DatabaseConfig holds redis connection settings for the redis snapshot backend.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// MatchingConfig holds matching engine settings.
type MatchingConfig struct {
	Threshold float64 `yaml:"threshold"`
	Workers   int     `yaml:"workers"` // 0 = GOMAXPROCS
}

// EmbeddingConfig holds face extractor settings. Image intake is disabled
// when BaseURL is empty.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"` // 0 = any length
	TimeoutSec int    `yaml:"timeout_sec"`
}

// Enabled reports whether a face extractor is configured.
func (c EmbeddingConfig) Enabled() bool { return c.BaseURL != "" }

// Tenant resolution strategies.
const (
	TenantRemoteAddr = "remote_addr"
	TenantHeader     = "header"
	TenantAPIKey     = "api_key"
)

// TenantConfig selects how the tenant scope is derived from a request.
type TenantConfig struct {
	Strategy string `yaml:"strategy"` // remote_addr (default), header, api_key
	Header   string `yaml:"header"`
}

// RateLimitConfig holds per-tenant rate limit settings. RPS 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		c.HTTP.MaxBodyBytes = 10 << 20
	}
	if c.Registry.Backend == "" {
		c.Registry.Backend = BackendFile
	}
	if c.Registry.Path == "" {
		c.Registry.Path = "storage.json"
	}
	if c.Registry.Key == "" {
		c.Registry.Key = "facereg:snapshot"
	}
	if c.Registry.Compression == "" {
		c.Registry.Compression = "none"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Matching.Threshold <= 0 {
		c.Matching.Threshold = 0.7
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Tenant.Strategy == "" {
		c.Tenant.Strategy = TenantRemoteAddr
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = int(c.RateLimit.RPS) + 1
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Registry.Backend {
	case BackendFile:
	case BackendRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redis backend")
		}
	default:
		return fmt.Errorf("registry.backend must be %q or %q, got %q", BackendFile, BackendRedis, c.Registry.Backend)
	}
	switch c.Registry.Compression {
	case "none", "zstd":
	default:
		return fmt.Errorf("registry.compression must be \"none\" or \"zstd\", got %q", c.Registry.Compression)
	}
	if c.Matching.Threshold > 1 {
		return fmt.Errorf("matching.threshold must be in (0, 1], got %g", c.Matching.Threshold)
	}
	if c.Matching.Workers < 0 {
		return fmt.Errorf("matching.workers must not be negative, got %d", c.Matching.Workers)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.Enabled() && c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required when embedding.base_url is set")
	}
	switch c.Tenant.Strategy {
	case TenantRemoteAddr:
	case TenantHeader:
		if c.Tenant.Header == "" {
			return fmt.Errorf("tenant.header is required for the header strategy")
		}
	case TenantAPIKey:
		if len(c.Auth.APIKeys) == 0 {
			return fmt.Errorf("auth.api_keys is required for the api_key tenant strategy")
		}
	default:
		return fmt.Errorf("tenant.strategy must be one of remote_addr, header, api_key, got %q", c.Tenant.Strategy)
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("rate_limit.rps must not be negative, got %g", c.RateLimit.RPS)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
