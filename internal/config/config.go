package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL   = "https://api.bandcamp.com/api/"
	DefaultCacheTTL  = "1m"
	DefaultTimeout   = "10s"
	DefaultUserAgent = "bandcache/0.1"
)

// Config represents the application configuration
type Config struct {
	API    APIConfig    `yaml:"api"`
	Cache  CacheConfig  `yaml:"cache"`
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
	Rules  RulesConfig  `yaml:"rules"`
}

// APIConfig contains the catalog API client configuration
type APIConfig struct {
	Key         string `yaml:"key"`
	BaseURL     string `yaml:"base_url"`
	AccessToken string `yaml:"access_token"`
	Timeout     string `yaml:"timeout"`
	UserAgent   string `yaml:"user_agent"`
}

// CacheConfig contains cache-related configuration
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	TTL     string `yaml:"ttl"`
	// Empty means the per-user directory under the system temp dir
	Folder string `yaml:"folder"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "text" or "json"
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// ServerConfig contains proxy server configuration
type ServerConfig struct {
	Port  int         `yaml:"port"`
	HTTPS HTTPSConfig `yaml:"https"`
}

// HTTPSConfig contains TLS interception configuration
type HTTPSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CACertFile string `yaml:"ca_cert_file"`
	CAKeyFile  string `yaml:"ca_key_file"`
	// Listen address for transparent (SNI-routed) HTTPS, disabled when empty
	TransparentAddr string `yaml:"transparent_addr"`
}

// RulesConfig contains caching rules configuration
type RulesConfig struct {
	Mode  string      `yaml:"mode"` // "whitelist" or "blacklist"
	Rules []CacheRule `yaml:"rules"`
}

// CacheRule defines a caching rule
type CacheRule struct {
	BaseURI     string   `yaml:"base_uri"`
	Methods     []string `yaml:"methods"`
	StatusCodes []string `yaml:"status_codes"` // e.g. "200", "4xx"
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   DefaultBaseURL,
			Timeout:   DefaultTimeout,
			UserAgent: DefaultUserAgent,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     DefaultCacheTTL,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSize:    10,
			MaxBackups: 3,
		},
		Server: ServerConfig{Port: 8080},
		Rules:  RulesConfig{Mode: "blacklist"},
	}
}

// Load loads configuration from a YAML file on top of Default()
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	// Set defaults
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}

	return config, nil
}

// GetCacheTTL parses and returns the cache TTL duration
func (c *Config) GetCacheTTL() (time.Duration, error) {
	return time.ParseDuration(c.Cache.TTL)
}

// GetTimeout parses and returns the API request timeout
func (c *Config) GetTimeout() (time.Duration, error) {
	return time.ParseDuration(c.API.Timeout)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Cache.TTL == "" {
		return fmt.Errorf("cache TTL is required")
	}

	ttl, err := c.GetCacheTTL()
	if err != nil {
		return fmt.Errorf("invalid cache TTL format: %w", err)
	}
	if ttl < 0 {
		return fmt.Errorf("cache TTL must not be negative, got: %s", c.Cache.TTL)
	}

	if _, err := c.GetTimeout(); err != nil {
		return fmt.Errorf("invalid API timeout format: %w", err)
	}

	if c.API.BaseURL == "" {
		return fmt.Errorf("API base URL is required")
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log format must be 'text' or 'json', got: %s", c.Log.Format)
	}

	if c.Rules.Mode != "whitelist" && c.Rules.Mode != "blacklist" {
		return fmt.Errorf("rules mode must be 'whitelist' or 'blacklist', got: %s", c.Rules.Mode)
	}

	for i, rule := range c.Rules.Rules {
		for _, pattern := range rule.StatusCodes {
			if !validStatusPattern(pattern) {
				return fmt.Errorf("rule %d: invalid status code pattern: %q", i, pattern)
			}
		}
	}

	return nil
}

// MatchesStatusCode reports whether statusCode matches pattern.
// Patterns are exact codes ("200") or a class with wildcards ("4xx", "50x").
func MatchesStatusCode(statusCode int, pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	code := strconv.Itoa(statusCode)
	if len(pattern) != len(code) {
		return false
	}
	for i := range pattern {
		if pattern[i] != 'x' && pattern[i] != code[i] {
			return false
		}
	}
	return true
}

func validStatusPattern(pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if len(pattern) != 3 {
		return false
	}
	for _, c := range pattern {
		if c != 'x' && (c < '0' || c > '9') {
			return false
		}
	}
	return pattern[0] >= '1' && pattern[0] <= '5'
}
