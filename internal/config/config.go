package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"     split_words:"true"`
	Database  DatabaseConfig  `yaml:"database"   split_words:"true"`
	Ledger    LedgerConfig    `yaml:"ledger"     split_words:"true"`
	Policy    PolicyConfig    `yaml:"policy"     split_words:"true"`
	Admin     AdminConfig     `yaml:"admin"      split_words:"true"`
	Logging   LoggingConfig   `yaml:"logging"    split_words:"true"`
	RateLimit RateLimitConfig `yaml:"rate_limit" split_words:"true"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	ListenAddr      string `yaml:"listen_addr"      split_words:"true"`
	ShutdownTimeout string `yaml:"shutdown_timeout" split_words:"true"`
	// TrustedProxies lists the proxy IPs or CIDRs whose forwarding headers
	// are believed. Empty means the peer address is the client.
	TrustedProxies []string `yaml:"trusted_proxies" split_words:"true"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" split_words:"true"`
}

// LedgerConfig contains the MultiChain node connection settings
type LedgerConfig struct {
	Host        string `yaml:"host"         split_words:"true"`
	Port        int    `yaml:"port"         split_words:"true"`
	RPCUser     string `yaml:"rpc_user"     split_words:"true"`
	RPCPassword string `yaml:"rpc_password" split_words:"true"`
	ChainName   string `yaml:"chain_name"   split_words:"true"`
	Stream      string `yaml:"stream"       split_words:"true"`
	Timeout     string `yaml:"timeout"      split_words:"true"`
	// Encoding selects the publish format: "hex" or "json"
	Encoding string `yaml:"encoding" split_words:"true"`
	PageSize int    `yaml:"page_size" split_words:"true"`
}

// PolicyConfig contains certificate field validation policy
type PolicyConfig struct {
	MaxFieldLength int      `yaml:"max_field_length" split_words:"true"`
	AllowedGrades  []string `yaml:"allowed_grades"   split_words:"true"`
	MaxValidity    string   `yaml:"max_validity"     split_words:"true"`
}

// AdminConfig contains admin configuration
type AdminConfig struct {
	Token string `yaml:"token" split_words:"true"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"  split_words:"true"`
	Format string `yaml:"format" split_words:"true"`
}

// RateLimitConfig contains rate limiting configuration for public endpoints
type RateLimitConfig struct {
	Enabled           bool   `yaml:"enabled"             split_words:"true"`
	RequestsPerMinute int    `yaml:"requests_per_minute" split_words:"true"`
	RedisAddr         string `yaml:"redis_addr"          split_words:"true"`
	RedisPassword     string `yaml:"redis_password"      split_words:"true"`
	RedisDB           int    `yaml:"redis_db"            split_words:"true"`
}

// Default returns a configuration with every optional field populated
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ShutdownTimeout: "30s",
		},
		Database: DatabaseConfig{
			Path: "/var/lib/certchain/certchain.db",
		},
		Ledger: LedgerConfig{
			Host:     "127.0.0.1",
			Port:     4768,
			RPCUser:  "multichainrpc",
			Stream:   "certificates",
			Timeout:  "10s",
			Encoding: "hex",
			PageSize: 100,
		},
		Policy: PolicyConfig{
			MaxFieldLength: 255,
			MaxValidity:    "3650d",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if _, err := parseDuration(c.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("server.shutdown_timeout is invalid: %w", err)
	}
	for _, proxy := range c.Server.TrustedProxies {
		if net.ParseIP(proxy) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(proxy); err != nil {
			return fmt.Errorf("server.trusted_proxies entry %q is not an IP or CIDR", proxy)
		}
	}

	// Database validation
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// Ledger validation
	if c.Ledger.Host == "" {
		return fmt.Errorf("ledger.host is required")
	}
	if c.Ledger.Port <= 0 || c.Ledger.Port > 65535 {
		return fmt.Errorf("ledger.port must be between 1 and 65535")
	}
	if c.Ledger.RPCUser == "" || c.Ledger.RPCPassword == "" {
		return fmt.Errorf("ledger.rpc_user and ledger.rpc_password are required")
	}
	if c.Ledger.Stream == "" {
		return fmt.Errorf("ledger.stream is required")
	}
	if d, err := parseDuration(c.Ledger.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("ledger.timeout must be a positive duration")
	}
	if c.Ledger.Encoding != "hex" && c.Ledger.Encoding != "json" {
		return fmt.Errorf("ledger.encoding must be 'hex' or 'json'")
	}
	if c.Ledger.PageSize <= 0 {
		return fmt.Errorf("ledger.page_size must be positive")
	}

	// Policy validation
	if c.Policy.MaxFieldLength <= 0 {
		return fmt.Errorf("policy.max_field_length must be positive")
	}
	if _, err := parseDuration(c.Policy.MaxValidity); err != nil {
		return fmt.Errorf("policy.max_validity is invalid: %w", err)
	}

	// Admin validation
	if c.Admin.Token == "" {
		return fmt.Errorf("admin.token is required")
	}
	if c.Admin.Token == "your-secure-admin-token-change-me-in-production" {
		fmt.Fprintf(os.Stderr, "WARNING: Using default admin token. Please change it in production!\n")
	}

	// Logging validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}

	// Rate limit validation
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive when enabled")
	}

	return nil
}

// LedgerURL returns the JSON-RPC endpoint of the ledger node
func (c *Config) LedgerURL() string {
	return fmt.Sprintf("http://%s:%d", c.Ledger.Host, c.Ledger.Port)
}

// GetLedgerTimeout returns the ledger call timeout as time.Duration
func (c *Config) GetLedgerTimeout() time.Duration {
	d, _ := parseDuration(c.Ledger.Timeout)
	return d
}

// GetShutdownTimeout returns the server shutdown timeout as time.Duration
func (c *Config) GetShutdownTimeout() time.Duration {
	d, _ := parseDuration(c.Server.ShutdownTimeout)
	return d
}

// GetMaxValidityDuration returns the longest allowed span between issue and
// expiry date
func (c *Config) GetMaxValidityDuration() time.Duration {
	d, _ := parseDuration(c.Policy.MaxValidity)
	return d
}

// ParseDuration parses a duration that may use the "d" day suffix
func ParseDuration(s string) (time.Duration, error) {
	return parseDuration(s)
}

// parseDuration parses duration with support for days (e.g., "90d")
func parseDuration(s string) (time.Duration, error) {
	// Handle "d" suffix for days
	if len(s) > 1 && s[len(s)-1] == 'd' {
		days := s[:len(s)-1]
		var d int
		if _, err := fmt.Sscanf(days, "%d", &d); err != nil {
			return 0, err
		}
		return time.Duration(d) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
