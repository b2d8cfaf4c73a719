package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  listen_addr: ":9090"
database:
  path: /tmp/certchain.db
ledger:
  host: multichain.internal
  port: 4768
  rpc_user: multichainrpc
  rpc_password: secret
  chain_name: certchain
  stream: certificates
  timeout: 5s
  encoding: json
admin:
  token: test-admin-token
logging:
  level: debug
  format: text
rate_limit:
  enabled: true
  requests_per_minute: 30
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, "http://multichain.internal:4768", cfg.LedgerURL())
	assert.Equal(t, "json", cfg.Ledger.Encoding)
	assert.Equal(t, 5*time.Second, cfg.GetLedgerTimeout())
	assert.Equal(t, 30*time.Second, cfg.GetShutdownTimeout())
	// Defaults fill what the file leaves out
	assert.Equal(t, 100, cfg.Ledger.PageSize)
	assert.Equal(t, 255, cfg.Policy.MaxFieldLength)
	assert.Equal(t, 3650*24*time.Hour, cfg.GetMaxValidityDuration())
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("CERTCHAIN_LEDGER_RPC_PASSWORD", "from-env")
	t.Setenv("CERTCHAIN_DATABASE_PATH", "/data/override.db")
	t.Setenv("CERTCHAIN_ADMIN_TOKEN", "env-token")
	t.Setenv("CERTCHAIN_LEDGER_ENCODING", "hex")
	t.Setenv("CERTCHAIN_RATE_LIMIT_REDIS_ADDR", "redis:6379")

	cfg, err := LoadWithEnv(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Ledger.RPCPassword)
	assert.Equal(t, "/data/override.db", cfg.Database.Path)
	assert.Equal(t, "env-token", cfg.Admin.Token)
	assert.Equal(t, "hex", cfg.Ledger.Encoding)
	assert.Equal(t, "redis:6379", cfg.RateLimit.RedisAddr)
	assert.Equal(t, "multichainrpc", cfg.Ledger.RPCUser)
}

func TestLoadWithEnvRevalidates(t *testing.T) {
	t.Setenv("CERTCHAIN_LEDGER_ENCODING", "base64")

	_, err := LoadWithEnv(writeConfig(t, sampleConfig))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger.encoding")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Ledger.RPCPassword = "secret"
		cfg.Admin.Token = "token"
		return cfg
	}
	require.NoError(t, valid().Validate())

	proxied := valid()
	proxied.Server.TrustedProxies = []string{"10.0.0.1", "10.1.0.0/16", "::1"}
	require.NoError(t, proxied.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"listen addr", func(c *Config) { c.Server.ListenAddr = "" }, "server.listen_addr"},
		{"trusted proxies", func(c *Config) { c.Server.TrustedProxies = []string{"proxy.local"} }, "server.trusted_proxies"},
		{"database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"ledger host", func(c *Config) { c.Ledger.Host = "" }, "ledger.host"},
		{"ledger port", func(c *Config) { c.Ledger.Port = 70000 }, "ledger.port"},
		{"ledger credentials", func(c *Config) { c.Ledger.RPCPassword = "" }, "ledger.rpc_user"},
		{"ledger timeout", func(c *Config) { c.Ledger.Timeout = "0s" }, "ledger.timeout"},
		{"ledger encoding", func(c *Config) { c.Ledger.Encoding = "cbor" }, "ledger.encoding"},
		{"admin token", func(c *Config) { c.Admin.Token = "" }, "admin.token"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"rate limit", func(c *Config) { c.RateLimit.Enabled = true; c.RateLimit.RequestsPerMinute = 0 }, "rate_limit"},
		{"max validity", func(c *Config) { c.Policy.MaxValidity = "forever" }, "policy.max_validity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("90d")
	require.NoError(t, err)
	assert.Equal(t, 90*24*time.Hour, d)

	d, err = parseDuration("1h30m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = parseDuration("xd")
	assert.Error(t, err)
}
