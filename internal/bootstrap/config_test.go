package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var configEnv = []string{
	"PORT", "TEAMGATE_HTTP_ADDR", "TEAMGATE_GRPC_ADDR", "TEAMGATE_LOG_FORMAT", "TEAMGATE_LOG_LEVEL",
	"TEAMGATE_TRUST_PROXY", "DATABASE_URL", "REDIS_URL", "TEAMGATE_SECRET_STORE", "TEAMGATE_ACCOUNT_STORE",
	"TEAMGATE_MAILER", "SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
	"SMTP_ENCRYPTION", "EMAIL_USER", "EMAIL_PASS", "CLIENT_URL", "JWT_SECRET", "TEAMGATE_ALLOW_EPHEMERAL_KEY",
	"TEAMGATE_REVOCATION", "TEAMGATE_LOGIN_THROTTLE", "TEAMGATE_LOGIN_THROTTLE_MAX", "TEAMGATE_AUDIT",
	"TEAMGATE_OTEL_METRICS", "TEAMGATE_SHUTDOWN_TIMEOUT", "TEAMGATE_OTP_TTL", "TEAMGATE_RESET_TTL",
	"TEAMGATE_COOLDOWN", "TEAMGATE_SESSION_TTL", "TEAMGATE_LOGIN_THROTTLE_WINDOW", "TEAMGATE_PURGE_INTERVAL",
}

// clearEnv blanks every variable LoadConfig reads; empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range configEnv {
		t.Setenv(name, "")
	}
}

func productionEnv(t *testing.T) {
	t.Helper()
	clearEnv(t)
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("DATABASE_URL", "postgres://teamgate@localhost/teamgate")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("EMAIL_USER", "noreply@example.com")
	t.Setenv("EMAIL_PASS", "app-password")
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected an oops error, got %v", err)
	assert.Equal(t, code, oopsErr.Code())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	productionEnv(t)
	t.Setenv("PORT", "8088")
	t.Setenv("CLIENT_URL", "https://app.example.com")
	t.Setenv("TEAMGATE_COOLDOWN", "30s")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8088", cfg.HTTPAddr)
	assert.Equal(t, "https://app.example.com", cfg.ClientURL)
	assert.Equal(t, 30*time.Second, cfg.Cooldown)
	assert.Equal(t, "noreply@example.com", cfg.SMTP.Username)
	assert.Equal(t, "noreply@example.com", cfg.SMTP.FromAddress)
	assert.Equal(t, "app-password", cfg.SMTP.Password)
	assert.Equal(t, "smtp.gmail.com", cfg.SMTP.Host)
	assert.Equal(t, BackendRedis, cfg.SecretStore)
	assert.Equal(t, BackendPostgres, cfg.AccountStore)
}

func TestExplicitHTTPAddrWinsOverPort(t *testing.T) {
	productionEnv(t)
	t.Setenv("PORT", "8088")
	t.Setenv("TEAMGATE_HTTP_ADDR", "127.0.0.1:9000")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	productionEnv(t)
	t.Setenv("TEAMGATE_OTP_TTL", "3m")

	path := filepath.Join(t.TempDir(), "teamgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service:
  http_addr: ":7000"
  grpc_addr: ":7001"
  log_format: text
backends:
  secrets: postgres
auth:
  otp_ttl: 10m
  cooldown: 45s
  revocation: false
login_throttle:
  enabled: true
  max_requests: 9
  window: 5m
maintenance:
  purge_interval: 0s
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, ":7001", cfg.GRPCAddr)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, BackendPostgres, cfg.SecretStore)
	assert.Equal(t, 3*time.Minute, cfg.OTPTTL, "environment overrides the file")
	assert.Equal(t, 45*time.Second, cfg.Cooldown)
	assert.False(t, cfg.EnableRevocation)
	assert.Equal(t, 9, cfg.LoginThrottleMax)
	assert.Equal(t, 5*time.Minute, cfg.LoginThrottleWindow)
	assert.Zero(t, cfg.PurgeInterval)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	productionEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().HTTPAddr, cfg.HTTPAddr)
}

func TestLoadConfigRejectsBadFile(t *testing.T) {
	productionEnv(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  otp_ttl: soon\n"), 0o600))
	_, err := LoadConfig(path)
	requireCode(t, err, "CONFIG_INVALID")

	require.NoError(t, os.WriteFile(path, []byte("service: [unclosed\n"), 0o600))
	_, err = LoadConfig(path)
	requireCode(t, err, "CONFIG_INVALID")
}

func TestLoadConfigRejectsBadEnvDuration(t *testing.T) {
	productionEnv(t)
	t.Setenv("TEAMGATE_RESET_TTL", "an hour")

	_, err := LoadConfig("")
	requireCode(t, err, "CONFIG_INVALID")
}

func TestValidateRejects(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.JWTSecret = testSecret
		cfg.DatabaseURL = "postgres://localhost/teamgate"
		cfg.RedisURL = "redis://localhost:6379"
		cfg.SMTP.FromAddress = "noreply@example.com"
		return cfg
	}
	base := valid()
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"missing key":           func(c *Config) { c.JWTSecret = "" },
		"short key":             func(c *Config) { c.JWTSecret = "short" },
		"unknown secret store":  func(c *Config) { c.SecretStore = "mongo" },
		"unknown account store": func(c *Config) { c.AccountStore = "ldap" },
		"unknown mailer":        func(c *Config) { c.Mailer = "carrier-pigeon" },
		"smtp without from":     func(c *Config) { c.SMTP.FromAddress = "" },
		"postgres without url":  func(c *Config) { c.DatabaseURL = "" },
		"redis without url":     func(c *Config) { c.RedisURL = "" },
		"pg secrets mem accounts": func(c *Config) {
			c.SecretStore = BackendPostgres
			c.AccountStore = BackendMemory
		},
		"relative client url": func(c *Config) { c.ClientURL = "/reset" },
		"zero otp ttl":        func(c *Config) { c.OTPTTL = 0 },
		"negative purge":      func(c *Config) { c.PurgeInterval = -time.Second },
		"empty throttle":      func(c *Config) { c.LoginThrottleMax = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			requireCode(t, cfg.Validate(), "CONFIG_INVALID")
		})
	}
}

func TestEphemeralKeyAllowsMissingSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatabaseURL = "postgres://localhost/teamgate"
	cfg.RedisURL = "redis://localhost:6379"
	cfg.SMTP.FromAddress = "noreply@example.com"
	cfg.AllowEphemeralKey = true

	assert.NoError(t, cfg.Validate())
}

func TestDevModeNeedsNoExternalServices(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("", DevMode)
	require.NoError(t, err)

	assert.True(t, cfg.Dev)
	assert.Equal(t, BackendMemory, cfg.AccountStore)
	assert.Equal(t, BackendLog, cfg.Mailer)
	assert.True(t, cfg.AllowEphemeralKey)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestEngineConfigMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClientURL = "https://app.example.com"
	cfg.Cooldown = 20 * time.Second
	cfg.LoginThrottleMax = 7

	ec := cfg.engineConfig([]byte(testSecret))
	assert.Equal(t, "https://app.example.com", ec.Reset.LinkBase)
	assert.Equal(t, 20*time.Second, ec.Secrets.Cooldown)
	assert.Equal(t, 7, ec.LoginThrottle.MaxRequests)
	assert.Equal(t, []byte(testSecret), ec.Session.PrivateKey)
	assert.True(t, ec.Session.EnableRevocation)
	require.NoError(t, ec.Validate())
}
