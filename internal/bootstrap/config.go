// Package bootstrap resolves process configuration and wires the server.
package bootstrap

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/teamgate/mail"
)

// Backends accepted for the secret store, the account directory and the mailer.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendSMTP     = "smtp"
	BackendLog      = "log"
)

const minSigningKeyBytes = 32

// Config is the resolved server configuration.
type Config struct {
	ServiceName string

	HTTPAddr string
	// GRPCAddr serves the gRPC health service. Empty disables it.
	GRPCAddr string

	LogFormat string
	LogLevel  string

	DatabaseURL string
	RedisURL    string

	SecretStore  string
	AccountStore string
	Mailer       string
	SMTP         mail.SMTPConfig

	ClientURL         string
	JWTSecret         string
	AllowEphemeralKey bool

	OTPTTL     time.Duration
	ResetTTL   time.Duration
	Cooldown   time.Duration
	SessionTTL time.Duration

	EnableRevocation bool

	LoginThrottle       bool
	LoginThrottleMax    int
	LoginThrottleWindow time.Duration

	// PurgeInterval is how often expired secrets are removed from
	// Postgres. Zero disables the sweep.
	PurgeInterval time.Duration

	TrustProxyHeaders bool
	AuditEnabled      bool
	OTelMetrics       bool
	ShutdownTimeout   time.Duration

	// Dev runs against an in-process Redis when RedisURL is empty.
	Dev bool
}

// Override adjusts a resolved configuration before validation.
type Override func(*Config)

// DevMode switches to the in-memory account directory, the log mailer,
// the Redis secret store and an ephemeral signing key, and enables the
// in-process Redis. Explicit Postgres and SMTP settings are ignored.
func DevMode(c *Config) {
	c.Dev = true
	c.AccountStore = BackendMemory
	c.SecretStore = BackendRedis
	c.Mailer = BackendLog
	c.AllowEphemeralKey = true
	c.LogFormat = "text"
	if c.LogLevel == "info" {
		c.LogLevel = "debug"
	}
}

// configFile mirrors the YAML schema. Durations are Go duration strings.
type configFile struct {
	Service struct {
		Name      string `yaml:"name"`
		HTTPAddr  string `yaml:"http_addr"`
		GRPCAddr  string `yaml:"grpc_addr"`
		LogFormat string `yaml:"log_format"`
		LogLevel  string `yaml:"log_level"`
		Shutdown  string `yaml:"shutdown_timeout"`
		Proxy     *bool  `yaml:"trust_proxy_headers"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	Backends struct {
		Secrets  string `yaml:"secrets"`
		Accounts string `yaml:"accounts"`
		Mailer   string `yaml:"mailer"`
	} `yaml:"backends"`
	SMTP struct {
		Host       string `yaml:"host"`
		Port       int    `yaml:"port"`
		Username   string `yaml:"username"`
		Password   string `yaml:"password"`
		From       string `yaml:"from"`
		FromName   string `yaml:"from_name"`
		Encryption string `yaml:"encryption"`
	} `yaml:"smtp"`
	Auth struct {
		ClientURL         string `yaml:"client_url"`
		AllowEphemeralKey *bool  `yaml:"allow_ephemeral_key"`
		OTPTTL            string `yaml:"otp_ttl"`
		ResetTTL          string `yaml:"reset_ttl"`
		Cooldown          string `yaml:"cooldown"`
		SessionTTL        string `yaml:"session_ttl"`
		Revocation        *bool  `yaml:"revocation"`
	} `yaml:"auth"`
	LoginThrottle struct {
		Enabled     *bool  `yaml:"enabled"`
		MaxRequests int    `yaml:"max_requests"`
		Window      string `yaml:"window"`
	} `yaml:"login_throttle"`
	Maintenance struct {
		PurgeInterval string `yaml:"purge_interval"`
	} `yaml:"maintenance"`
	Observability struct {
		Audit       *bool `yaml:"audit"`
		OTelMetrics *bool `yaml:"otel_metrics"`
	} `yaml:"observability"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:  "teamgate",
		HTTPAddr:     ":5000",
		GRPCAddr:     "",
		LogFormat:    "json",
		LogLevel:     "info",
		SecretStore:  BackendRedis,
		AccountStore: BackendPostgres,
		Mailer:       BackendSMTP,
		SMTP: mail.SMTPConfig{
			Host:       "smtp.gmail.com",
			Port:       587,
			Encryption: mail.EncryptionStartTLS,
			FromName:   "teamgate",
		},
		ClientURL:           "http://localhost:3000",
		OTPTTL:              5 * time.Minute,
		ResetTTL:            time.Hour,
		Cooldown:            60 * time.Second,
		SessionTTL:          time.Hour,
		EnableRevocation:    true,
		LoginThrottle:       true,
		LoginThrottleMax:    5,
		LoginThrottleWindow: 10 * time.Minute,
		PurgeInterval:       15 * time.Minute,
		AuditEnabled:        true,
		ShutdownTimeout:     10 * time.Second,
	}
}

// LoadConfig resolves configuration in priority order: defaults, then the
// YAML file at path (skipped when empty or missing), then the environment,
// then overrides.
func LoadConfig(path string, overrides ...Override) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := cfg.applyFile(raw); err != nil {
				return Config{}, err
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, oops.Code("CONFIG_INVALID").With("path", path).Wrapf(err, "read config file")
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return oops.Code("CONFIG_INVALID").Wrapf(err, "parse config file")
	}

	setString(&c.ServiceName, f.Service.Name)
	setString(&c.HTTPAddr, f.Service.HTTPAddr)
	setString(&c.GRPCAddr, f.Service.GRPCAddr)
	setString(&c.LogFormat, f.Service.LogFormat)
	setString(&c.LogLevel, f.Service.LogLevel)
	setBool(&c.TrustProxyHeaders, f.Service.Proxy)

	setString(&c.DatabaseURL, f.Dependencies.PostgresURL)
	setString(&c.RedisURL, f.Dependencies.RedisURL)

	setString(&c.SecretStore, f.Backends.Secrets)
	setString(&c.AccountStore, f.Backends.Accounts)
	setString(&c.Mailer, f.Backends.Mailer)

	setString(&c.SMTP.Host, f.SMTP.Host)
	if f.SMTP.Port > 0 {
		c.SMTP.Port = f.SMTP.Port
	}
	setString(&c.SMTP.Username, f.SMTP.Username)
	setString(&c.SMTP.Password, f.SMTP.Password)
	setString(&c.SMTP.FromAddress, f.SMTP.From)
	setString(&c.SMTP.FromName, f.SMTP.FromName)
	if f.SMTP.Encryption != "" {
		c.SMTP.Encryption = mail.Encryption(strings.ToLower(f.SMTP.Encryption))
	}

	setString(&c.ClientURL, f.Auth.ClientURL)
	setBool(&c.AllowEphemeralKey, f.Auth.AllowEphemeralKey)
	setBool(&c.EnableRevocation, f.Auth.Revocation)
	setBool(&c.LoginThrottle, f.LoginThrottle.Enabled)
	if f.LoginThrottle.MaxRequests > 0 {
		c.LoginThrottleMax = f.LoginThrottle.MaxRequests
	}
	setBool(&c.AuditEnabled, f.Observability.Audit)
	setBool(&c.OTelMetrics, f.Observability.OTelMetrics)

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"service.shutdown_timeout", f.Service.Shutdown, &c.ShutdownTimeout},
		{"auth.otp_ttl", f.Auth.OTPTTL, &c.OTPTTL},
		{"auth.reset_ttl", f.Auth.ResetTTL, &c.ResetTTL},
		{"auth.cooldown", f.Auth.Cooldown, &c.Cooldown},
		{"auth.session_ttl", f.Auth.SessionTTL, &c.SessionTTL},
		{"login_throttle.window", f.LoginThrottle.Window, &c.LoginThrottleWindow},
		{"maintenance.purge_interval", f.Maintenance.PurgeInterval, &c.PurgeInterval},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.key, d.raw); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.HTTPAddr = envOrDefault("TEAMGATE_HTTP_ADDR", c.HTTPAddr)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("TEAMGATE_HTTP_ADDR") == "" {
		c.HTTPAddr = ":" + port
	}
	c.GRPCAddr = envOrDefault("TEAMGATE_GRPC_ADDR", c.GRPCAddr)
	c.LogFormat = envOrDefault("TEAMGATE_LOG_FORMAT", c.LogFormat)
	c.LogLevel = envOrDefault("TEAMGATE_LOG_LEVEL", c.LogLevel)
	c.TrustProxyHeaders = envBool("TEAMGATE_TRUST_PROXY", c.TrustProxyHeaders)

	c.DatabaseURL = envOrDefault("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = envOrDefault("REDIS_URL", c.RedisURL)

	c.SecretStore = envOrDefault("TEAMGATE_SECRET_STORE", c.SecretStore)
	c.AccountStore = envOrDefault("TEAMGATE_ACCOUNT_STORE", c.AccountStore)
	c.Mailer = envOrDefault("TEAMGATE_MAILER", c.Mailer)

	c.SMTP.Host = envOrDefault("SMTP_HOST", c.SMTP.Host)
	c.SMTP.Port = envInt("SMTP_PORT", c.SMTP.Port)
	c.SMTP.Username = envOrDefault("SMTP_USERNAME", envOrDefault("EMAIL_USER", c.SMTP.Username))
	c.SMTP.Password = envOrDefault("SMTP_PASSWORD", envOrDefault("EMAIL_PASS", c.SMTP.Password))
	c.SMTP.FromAddress = envOrDefault("SMTP_FROM", c.SMTP.FromAddress)
	if enc := os.Getenv("SMTP_ENCRYPTION"); enc != "" {
		c.SMTP.Encryption = mail.Encryption(strings.ToLower(enc))
	}
	if c.SMTP.FromAddress == "" {
		c.SMTP.FromAddress = c.SMTP.Username
	}

	c.ClientURL = envOrDefault("CLIENT_URL", c.ClientURL)
	c.JWTSecret = envOrDefault("JWT_SECRET", c.JWTSecret)
	c.AllowEphemeralKey = envBool("TEAMGATE_ALLOW_EPHEMERAL_KEY", c.AllowEphemeralKey)
	c.EnableRevocation = envBool("TEAMGATE_REVOCATION", c.EnableRevocation)
	c.LoginThrottle = envBool("TEAMGATE_LOGIN_THROTTLE", c.LoginThrottle)
	c.LoginThrottleMax = envInt("TEAMGATE_LOGIN_THROTTLE_MAX", c.LoginThrottleMax)
	c.AuditEnabled = envBool("TEAMGATE_AUDIT", c.AuditEnabled)
	c.OTelMetrics = envBool("TEAMGATE_OTEL_METRICS", c.OTelMetrics)

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"TEAMGATE_SHUTDOWN_TIMEOUT", &c.ShutdownTimeout},
		{"TEAMGATE_OTP_TTL", &c.OTPTTL},
		{"TEAMGATE_RESET_TTL", &c.ResetTTL},
		{"TEAMGATE_COOLDOWN", &c.Cooldown},
		{"TEAMGATE_SESSION_TTL", &c.SessionTTL},
		{"TEAMGATE_LOGIN_THROTTLE_WINDOW", &c.LoginThrottleWindow},
		{"TEAMGATE_PURGE_INTERVAL", &c.PurgeInterval},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.name, os.Getenv(d.name)); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	invalid := oops.Code("CONFIG_INVALID")

	if strings.TrimSpace(c.HTTPAddr) == "" {
		return invalid.Errorf("http address is required")
	}
	if len(c.JWTSecret) < minSigningKeyBytes && !c.AllowEphemeralKey {
		return invalid.With("min_bytes", minSigningKeyBytes).Errorf("JWT_SECRET is missing or too short")
	}

	switch c.SecretStore {
	case BackendRedis, BackendPostgres:
	default:
		return invalid.With("backend", c.SecretStore).Errorf("unknown secret store backend")
	}
	switch c.AccountStore {
	case BackendPostgres, BackendMemory:
	default:
		return invalid.With("backend", c.AccountStore).Errorf("unknown account store backend")
	}
	switch c.Mailer {
	case BackendSMTP:
		if strings.TrimSpace(c.SMTP.Host) == "" {
			return invalid.Errorf("smtp host is required for the smtp mailer")
		}
		if c.SMTP.FromAddress == "" {
			return invalid.Errorf("smtp from address is required for the smtp mailer")
		}
	case BackendLog:
	default:
		return invalid.With("backend", c.Mailer).Errorf("unknown mailer backend")
	}

	if c.needsPostgres() && c.DatabaseURL == "" {
		return invalid.Errorf("DATABASE_URL is required for the postgres backends")
	}
	if c.SecretStore == BackendPostgres && c.AccountStore != BackendPostgres {
		return invalid.Errorf("the postgres secret store requires the postgres account store")
	}
	if c.needsRedis() && c.RedisURL == "" && !c.Dev {
		return invalid.Errorf("REDIS_URL is required for the redis secret store, the login throttle and revocation")
	}

	if u, err := url.Parse(c.ClientURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid.With("client_url", c.ClientURL).Errorf("client url must be an absolute URL")
	}

	positive := []struct {
		name string
		d    time.Duration
	}{
		{"otp_ttl", c.OTPTTL},
		{"reset_ttl", c.ResetTTL},
		{"cooldown", c.Cooldown},
		{"session_ttl", c.SessionTTL},
		{"shutdown_timeout", c.ShutdownTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return invalid.With("setting", p.name).Errorf("duration must be > 0")
		}
	}
	if c.PurgeInterval < 0 {
		return invalid.With("setting", "purge_interval").Errorf("duration must be >= 0")
	}
	if c.LoginThrottle && (c.LoginThrottleMax <= 0 || c.LoginThrottleWindow <= 0) {
		return invalid.Errorf("login throttle needs a positive budget and window")
	}
	return nil
}

func (c *Config) needsRedis() bool {
	return c.SecretStore == BackendRedis || c.LoginThrottle || c.EnableRevocation
}

func (c *Config) needsPostgres() bool {
	return c.SecretStore == BackendPostgres || c.AccountStore == BackendPostgres
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, key, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("setting", key).Wrapf(err, "invalid duration")
	}
	*dst = d
	return nil
}

// envOrDefault returns an env var when present, otherwise the fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}
