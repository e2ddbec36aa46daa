package teamgate

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config holds every Engine tunable. Start from DefaultConfig and override
// what differs.
type Config struct {
	Secrets       SecretsConfig
	Session       SessionConfig
	Password      PasswordConfig
	Reset         ResetConfig
	LoginThrottle LoginThrottleConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
SECRETS CONFIG
====================================
*/

// SecretsConfig controls passcode and reset token lifetimes and the resend
// cooldown shared by both purposes.
type SecretsConfig struct {
	OTPTTL   time.Duration
	ResetTTL time.Duration
	Cooldown time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session token signing.
type SessionConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string

	// EnableRevocation turns on the Redis revocation list. Logout and the
	// post-reset account cutoff only take effect when it is set.
	EnableRevocation bool
	RevocationPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id work factor and the password policy.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength int
	MaxBytes  int
	// UpgradeOnLogin rehashes legacy or weaker hashes after a successful
	// password check.
	UpgradeOnLogin bool
}

/*
====================================
RESET CONFIG
====================================
*/

// ResetConfig controls the password reset link.
type ResetConfig struct {
	// LinkBase is prefixed to "/reset-password/<token>".
	LinkBase string
}

/*
====================================
LOGIN THROTTLE CONFIG
====================================
*/

// LoginThrottleConfig bounds login requests per source address.
type LoginThrottleConfig struct {
	Enabled     bool
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metrics collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the stock configuration. The signing key is left
// empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		Secrets: SecretsConfig{
			OTPTTL:   5 * time.Minute,
			ResetTTL: time.Hour,
			Cooldown: 60 * time.Second,
		},
		Session: SessionConfig{
			TTL:              time.Hour,
			SigningMethod:    "hs256",
			Issuer:           "teamgate",
			RevocationPrefix: "tg:rev",
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      1,
			MaxBytes:       1024,
			UpgradeOnLogin: true,
		},
		Reset: ResetConfig{
			LinkBase: "http://localhost:3000",
		},
		LoginThrottle: LoginThrottleConfig{
			Enabled:     true,
			MaxRequests: 5,
			Window:      10 * time.Minute,
			KeyPrefix:   "tg:lip",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.PrivateKey = cloneBytes(cfg.Session.PrivateKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the Engine cannot run with.
func (c *Config) Validate() error {
	// Secrets
	if c.Secrets.OTPTTL <= 0 {
		return errors.New("Secrets OTPTTL must be > 0")
	}
	if c.Secrets.ResetTTL <= 0 {
		return errors.New("Secrets ResetTTL must be > 0")
	}
	if c.Secrets.Cooldown <= 0 {
		return errors.New("Secrets Cooldown must be > 0")
	}
	if c.Secrets.Cooldown > c.Secrets.OTPTTL {
		return errors.New("Secrets Cooldown must not exceed OTPTTL")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	switch c.Session.SigningMethod {
	case "hs256":
		if len(c.Session.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.Session.PrivateKey) == 0 || len(c.Session.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	default:
		return errors.New("unsupported Session SigningMethod")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxBytes < c.Password.MinLength {
		return errors.New("Password MaxBytes must be >= MinLength")
	}

	// Reset
	if strings.TrimSpace(c.Reset.LinkBase) == "" {
		return errors.New("Reset LinkBase is required")
	}
	if u, err := url.Parse(c.Reset.LinkBase); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("Reset LinkBase must be an absolute URL")
	}

	// Login throttle
	if c.LoginThrottle.Enabled {
		if c.LoginThrottle.MaxRequests <= 0 {
			return errors.New("LoginThrottle MaxRequests must be > 0")
		}
		if c.LoginThrottle.Window <= 0 {
			return errors.New("LoginThrottle Window must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
