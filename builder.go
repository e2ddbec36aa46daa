package teamgate

import (
	"errors"
	"log/slog"

	"github.com/MrEthical07/teamgate/internal/audit"
	"github.com/MrEthical07/teamgate/internal/rate"
	"github.com/MrEthical07/teamgate/jwt"
	"github.com/MrEthical07/teamgate/mail"
	"github.com/MrEthical07/teamgate/password"
	"github.com/MrEthical07/teamgate/secret"
	"github.com/MrEthical07/teamgate/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Every collaborator is passed in; nothing is
// read from globals or the environment.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  AccountDirectory
	secrets   secret.Store
	mailer    Mailer
	templates *mail.Templates
	clock     Clock
	random    RandomSource
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used by the login throttle and the
// revocation list. The secret store is passed separately.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccounts sets the account directory. It is required.
func (b *Builder) WithAccounts(d AccountDirectory) *Builder {
	b.accounts = d
	return b
}

// WithSecretStore sets where passcodes and reset tokens live. It is required.
func (b *Builder) WithSecretStore(s secret.Store) *Builder {
	b.secrets = s
	return b
}

// WithMailer sets the delivery channel for passcodes and reset links. It is
// required.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithTemplates overrides the default mail subjects and bodies.
func (b *Builder) WithTemplates(t mail.Templates) *Builder {
	b.templates = &t
	return b
}

// WithClock overrides the system clock.
func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithRandom overrides crypto/rand as the source for passcodes and reset
// tokens.
func (b *Builder) WithRandom(r RandomSource) *Builder {
	b.random = r
	return b
}

// WithAuditSink sets where audit entries go when Config.Audit is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger. slog.Default is used when unset.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetricsEnabled toggles in-process metrics collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the Engine. A Builder can be
// used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.accounts == nil {
		return nil, errors.New("account directory required")
	}
	if b.secrets == nil {
		return nil, errors.New("secret store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}
	if b.redis == nil {
		if cfg.LoginThrottle.Enabled {
			return nil, errors.New("LoginThrottle requires redis client")
		}
		if cfg.Session.EnableRevocation {
			return nil, errors.New("Session revocation requires redis client")
		}
	}

	engine := &Engine{
		config:   cfg,
		accounts: b.accounts,
		secrets:  b.secrets,
		mailer:   b.mailer,
		clock:    b.clock,
		random:   b.random,
		logger:   b.logger,
	}
	if engine.clock == nil {
		engine.clock = SystemClock{}
	}
	if engine.logger == nil {
		engine.logger = slog.Default()
	}
	engine.templates = mail.DefaultTemplates()
	if b.templates != nil {
		engine.templates = *b.templates
	}

	engine.audit = audit.NewDispatcher[AuditEntry](audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	guard, err := NewRateGuard(b.secrets, cfg.Secrets.Cooldown, engine.audit)
	if err != nil {
		engine.audit.Close()
		return nil, err
	}
	engine.guard = guard

	verifier, err := password.NewVerifier(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MaxBytes:    cfg.Password.MaxBytes,
	})
	if err != nil {
		engine.audit.Close()
		return nil, err
	}
	engine.verifier = verifier

	jm, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Session.TTL,
		SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Session.PrivateKey),
		PublicKey:     cloneBytes(cfg.Session.PublicKey),
		Issuer:        cfg.Session.Issuer,
		Audience:      cfg.Session.Audience,
		KeyID:         cfg.Session.KeyID,
		Roles:         roleNames(),
	})
	if err != nil {
		engine.audit.Close()
		return nil, err
	}
	engine.sessions = jm

	if cfg.LoginThrottle.Enabled {
		limiter, err := rate.New(b.redis, rate.Config{
			MaxRequests: cfg.LoginThrottle.MaxRequests,
			Window:      cfg.LoginThrottle.Window,
			KeyPrefix:   cfg.LoginThrottle.KeyPrefix,
		})
		if err != nil {
			engine.audit.Close()
			return nil, err
		}
		engine.throttle = limiter
	}
	if cfg.Session.EnableRevocation {
		engine.revocations = session.NewRevocationList(b.redis, cfg.Session.RevocationPrefix)
	}

	b.built = true

	return engine, nil
}
