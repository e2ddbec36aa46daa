package bootstrap

import (
	"context"
	"crypto/rand"
	"log/slog"
	"os"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/MrEthical07/teamgate"
	"github.com/MrEthical07/teamgate/accounts"
	"github.com/MrEthical07/teamgate/internal/pgdb"
	"github.com/MrEthical07/teamgate/mail"
	"github.com/MrEthical07/teamgate/secret"
)

type expiredPurger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Services holds the wired collaborators shared by the server and the
// admin commands.
type Services struct {
	Engine *teamgate.Engine
	Redis  redis.UniversalClient
	// Pool is nil when no Postgres backend is configured.
	Pool *pgxpool.Pool

	purger  expiredPurger
	logger  *slog.Logger
	closers []func()
}

// Open connects the configured backends and builds the Engine.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{logger: logger}

	if err := s.connect(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}

	engine, err := s.buildEngine(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Engine = engine
	return s, nil
}

func (s *Services) connect(ctx context.Context, cfg Config) error {
	if cfg.needsPostgres() {
		pool, err := pgdb.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		s.Pool = pool
		s.closers = append(s.closers, pool.Close)
	}

	if !cfg.needsRedis() {
		return nil
	}

	redisURL := cfg.RedisURL
	if redisURL == "" && cfg.Dev {
		mr, err := miniredis.Run()
		if err != nil {
			return oops.Code("REDIS_CONNECT_FAILED").With("operation", "start in-process redis").Wrap(err)
		}
		s.closers = append(s.closers, mr.Close)
		redisURL = "redis://" + mr.Addr()
		s.logger.Warn("using in-process redis; state is lost on exit", "addr", mr.Addr())
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrapf(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	s.closers = append(s.closers, func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		return oops.Code("REDIS_CONNECT_FAILED").With("operation", "ping redis").Wrap(err)
	}
	s.Redis = client
	return nil
}

func (s *Services) buildEngine(cfg Config) (*teamgate.Engine, error) {
	key, err := signingKey(cfg, s.logger)
	if err != nil {
		return nil, err
	}

	var directory teamgate.AccountDirectory
	switch cfg.AccountStore {
	case BackendPostgres:
		directory = accounts.NewPostgresDirectory(s.Pool)
	default:
		directory = accounts.NewMemoryDirectory()
	}

	var store secret.Store
	switch cfg.SecretStore {
	case BackendPostgres:
		pg := secret.NewPostgresStore(s.Pool)
		s.purger = pg
		store = pg
	default:
		store = secret.NewRedisStore(s.Redis)
	}

	var mailer teamgate.Mailer
	switch cfg.Mailer {
	case BackendSMTP:
		smtp, err := mail.NewSMTPMailer(cfg.SMTP, s.logger)
		if err != nil {
			return nil, err
		}
		mailer = smtp
	default:
		mailer = mail.NewLogMailer(s.logger)
	}

	var sink teamgate.AuditSink = teamgate.NewJSONWriterSink(os.Stdout)
	if s.Pool != nil {
		sink = accounts.NewPostgresAuditSink(s.Pool, s.logger)
	}

	b := teamgate.New().
		WithConfig(cfg.engineConfig(key)).
		WithAccounts(directory).
		WithSecretStore(store).
		WithMailer(mailer).
		WithAuditSink(sink).
		WithLogger(s.logger)
	if s.Redis != nil {
		b = b.WithRedis(s.Redis)
	}
	return b.Build()
}

// engineConfig maps the process settings onto the Engine configuration.
func (c Config) engineConfig(key []byte) teamgate.Config {
	ec := teamgate.DefaultConfig()
	ec.Secrets.OTPTTL = c.OTPTTL
	ec.Secrets.ResetTTL = c.ResetTTL
	ec.Secrets.Cooldown = c.Cooldown
	ec.Session.TTL = c.SessionTTL
	ec.Session.PrivateKey = key
	ec.Session.Issuer = c.ServiceName
	ec.Session.EnableRevocation = c.EnableRevocation
	ec.Reset.LinkBase = c.ClientURL
	ec.LoginThrottle.Enabled = c.LoginThrottle
	ec.LoginThrottle.MaxRequests = c.LoginThrottleMax
	ec.LoginThrottle.Window = c.LoginThrottleWindow
	ec.Audit.Enabled = c.AuditEnabled
	return ec
}

func signingKey(cfg Config, logger *slog.Logger) ([]byte, error) {
	if len(cfg.JWTSecret) >= minSigningKeyBytes {
		return []byte(cfg.JWTSecret), nil
	}
	if !cfg.AllowEphemeralKey {
		return nil, oops.Code("CONFIG_INVALID").Errorf("JWT_SECRET is missing or too short")
	}
	key := make([]byte, minSigningKeyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, oops.Code("KEY_GENERATION_FAILED").Wrap(err)
	}
	logger.Warn("using an ephemeral signing key; sessions do not survive a restart")
	return key, nil
}

// Ping reports whether every connected backend answers.
func (s *Services) Ping(ctx context.Context) error {
	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			return oops.Code("REDIS_UNAVAILABLE").Wrap(err)
		}
	}
	if s.Pool != nil {
		if err := s.Pool.Ping(ctx); err != nil {
			return oops.Code("DB_UNAVAILABLE").Wrap(err)
		}
	}
	return nil
}

// PurgeExpired removes secrets whose expiry plus secret.DefaultRetention
// lies before now. It is a no-op unless secrets live in Postgres; Redis
// evicts them on its own with the same grace.
func (s *Services) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if s.purger == nil {
		return 0, nil
	}
	return s.purger.PurgeExpired(ctx, now.Add(-secret.DefaultRetention))
}

// Close releases the Engine and every connection, newest first.
func (s *Services) Close() {
	if s == nil {
		return
	}
	if s.Engine != nil {
		s.Engine.Close()
		s.Engine = nil
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
