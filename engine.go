package teamgate

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/teamgate/internal/audit"
	"github.com/MrEthical07/teamgate/internal/rate"
	"github.com/MrEthical07/teamgate/jwt"
	"github.com/MrEthical07/teamgate/mail"
	"github.com/MrEthical07/teamgate/password"
	"github.com/MrEthical07/teamgate/secret"
	"github.com/MrEthical07/teamgate/session"
)

// Engine runs the authentication flows. It is safe for concurrent use
// after Builder.Build.
type Engine struct {
	config      Config
	accounts    AccountDirectory
	secrets     secret.Store
	mailer      Mailer
	templates   mail.Templates
	clock       Clock
	random      RandomSource
	guard       *RateGuard
	verifier    *password.Verifier
	sessions    *jwt.Manager
	throttle    *rate.Limiter
	revocations *session.RevocationList
	audit       *audit.Dispatcher[AuditEntry]
	metrics     *Metrics
	logger      *slog.Logger
}

// Close drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit entries were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the counters and the login latency
// histogram. A nil Engine yields empty maps.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// SessionTTL returns the lifetime of issued session tokens.
func (e *Engine) SessionTTL() time.Duration {
	return e.config.Session.TTL
}

func (e *Engine) ready() bool {
	return e != nil && e.accounts != nil && e.secrets != nil && e.mailer != nil &&
		e.guard != nil && e.verifier != nil && e.sessions != nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, entry AuditEntry) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(ctx, entry)
}

// storeFailure logs an infrastructure fault and returns it wrapped in
// ErrStoreUnavailable.
func (e *Engine) storeFailure(ctx context.Context, operation string, err error) error {
	e.metricInc(MetricStoreFailure)
	e.logger.ErrorContext(ctx, "store operation failed",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// deliver sends msg. On failure the just-issued secret is consumed so no
// undeliverable secret stays live, and ErrDeliveryFailure is returned.
func (e *Engine) deliver(ctx context.Context, operation string, msg Message, issued secret.Secret) error {
	err := e.mailer.Deliver(ctx, msg)
	if err == nil {
		return nil
	}

	e.metricInc(MetricDeliveryFailure)
	e.logger.ErrorContext(ctx, "mail delivery failed",
		slog.String("operation", operation),
		slog.String("account_id", issued.AccountID),
		slog.String("error", err.Error()),
	)

	if _, cerr := e.secrets.Consume(context.WithoutCancel(ctx), issued.ID); cerr != nil {
		e.logger.ErrorContext(ctx, "rollback of undelivered secret failed",
			slog.String("operation", operation),
			slog.String("secret_id", issued.ID),
			slog.String("error", cerr.Error()),
		)
	}
	return fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
}

func (e *Engine) checkPasswordPolicy(plain string) error {
	if utf8.RuneCountInString(plain) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}
	if len(plain) > e.config.Password.MaxBytes {
		return ErrPasswordPolicy
	}
	return nil
}

func (e *Engine) resetLink(token string) string {
	return strings.TrimRight(e.config.Reset.LinkBase, "/") + "/reset-password/" + url.PathEscape(token)
}
