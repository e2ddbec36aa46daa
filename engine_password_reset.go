package teamgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/teamgate/internal"
	"github.com/MrEthical07/teamgate/secret"
)

// RequestPasswordReset mails a single-use reset link to the account of
// email. An unknown email returns nil without sending anything, so the
// response does not reveal whether an account exists. A second request
// within the cooldown returns a *RateLimitedError.
func (e *Engine) RequestPasswordReset(ctx context.Context, email, source string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	ip := sourceAddress(ctx, source)
	e.metricInc(MetricPasswordResetRequest)

	acct, err := e.accounts.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.logger.DebugContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return e.storeFailure(ctx, "reset_request.find_account", err)
	}

	now := e.clock.Now()
	decision, err := e.guard.CheckAndRecord(ctx, acct.ID, secret.PurposePasswordReset, now, ip)
	if err != nil {
		return e.storeFailure(ctx, "reset_request.rate_guard", err)
	}
	if !decision.Allowed {
		e.metricInc(MetricRateGuardBlocked)
		e.logger.WarnContext(ctx, "password reset requested within cooldown",
			slog.String("account_id", acct.ID),
			slog.Int("retry_after", decision.RetryAfterSeconds),
		)
		return &RateLimitedError{RetryAfterSeconds: decision.RetryAfterSeconds}
	}

	token, err := internal.NewResetToken(e.random)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	issued, err := e.secrets.Issue(ctx, acct.ID, secret.PurposePasswordReset, token, now, e.config.Secrets.ResetTTL)
	if err != nil {
		return e.storeFailure(ctx, "reset_request.issue", err)
	}

	msg := e.templates.PasswordReset(acct.Email, e.resetLink(token))
	if err := e.deliver(ctx, "reset_request", msg, issued); err != nil {
		return err
	}

	e.emitAudit(ctx, newAuditEntry(acct.ID, secret.PurposePasswordReset, ip, OutcomeSent, now))
	e.logger.InfoContext(ctx, "password reset link sent", slog.String("account_id", acct.ID))
	return nil
}

// ConfirmPasswordReset sets a new password using a reset token. The token
// must be live and unexpired. It is claimed before the password is written
// and restored if that write fails. No session is
// issued. Outstanding login passcodes of the account are discarded and,
// with revocation enabled, sessions issued before the reset are refused.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if !internal.ValidResetToken(token) {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return ErrInvalidOrExpiredToken
	}

	live, ok, err := e.secrets.FindByValue(ctx, secret.PurposePasswordReset, token)
	if err != nil {
		return e.storeFailure(ctx, "reset_confirm.find", err)
	}
	now := e.clock.Now()
	if !ok || live.Expired(now) {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return ErrInvalidOrExpiredToken
	}

	acct, err := e.accounts.FindByID(ctx, live.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricPasswordResetConfirmFailure)
			return ErrInvalidOrExpiredToken
		}
		return e.storeFailure(ctx, "reset_confirm.find_account", err)
	}

	if err := e.checkPasswordPolicy(newPassword); err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return err
	}
	hash, err := e.verifier.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	claimed, err := e.secrets.Consume(ctx, live.ID)
	if err != nil {
		return e.storeFailure(ctx, "reset_confirm.consume", err)
	}
	if !claimed {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return ErrInvalidOrExpiredToken
	}

	if err := e.accounts.UpdatePasswordHash(ctx, acct.ID, hash); err != nil {
		e.restoreResetToken(ctx, live, token)
		return e.storeFailure(ctx, "reset_confirm.update_password", err)
	}

	if err := e.secrets.ConsumeAll(ctx, acct.ID, secret.PurposeMFA); err != nil {
		e.logger.WarnContext(ctx, "discarding login passcodes after reset failed",
			slog.String("account_id", acct.ID),
			slog.String("error", err.Error()),
		)
	}
	if e.revocations != nil {
		if err := e.revocations.RevokeAccount(ctx, acct.ID, now, e.config.Session.TTL); err != nil {
			e.logger.WarnContext(ctx, "revoking sessions after reset failed",
				slog.String("account_id", acct.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.logger.InfoContext(ctx, "password reset completed", slog.String("account_id", acct.ID))
	return nil
}

// restoreResetToken re-issues a claimed reset token whose password write
// failed, keeping its original creation and expiry instants. A reset
// requested in the meantime wins and the claimed token stays spent.
func (e *Engine) restoreResetToken(ctx context.Context, claimed secret.Secret, token string) {
	if _, ok, err := e.secrets.Find(ctx, claimed.AccountID, secret.PurposePasswordReset); err != nil || ok {
		return
	}
	ttl := claimed.ExpiresAt.Sub(claimed.CreatedAt)
	if _, err := e.secrets.Issue(ctx, claimed.AccountID, secret.PurposePasswordReset, token, claimed.CreatedAt, ttl); err != nil {
		e.logger.WarnContext(ctx, "restoring reset token failed",
			slog.String("account_id", claimed.AccountID),
			slog.String("error", err.Error()),
		)
	}
}
