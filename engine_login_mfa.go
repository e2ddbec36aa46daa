package teamgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/teamgate/internal"
	"github.com/MrEthical07/teamgate/secret"
)

// Login checks email and password, then mails a one-time passcode. It
// returns the pending identifier to pass to VerifyOTP, which is the
// account id.
//
// An unknown email and a wrong password both return ErrInvalidCredentials
// at the same hashing cost. A passcode requested within the cooldown of
// the previous one returns a *RateLimitedError. A source address over its
// login budget gets a *ThrottledError.
func (e *Engine) Login(ctx context.Context, email, plainPassword, source string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	start := e.clock.Now()
	ip := sourceAddress(ctx, source)

	if err := e.checkLoginThrottle(ctx, ip); err != nil {
		return "", err
	}

	acct, err := e.accounts.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.verifier.VerifyDummy(plainPassword)
			e.metricInc(MetricLoginInvalidCredentials)
			return "", ErrInvalidCredentials
		}
		return "", e.storeFailure(ctx, "login.find_account", err)
	}
	if !e.verifier.Verify(plainPassword, acct.PasswordHash) {
		e.metricInc(MetricLoginInvalidCredentials)
		return "", ErrInvalidCredentials
	}
	e.upgradePasswordHash(ctx, acct, plainPassword)

	now := e.clock.Now()
	decision, err := e.guard.CheckAndRecord(ctx, acct.ID, secret.PurposeMFA, now, ip)
	if err != nil {
		return "", e.storeFailure(ctx, "login.rate_guard", err)
	}
	if !decision.Allowed {
		e.metricInc(MetricRateGuardBlocked)
		e.logger.WarnContext(ctx, "passcode requested within cooldown",
			slog.String("account_id", acct.ID),
			slog.Int("retry_after", decision.RetryAfterSeconds),
		)
		return "", &RateLimitedError{RetryAfterSeconds: decision.RetryAfterSeconds}
	}

	code, err := internal.NewPasscode(e.random)
	if err != nil {
		return "", fmt.Errorf("generate passcode: %w", err)
	}

	issued, err := e.secrets.Issue(ctx, acct.ID, secret.PurposeMFA, code, now, e.config.Secrets.OTPTTL)
	if err != nil {
		return "", e.storeFailure(ctx, "login.issue_passcode", err)
	}

	if err := e.deliver(ctx, "login", e.templates.OTP(acct.Email, code), issued); err != nil {
		return "", err
	}

	e.emitAudit(ctx, newAuditEntry(acct.ID, secret.PurposeMFA, ip, OutcomeSent, now))
	e.metricInc(MetricLoginOTPSent)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricLoginLatency, e.clock.Now().Sub(start))
	}
	e.logger.InfoContext(ctx, "login passcode sent", slog.String("account_id", acct.ID))

	return acct.ID, nil
}

// VerifyOTP completes a login. The passcode must match the live passcode
// of pendingID and must not be expired; it can be used once. On success
// every outstanding passcode of the account is discarded and a session is
// issued.
func (e *Engine) VerifyOTP(ctx context.Context, pendingID, code string) (*SessionResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if pendingID == "" || !internal.ValidPasscode(code) {
		e.metricInc(MetricOTPVerifyFailure)
		return nil, ErrInvalidOrExpiredOTP
	}

	live, ok, err := e.secrets.Find(ctx, pendingID, secret.PurposeMFA)
	if err != nil {
		return nil, e.storeFailure(ctx, "verify_otp.find", err)
	}
	now := e.clock.Now()
	if !ok || live.Expired(now) || !live.Matches(code) {
		e.metricInc(MetricOTPVerifyFailure)
		return nil, ErrInvalidOrExpiredOTP
	}

	claimed, err := e.secrets.Consume(ctx, live.ID)
	if err != nil {
		return nil, e.storeFailure(ctx, "verify_otp.consume", err)
	}
	if !claimed {
		e.metricInc(MetricOTPVerifyFailure)
		return nil, ErrInvalidOrExpiredOTP
	}
	if err := e.secrets.ConsumeAll(ctx, pendingID, secret.PurposeMFA); err != nil {
		e.logger.WarnContext(ctx, "discarding remaining passcodes failed",
			slog.String("account_id", pendingID),
			slog.String("error", err.Error()),
		)
	}

	acct, err := e.accounts.FindByID(ctx, pendingID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricOTPVerifyFailure)
			return nil, ErrInvalidOrExpiredOTP
		}
		return nil, e.storeFailure(ctx, "verify_otp.find_account", err)
	}

	token, claims, err := e.sessions.Issue(acct.ID, string(acct.Role), now)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	e.metricInc(MetricOTPVerifySuccess)
	e.metricInc(MetricSessionIssued)
	e.logger.InfoContext(ctx, "session issued", slog.String("account_id", acct.ID))

	return &SessionResult{
		Token:     token,
		AccountID: acct.ID,
		Name:      acct.Name,
		Role:      acct.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (e *Engine) checkLoginThrottle(ctx context.Context, ip string) error {
	if e.throttle == nil || ip == "" {
		return nil
	}
	decision, err := e.throttle.Allow(ctx, ip)
	if err != nil {
		// fail open
		e.logger.WarnContext(ctx, "login throttle unavailable", slog.String("error", err.Error()))
		return nil
	}
	if !decision.Allowed {
		e.metricInc(MetricLoginThrottled)
		e.logger.WarnContext(ctx, "login throttled",
			slog.String("source", ip),
			slog.Int("retry_after", decision.RetryAfterSeconds),
		)
		return &ThrottledError{RetryAfterSeconds: decision.RetryAfterSeconds}
	}
	return nil
}

func (e *Engine) upgradePasswordHash(ctx context.Context, acct Account, plainPassword string) {
	if !e.config.Password.UpgradeOnLogin || !e.verifier.NeedsUpgrade(acct.PasswordHash) {
		return
	}
	hash, err := e.verifier.Hash(plainPassword)
	if err != nil {
		e.logger.WarnContext(ctx, "password rehash failed", slog.String("account_id", acct.ID), slog.String("error", err.Error()))
		return
	}
	if err := e.accounts.UpdatePasswordHash(ctx, acct.ID, hash); err != nil {
		e.logger.WarnContext(ctx, "password rehash not stored", slog.String("account_id", acct.ID), slog.String("error", err.Error()))
	}
}
