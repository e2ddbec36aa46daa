package teamgate

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"
)

// Register creates an account. The email is normalized and must be
// unique; an empty role defaults to RoleContributor.
func (e *Engine) Register(ctx context.Context, input NewAccountInput) (Account, error) {
	if !e.ready() {
		return Account{}, ErrEngineNotReady
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Account{}, ErrInvalidAccount
	}
	email, err := validEmail(input.Email)
	if err != nil {
		return Account{}, err
	}
	role := RoleContributor
	if strings.TrimSpace(input.Role) != "" {
		if role, err = ParseRole(input.Role); err != nil {
			return Account{}, err
		}
	}
	if err := e.checkPasswordPolicy(input.Password); err != nil {
		return Account{}, err
	}
	hash, err := e.verifier.Hash(input.Password)
	if err != nil {
		return Account{}, ErrPasswordPolicy
	}

	acct, err := e.accounts.Create(ctx, NewAccount{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    e.clock.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricAccountCreateDuplicate)
			return Account{}, ErrAccountExists
		}
		return Account{}, e.storeFailure(ctx, "register.create", err)
	}

	e.metricInc(MetricAccountCreated)
	e.logger.InfoContext(ctx, "account registered",
		slog.String("account_id", acct.ID),
		slog.String("role", string(acct.Role)),
	)
	return acct, nil
}

// ListAccounts returns every account, oldest first.
func (e *Engine) ListAccounts(ctx context.Context) ([]Account, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	accounts, err := e.accounts.List(ctx)
	if err != nil {
		return nil, e.storeFailure(ctx, "list_accounts", err)
	}
	return accounts, nil
}

// UpdateAccount changes the name, email or role of an account.
func (e *Engine) UpdateAccount(ctx context.Context, id string, update AccountUpdate) (Account, error) {
	if !e.ready() {
		return Account{}, ErrEngineNotReady
	}
	if id == "" {
		return Account{}, ErrAccountNotFound
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return Account{}, ErrInvalidAccount
		}
		update.Name = &name
	}
	if update.Email != nil {
		email, err := validEmail(*update.Email)
		if err != nil {
			return Account{}, err
		}
		update.Email = &email
	}
	if update.Role != nil && !update.Role.Valid() {
		return Account{}, ErrInvalidRole
	}

	acct, err := e.accounts.UpdateProfile(ctx, id, update)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountNotFound):
			return Account{}, ErrAccountNotFound
		case errors.Is(err, ErrAccountExists):
			return Account{}, ErrAccountExists
		}
		return Account{}, e.storeFailure(ctx, "update_account", err)
	}

	e.metricInc(MetricAccountUpdated)
	e.logger.InfoContext(ctx, "account updated", slog.String("account_id", acct.ID))
	return acct, nil
}

func validEmail(raw string) (string, error) {
	email := NormalizeEmail(raw)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidAccount
	}
	return email, nil
}
