package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/MrEthical07/teamgate"
	"github.com/MrEthical07/teamgate/internal/pgdb"
)

const accountColumns = `id, email, name, role, password_hash, created_at, updated_at`

// PostgresDirectory stores accounts in the accounts table.
type PostgresDirectory struct {
	db pgdb.DB
}

// NewPostgresDirectory creates a PostgresDirectory on db.
func NewPostgresDirectory(db pgdb.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) FindByEmail(ctx context.Context, normalizedEmail string) (teamgate.Account, error) {
	row := d.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1
	`, normalizedEmail)

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return teamgate.Account{}, teamgate.ErrAccountNotFound
	}
	if err != nil {
		return teamgate.Account{}, oops.Code("ACCOUNT_FIND_FAILED").With("operation", "find by email").Wrap(err)
	}
	return acct, nil
}

func (d *PostgresDirectory) FindByID(ctx context.Context, id string) (teamgate.Account, error) {
	row := d.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id)

	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return teamgate.Account{}, teamgate.ErrAccountNotFound
	}
	if err != nil {
		return teamgate.Account{}, oops.Code("ACCOUNT_FIND_FAILED").
			With("operation", "find by id").
			With("account_id", id).
			Wrap(err)
	}
	return acct, nil
}

func (d *PostgresDirectory) Create(ctx context.Context, input teamgate.NewAccount) (teamgate.Account, error) {
	row := d.db.QueryRow(ctx, `
		INSERT INTO accounts (id, email, name, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+accountColumns,
		input.ID,
		input.Email,
		input.Name,
		string(input.Role),
		input.PasswordHash,
		input.CreatedAt,
	)

	acct, err := scanAccount(row)
	if err != nil {
		if pgdb.IsUniqueViolation(err) {
			return teamgate.Account{}, oops.Code("ACCOUNT_EXISTS").
				With("email", input.Email).
				Wrap(fmt.Errorf("%w: %w", teamgate.ErrAccountExists, err))
		}
		return teamgate.Account{}, oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "create account").Wrap(err)
	}
	return acct, nil
}

func (d *PostgresDirectory) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := d.db.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`, id, hash)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update password hash").
			With("account_id", id).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return teamgate.ErrAccountNotFound
	}
	return nil
}

func (d *PostgresDirectory) UpdateProfile(ctx context.Context, id string, update teamgate.AccountUpdate) (teamgate.Account, error) {
	var role *string
	if update.Role != nil {
		r := string(*update.Role)
		role = &r
	}

	row := d.db.QueryRow(ctx, `
		UPDATE accounts SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			role = COALESCE($4, role),
			updated_at = now()
		WHERE id = $1
		RETURNING `+accountColumns,
		id,
		update.Name,
		update.Email,
		role,
	)

	acct, err := scanAccount(row)
	switch {
	case err == nil:
		return acct, nil
	case errors.Is(err, pgx.ErrNoRows):
		return teamgate.Account{}, teamgate.ErrAccountNotFound
	case pgdb.IsUniqueViolation(err):
		return teamgate.Account{}, oops.Code("ACCOUNT_EXISTS").
			With("account_id", id).
			Wrap(fmt.Errorf("%w: %w", teamgate.ErrAccountExists, err))
	}
	return teamgate.Account{}, oops.Code("ACCOUNT_UPDATE_FAILED").
		With("operation", "update profile").
		With("account_id", id).
		Wrap(err)
}

func (d *PostgresDirectory) List(ctx context.Context) ([]teamgate.Account, error) {
	rows, err := d.db.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "list accounts").Wrap(err)
	}
	defer rows.Close()

	var out []teamgate.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "scan account").Wrap(err)
		}
		out = append(out, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_LIST_FAILED").With("operation", "iterate accounts").Wrap(err)
	}
	return out, nil
}

func scanAccount(row pgx.Row) (teamgate.Account, error) {
	var (
		acct                 teamgate.Account
		role                 string
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&acct.ID, &acct.Email, &acct.Name, &role, &acct.PasswordHash, &createdAt, &updatedAt); err != nil {
		return teamgate.Account{}, err
	}
	acct.Role = teamgate.Role(role)
	acct.CreatedAt = createdAt.UTC()
	acct.UpdatedAt = updatedAt.UTC()
	return acct, nil
}
