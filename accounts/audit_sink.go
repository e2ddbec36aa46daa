package accounts

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/teamgate"
	"github.com/MrEthical07/teamgate/internal/pgdb"
)

// PostgresAuditSink appends audit entries to the audit_entries table.
// Write failures are logged and otherwise ignored.
type PostgresAuditSink struct {
	db     pgdb.DB
	logger *slog.Logger
}

// NewPostgresAuditSink creates a PostgresAuditSink on db.
func NewPostgresAuditSink(db pgdb.DB, logger *slog.Logger) *PostgresAuditSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAuditSink{db: db, logger: logger}
}

func (s *PostgresAuditSink) Emit(ctx context.Context, entry teamgate.AuditEntry) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_entries (id, account_id, purpose, source_address, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		entry.ID,
		entry.AccountID,
		string(entry.Purpose),
		entry.SourceAddress,
		string(entry.Outcome),
		entry.Timestamp,
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "audit entry not stored",
			slog.String("audit_id", entry.ID),
			slog.String("error", err.Error()),
		)
	}
}
