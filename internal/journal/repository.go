package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bank-ledger/internal/models"
	"bank-ledger/internal/utils"
)

// Repository mirrors accepted transactions into Postgres. The ledger files stay
// the source of truth; the journal is an append-only copy for reporting.
type Repository struct {
	db *pgxpool.Pool
}

// Connect opens a pgx pool for dbURL and pings it once.
func Connect(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect journal database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal database: %w", err)
	}
	return pool, nil
}

// NewRepository wraps an open pool. The caller owns db.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Append inserts entry. Replaying an entry with a known id is a no-op.
func (r *Repository) Append(ctx context.Context, entry models.JournalEntry) error {
	query := `
		INSERT INTO ledger_journal (
			id, account_id, amount, kind, description, occurred_at, balance_after
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	utils.LogDB("INSERT", "ledger_journal")

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.Amount,
		entry.Kind,
		entry.Description,
		entry.OccurredAt,
		entry.BalanceAfter,
	)
	if err != nil {
		return fmt.Errorf("append journal entry %s: %w", entry.ID, err)
	}
	return nil
}

// ListByAccount returns at most limit entries of the account, newest first.
func (r *Repository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.JournalEntry, error) {
	query := `
		SELECT id, account_id, amount, kind, description, occurred_at, balance_after
		FROM ledger_journal
		WHERE account_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`
	utils.LogDB("SELECT", "ledger_journal")

	rows, err := r.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var entry models.JournalEntry
		err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.Amount,
			&entry.Kind,
			&entry.Description,
			&entry.OccurredAt,
			&entry.BalanceAfter,
		)
		if err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}

	return entries, nil
}

// IsTransient reports whether a failed Append may be retried safely.
func IsTransient(err error) bool {
	if pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
