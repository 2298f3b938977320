package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/eaglebank/bank-service/internal/ledger"
	"github.com/lib/pq"
)

// Schema is the single table shared by the ledger and the credential store.
// The reserve account is an ordinary row with an empty password hash.
const Schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		username      TEXT PRIMARY KEY,
		password_hash TEXT   NOT NULL DEFAULT '',
		balance       BIGINT NOT NULL DEFAULT 0,
		debt          BIGINT NOT NULL DEFAULT 0 CHECK (debt >= 0),
		version       BIGINT NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// Ledger stores accounts in PostgreSQL. Multi-account commits run in one
// transaction that locks the involved rows with SELECT ... FOR UPDATE in
// ledger.LockOrder, so the database serialises overlapping commits.
type Ledger struct {
	db      *sql.DB
	reserve string
}

func New(db *sql.DB, reserveID string) *Ledger {
	return &Ledger{db: db, reserve: reserveID}
}

// Migrate creates the accounts table if it does not exist.
func (l *Ledger) Migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create accounts table: %w", classify(err))
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, id string) (ledger.Account, error) {
	query := `SELECT username, balance, debt, version FROM accounts WHERE username = $1`
	var acct ledger.Account
	err := l.db.QueryRowContext(ctx, query, id).Scan(&acct.ID, &acct.Balance, &acct.Debt, &acct.Version)
	if err == sql.ErrNoRows {
		return ledger.Account{}, &ledger.NotFoundError{ID: id}
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to get account: %w", classify(err))
	}
	return acct, nil
}

func (l *Ledger) Create(ctx context.Context, id string) (ledger.Account, error) {
	query := `INSERT INTO accounts (username) VALUES ($1) ON CONFLICT (username) DO NOTHING`
	result, err := l.db.ExecContext(ctx, query, id)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to create account: %w", classify(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to check rows affected: %w", classify(err))
	}
	if rows == 0 {
		return ledger.Account{}, ledger.ErrAlreadyExists
	}
	return ledger.Account{ID: id}, nil
}

// Remove deletes a row no commit has touched and that carries no
// credentials.
func (l *Ledger) Remove(ctx context.Context, id string) error {
	query := `DELETE FROM accounts WHERE username = $1 AND version = 0 AND password_hash = ''`
	result, err := l.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to remove account: %w", classify(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", classify(err))
	}
	if rows == 0 {
		return fmt.Errorf("%w: account %q missing or already in use", ledger.ErrConflict, id)
	}
	return nil
}

func (l *Ledger) ApplyAtomic(ctx context.Context, mutations map[string]ledger.Mutation) (map[string]ledger.Account, error) {
	ids := ledger.LockOrder(ledger.IDs(mutations), l.reserve)

	// The transaction outlives cancellation of ctx: once the writes start
	// they are committed as a unit.
	commitCtx := context.WithoutCancel(ctx)
	tx, err := l.db.BeginTx(commitCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer tx.Rollback()

	// Every row is locked before any mutation runs, so a missing account is
	// reported as NotFound whatever the order of the ids.
	lockQuery := `SELECT balance, debt, version FROM accounts WHERE username = $1 FOR UPDATE`
	current := make([]ledger.Account, len(ids))
	for i, id := range ids {
		old := ledger.Account{ID: id}
		err := tx.QueryRowContext(ctx, lockQuery, id).Scan(&old.Balance, &old.Debt, &old.Version)
		if err == sql.ErrNoRows {
			return nil, &ledger.NotFoundError{ID: id}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to lock account %s: %w", id, classify(err))
		}
		current[i] = old
	}

	next := make([]ledger.Account, len(ids))
	for i, old := range current {
		acct, err := ledger.Apply(old, mutations[old.ID])
		if err != nil {
			return nil, err
		}
		next[i] = acct
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	updateQuery := `
		UPDATE accounts
		SET balance = $2, debt = $3, version = $4, updated_at = NOW()
		WHERE username = $1
	`
	out := make(map[string]ledger.Account, len(ids))
	for _, acct := range next {
		if _, err := tx.ExecContext(commitCtx, updateQuery, acct.ID, acct.Balance, acct.Debt, acct.Version); err != nil {
			return nil, fmt.Errorf("failed to update account %s: %w", acct.ID, classify(err))
		}
		out[acct.ID] = acct
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", classify(err))
	}
	return out, nil
}

func (l *Ledger) Snapshot(ctx context.Context) ([]ledger.Account, error) {
	query := `SELECT username, balance, debt, version FROM accounts ORDER BY username`
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", classify(err))
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		var acct ledger.Account
		if err := rows.Scan(&acct.ID, &acct.Balance, &acct.Debt, &acct.Version); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", classify(err))
	}
	return accounts, nil
}

// classify maps driver errors onto the ledger's retryable sentinels.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
		case "23514": // check_violation
			return fmt.Errorf("%w: %v", ledger.ErrInvariant, err)
		}
		if pqErr.Code.Class() == "08" || pqErr.Code.Class() == "57" {
			return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
		}
		return err
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	return err
}
