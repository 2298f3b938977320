package credentials

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eaglebank/bank-service/shared/utils"
)

// PostgresStore keeps the hash in the password_hash column of the accounts
// table owned by the postgres ledger. An empty hash means "no credentials",
// which is how the reserve account is stored.
type PostgresStore struct {
	db   *sql.DB
	cost int
}

func NewPostgresStore(db *sql.DB, cost int) *PostgresStore {
	return &PostgresStore{db: db, cost: cost}
}

func (s *PostgresStore) Exists(ctx context.Context, username string) (bool, error) {
	_, ok, err := s.hash(ctx, username)
	return ok, err
}

func (s *PostgresStore) Verify(ctx context.Context, username, secret string) (bool, error) {
	hash, ok, err := s.hash(ctx, username)
	if err != nil || !ok {
		return false, err
	}
	return utils.CheckPassword(secret, hash), nil
}

func (s *PostgresStore) hash(ctx context.Context, username string) (string, bool, error) {
	query := `SELECT password_hash FROM accounts WHERE username = $1`
	var hash string
	err := s.db.QueryRowContext(ctx, query, username).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get credentials: %w", err)
	}
	return hash, hash != "", nil
}

// Register sets the hash on an existing row that has none, or inserts a new
// row. A row that already carries a hash is left alone.
func (s *PostgresStore) Register(ctx context.Context, username, secret string) error {
	hash, err := utils.HashPassword(secret, s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	query := `
		INSERT INTO accounts (username, password_hash)
		VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE
		SET password_hash = EXCLUDED.password_hash, updated_at = NOW()
		WHERE accounts.password_hash = ''
	`
	result, err := s.db.ExecContext(ctx, query, username, hash)
	if err != nil {
		return fmt.Errorf("failed to register credentials: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrAlreadyRegistered
	}
	return nil
}
