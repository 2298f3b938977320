// Package credentials authenticates username/secret pairs. Secrets are
// stored as bcrypt hashes; every backend hashes before taking any lock and
// compares outside the ledger's commit section.
package credentials

import (
	"context"
	"errors"
)

var ErrAlreadyRegistered = errors.New("credentials already registered")

// Store is the credential capability the processor depends on.
type Store interface {
	Exists(ctx context.Context, username string) (bool, error)
	Verify(ctx context.Context, username, secret string) (bool, error)
	Register(ctx context.Context, username, secret string) error
}
