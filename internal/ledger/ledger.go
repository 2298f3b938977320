// Package ledger defines the account ledger contract shared by every storage
// backend. ApplyAtomic is the only way to mutate an account: callers hand in
// pure functions from old state to new state and the backend commits all of
// them as one unit, or none of them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotFound      = errors.New("account not found")
	ErrAlreadyExists = errors.New("account already exists")

	// ErrConflict means a concurrent commit changed an involved account
	// between read and write. The whole operation may be retried.
	ErrConflict = errors.New("concurrent modification")

	// ErrUnavailable means the backing store could not be reached.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrInvariant is returned when a mutation produces a state the ledger
	// refuses to store (negative debt, changed id).
	ErrInvariant = errors.New("ledger invariant violated")
)

// NotFoundError names the missing account so callers can tell a missing
// payer from a missing recipient.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("account %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Account is the committed state of one ledger entry. Amounts are minor
// currency units.
type Account struct {
	ID      string `json:"id"`
	Balance int64  `json:"balance"`
	Debt    int64  `json:"debt"`
	Version int64  `json:"version"`
}

// Mutation computes the new state of an account from its freshest committed
// state. Returning an error aborts the whole commit.
type Mutation func(Account) (Account, error)

// Ledger is implemented by the memory, postgres and redis backends.
type Ledger interface {
	Get(ctx context.Context, id string) (Account, error)
	Create(ctx context.Context, id string) (Account, error)
	ApplyAtomic(ctx context.Context, mutations map[string]Mutation) (map[string]Account, error)
	Snapshot(ctx context.Context) ([]Account, error)

	// Remove deletes an account that no commit has touched yet (version 0).
	// It undoes a Create whose follow-up step failed. A committed-to account
	// is left in place and ErrConflict is returned.
	Remove(ctx context.Context, id string) error
}

// EnsureAccount creates id if it is missing and returns its current state.
func EnsureAccount(ctx context.Context, l Ledger, id string) (Account, error) {
	acct, err := l.Create(ctx, id)
	if errors.Is(err, ErrAlreadyExists) {
		return l.Get(ctx, id)
	}
	return acct, err
}

// LockOrder returns ids sorted lexicographically with last (typically the
// reserve account) moved to the end when present. Every backend that locks
// rows or mutexes acquires them in this order.
func LockOrder(ids []string, last string) []string {
	out := make([]string, 0, len(ids))
	hasLast := false
	for _, id := range ids {
		if id == last {
			hasLast = true
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	if hasLast {
		out = append(out, last)
	}
	return out
}

// Apply runs mutation against old and checks the result. The returned
// account carries old.Version+1.
func Apply(old Account, mutation Mutation) (Account, error) {
	next, err := mutation(old)
	if err != nil {
		return Account{}, err
	}
	if next.ID != old.ID {
		return Account{}, fmt.Errorf("%w: id changed from %q to %q", ErrInvariant, old.ID, next.ID)
	}
	if next.Debt < 0 {
		return Account{}, fmt.Errorf("%w: negative debt for %q", ErrInvariant, old.ID)
	}
	next.Version = old.Version + 1
	return next, nil
}

// IDs returns the keys of a mutation set.
func IDs(mutations map[string]Mutation) []string {
	ids := make([]string, 0, len(mutations))
	for id := range mutations {
		ids = append(ids, id)
	}
	return ids
}

// Total sums balances across a snapshot.
func Total(accounts []Account) int64 {
	var sum int64
	for _, a := range accounts {
		sum += a.Balance
	}
	return sum
}
