// Package memory is an in-process ledger. Each account carries its own
// mutex; ApplyAtomic acquires the involved mutexes in ledger.LockOrder with
// the reserve account last, so two commits that share accounts are
// serialised and commits on disjoint accounts run in parallel.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/eaglebank/bank-service/internal/ledger"
)

type entry struct {
	mu      sync.Mutex
	acct    ledger.Account
	removed bool
}

type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*entry
	reserve  string
}

// New returns an empty ledger. reserveID is locked after every other
// account in multi-account commits.
func New(reserveID string) *Ledger {
	return &Ledger{
		accounts: make(map[string]*entry),
		reserve:  reserveID,
	}
}

func (l *Ledger) lookup(id string) (*entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.accounts[id]
	return e, ok
}

func (l *Ledger) Get(ctx context.Context, id string) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}
	e, ok := l.lookup(id)
	if !ok {
		return ledger.Account{}, &ledger.NotFoundError{ID: id}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return ledger.Account{}, &ledger.NotFoundError{ID: id}
	}
	return e.acct, nil
}

func (l *Ledger) Create(ctx context.Context, id string) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[id]; ok {
		return ledger.Account{}, ledger.ErrAlreadyExists
	}
	acct := ledger.Account{ID: id}
	l.accounts[id] = &entry{acct: acct}
	return acct, nil
}

func (l *Ledger) ApplyAtomic(ctx context.Context, mutations map[string]ledger.Mutation) (map[string]ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := ledger.LockOrder(ledger.IDs(mutations), l.reserve)

	entries := make([]*entry, len(ids))
	l.mu.RLock()
	for i, id := range ids {
		e, ok := l.accounts[id]
		if !ok {
			l.mu.RUnlock()
			return nil, &ledger.NotFoundError{ID: id}
		}
		entries[i] = e
	}
	l.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
	}
	defer func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}
	}()

	// An entry looked up before a concurrent Remove must not be written.
	for i, e := range entries {
		if e.removed {
			return nil, &ledger.NotFoundError{ID: ids[i]}
		}
	}

	// Last point at which cancellation is honoured.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next := make([]ledger.Account, len(entries))
	for i, e := range entries {
		acct, err := ledger.Apply(e.acct, mutations[ids[i]])
		if err != nil {
			return nil, err
		}
		next[i] = acct
	}

	out := make(map[string]ledger.Account, len(entries))
	for i, e := range entries {
		e.acct = next[i]
		out[ids[i]] = next[i]
	}
	return out, nil
}

func (l *Ledger) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.accounts[id]
	if !ok {
		return &ledger.NotFoundError{ID: id}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.acct.Version != 0 {
		return fmt.Errorf("%w: account %q has committed state", ledger.ErrConflict, id)
	}
	e.removed = true
	delete(l.accounts, id)
	return nil
}

// Snapshot returns a consistent copy of every account. All account mutexes
// are held at once while copying.
func (l *Ledger) Snapshot(ctx context.Context) ([]ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	ids := make([]string, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	ids = ledger.LockOrder(ids, l.reserve)
	entries := make([]*entry, len(ids))
	for i, id := range ids {
		entries[i] = l.accounts[id]
	}
	l.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
	}
	out := make([]ledger.Account, 0, len(entries))
	for _, e := range entries {
		if !e.removed {
			out = append(out, e.acct)
		}
	}
	for i := len(entries) - 1; i >= 0; i-- {
		entries[i].mu.Unlock()
	}
	return out, nil
}
