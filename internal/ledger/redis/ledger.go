// Package redis stores the ledger in Redis hashes and commits with
// optimistic concurrency: every involved key is WATCHed, the new states are
// computed from what was read, and MULTI/EXEC succeeds only if no watched key
// changed in between. A lost race is reported as ledger.ErrConflict and the
// caller redoes the whole operation.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/eaglebank/bank-service/internal/ledger"
	goredis "github.com/redis/go-redis/v9"
)

const (
	accountKeyPrefix = "bank:account:"
	accountIndexKey  = "bank:accounts"
)

type Ledger struct {
	client  *goredis.Client
	reserve string
}

func New(client *goredis.Client, reserveID string) *Ledger {
	return &Ledger{client: client, reserve: reserveID}
}

func accountKey(id string) string {
	return accountKeyPrefix + id
}

func (l *Ledger) Get(ctx context.Context, id string) (ledger.Account, error) {
	fields, err := l.client.HGetAll(ctx, accountKey(id)).Result()
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to get account: %w", classify(err))
	}
	return decode(id, fields)
}

func (l *Ledger) Create(ctx context.Context, id string) (ledger.Account, error) {
	key := accountKey(id)
	err := l.client.Watch(ctx, func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ledger.ErrAlreadyExists
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.HSet(ctx, key, "balance", 0, "debt", 0, "version", 0)
			p.SAdd(ctx, accountIndexKey, id)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, ledger.ErrAlreadyExists) {
		return ledger.Account{}, err
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to create account: %w", classify(err))
	}
	return ledger.Account{ID: id}, nil
}

func (l *Ledger) Remove(ctx context.Context, id string) error {
	key := accountKey(id)
	err := l.client.Watch(ctx, func(tx *goredis.Tx) error {
		version, err := tx.HGet(ctx, key, "version").Result()
		if err == goredis.Nil {
			return &ledger.NotFoundError{ID: id}
		}
		if err != nil {
			return err
		}
		if version != "0" {
			return fmt.Errorf("%w: account %q has committed state", ledger.ErrConflict, id)
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Del(ctx, key)
			p.SRem(ctx, accountIndexKey, id)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ledger.ErrConflict):
		return err
	case errors.Is(err, goredis.TxFailedErr):
		return fmt.Errorf("%w: account %q changed during removal", ledger.ErrConflict, id)
	default:
		return fmt.Errorf("failed to remove account: %w", classify(err))
	}
}

func (l *Ledger) ApplyAtomic(ctx context.Context, mutations map[string]ledger.Mutation) (map[string]ledger.Account, error) {
	ids := ledger.LockOrder(ledger.IDs(mutations), l.reserve)
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = accountKey(id)
	}

	var (
		applyErr error
		out      map[string]ledger.Account
	)
	err := l.client.Watch(ctx, func(tx *goredis.Tx) error {
		// Read every account before running any mutation so a missing one
		// is reported as NotFound regardless of id order.
		current := make([]ledger.Account, len(ids))
		for i, id := range ids {
			fields, err := tx.HGetAll(ctx, keys[i]).Result()
			if err != nil {
				return err
			}
			old, err := decode(id, fields)
			if err != nil {
				applyErr = err
				return err
			}
			current[i] = old
		}

		next := make([]ledger.Account, len(ids))
		for i, old := range current {
			acct, err := ledger.Apply(old, mutations[old.ID])
			if err != nil {
				applyErr = err
				return err
			}
			next[i] = acct
		}

		if err := ctx.Err(); err != nil {
			applyErr = err
			return err
		}

		// EXEC is a single round trip; it either reaches the server or not.
		execCtx := context.WithoutCancel(ctx)
		_, err := tx.TxPipelined(execCtx, func(p goredis.Pipeliner) error {
			for i, acct := range next {
				p.HSet(execCtx, keys[i], "balance", acct.Balance, "debt", acct.Debt, "version", acct.Version)
			}
			return nil
		})
		if err != nil {
			return err
		}
		out = make(map[string]ledger.Account, len(next))
		for _, acct := range next {
			out[acct.ID] = acct
		}
		return nil
	}, keys...)

	if applyErr != nil {
		return nil, applyErr
	}
	if errors.Is(err, goredis.TxFailedErr) {
		return nil, fmt.Errorf("%w: watched account changed", ledger.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply mutations: %w", classify(err))
	}
	return out, nil
}

// Snapshot reads every indexed account inside one MULTI/EXEC so the result
// reflects a single point in time.
func (l *Ledger) Snapshot(ctx context.Context) ([]ledger.Account, error) {
	ids, err := l.client.SMembers(ctx, accountIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", classify(err))
	}
	ids = ledger.LockOrder(ids, l.reserve)

	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	_, err = l.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, accountKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts: %w", classify(err))
	}

	accounts := make([]ledger.Account, 0, len(ids))
	for i, id := range ids {
		acct, err := decode(id, cmds[i].Val())
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

func decode(id string, fields map[string]string) (ledger.Account, error) {
	if len(fields) == 0 {
		return ledger.Account{}, &ledger.NotFoundError{ID: id}
	}
	acct := ledger.Account{ID: id}
	var err error
	if acct.Balance, err = strconv.ParseInt(fields["balance"], 10, 64); err != nil {
		return ledger.Account{}, fmt.Errorf("corrupt balance for %s: %w", id, err)
	}
	if acct.Debt, err = strconv.ParseInt(fields["debt"], 10, 64); err != nil {
		return ledger.Account{}, fmt.Errorf("corrupt debt for %s: %w", id, err)
	}
	if acct.Version, err = strconv.ParseInt(fields["version"], 10, 64); err != nil {
		return ledger.Account{}, fmt.Errorf("corrupt version for %s: %w", id, err)
	}
	return acct, nil
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
}
