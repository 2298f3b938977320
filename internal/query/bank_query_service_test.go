package query

import (
	"context"
	"testing"

	"github.com/eaglebank/bank-service/internal/command"
	"github.com/eaglebank/bank-service/internal/credentials"
	"github.com/eaglebank/bank-service/internal/ledger"
	"github.com/eaglebank/bank-service/internal/ledger/memory"
	"github.com/eaglebank/bank-service/internal/repository"
	"github.com/eaglebank/bank-service/shared/cqrs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T) (*BankQueryService, *memory.Ledger) {
	t.Helper()
	ctx := context.Background()
	l := memory.New("BANK")
	for _, id := range []string{"BANK", "alice"} {
		_, err := l.Create(ctx, id)
		require.NoError(t, err)
	}
	creds := credentials.NewMemoryStore(bcrypt.MinCost)
	require.NoError(t, creds.Register(ctx, "alice", "pw"))

	_, err := l.ApplyAtomic(ctx, map[string]ledger.Mutation{
		"alice": func(a ledger.Account) (ledger.Account, error) {
			a.Balance, a.Debt = 53, 5
			return a, nil
		},
		"BANK": func(a ledger.Account) (ledger.Account, error) {
			a.Balance = 2
			return a, nil
		},
	})
	require.NoError(t, err)

	views := repository.NewAccountViewRepository(l, nil, "BANK")
	return NewBankQueryService(l, creds, views, "BANK"), l
}

func TestBalanceCheck(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		query    cqrs.BalanceCheckQuery
		want     error
		wantBal  int64
		wantDebt int64
	}{
		{name: "owner", query: cqrs.BalanceCheckQuery{Username: "alice", Secret: "pw"}, wantBal: 53, wantDebt: 5},
		{name: "wrong secret", query: cqrs.BalanceCheckQuery{Username: "alice", Secret: "x"}, want: command.ErrBadCredentials},
		{name: "unknown", query: cqrs.BalanceCheckQuery{Username: "bob", Secret: "pw"}, want: command.ErrUnknownUser},
		{name: "reserve", query: cqrs.BalanceCheckQuery{Username: "BANK"}, want: command.ErrUnknownUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bal, err := svc.BalanceCheck(ctx, tt.query)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBal, bal.Balance)
			assert.Equal(t, tt.wantDebt, bal.Debt)
		})
	}
}

func TestBalanceCheckIsIdempotent(t *testing.T) {
	svc, l := newService(t)
	ctx := context.Background()

	first, err := svc.BalanceCheck(ctx, cqrs.BalanceCheckQuery{Username: "alice", Secret: "pw"})
	require.NoError(t, err)
	second, err := svc.BalanceCheck(ctx, cqrs.BalanceCheckQuery{Username: "alice", Secret: "pw"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	acct, err := l.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), acct.Version)
}

func TestAccountViews(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	reserve, err := svc.Reserve(ctx)
	require.NoError(t, err)
	assert.True(t, reserve.Reserve)
	assert.Equal(t, int64(2), reserve.Balance)

	views, err := svc.ListAccountViews(ctx, cqrs.ListAccountViewsQuery{})
	require.NoError(t, err)
	assert.Len(t, views, 2)

	_, err = svc.GetAccountView(ctx, cqrs.GetAccountViewQuery{Username: "ghost"})
	assert.ErrorIs(t, err, command.ErrUnknownUser)
}
