package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockOrderPutsReserveLast(t *testing.T) {
	got := LockOrder([]string{"BANK", "carol", "alice", "bob"}, "BANK")
	assert.Equal(t, []string{"alice", "bob", "carol", "BANK"}, got)
}

func TestLockOrderWithoutReserve(t *testing.T) {
	got := LockOrder([]string{"zed", "amy"}, "BANK")
	assert.Equal(t, []string{"amy", "zed"}, got)
}

func TestApplyBumpsVersion(t *testing.T) {
	next, err := Apply(Account{ID: "alice", Balance: 10, Version: 3}, func(a Account) (Account, error) {
		a.Balance += 5
		return a, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(15), next.Balance)
	assert.Equal(t, int64(4), next.Version)
}

func TestApplyRejectsNegativeDebt(t *testing.T) {
	_, err := Apply(Account{ID: "alice"}, func(a Account) (Account, error) {
		a.Debt = -1
		return a, nil
	})
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestApplyRejectsIDChange(t *testing.T) {
	_, err := Apply(Account{ID: "alice"}, func(a Account) (Account, error) {
		a.ID = "mallory"
		return a, nil
	})
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestApplyPassesMutationError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Apply(Account{ID: "alice"}, func(a Account) (Account, error) {
		return a, boom
	})
	assert.Same(t, boom, err)
}

func TestNotFoundErrorMatchesSentinel(t *testing.T) {
	var err error = &NotFoundError{ID: "bob"}
	assert.True(t, errors.Is(err, ErrNotFound))

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "bob", nf.ID)
}

func TestTotal(t *testing.T) {
	assert.Equal(t, int64(7), Total([]Account{{Balance: 10}, {Balance: -3}}))
}
