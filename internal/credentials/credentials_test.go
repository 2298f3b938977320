package credentials

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/eaglebank/bank-service/shared/utils"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	ok, err := s.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Verify(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.False(t, ok, "unknown user must not verify")

	require.NoError(t, s.Register(ctx, "alice", "pw"))
	assert.ErrorIs(t, s.Register(ctx, "alice", "other"), ErrAlreadyRegistered)

	ok, err = s.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Verify(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Verify(ctx, "alice", "other")
	require.NoError(t, err)
	assert.False(t, ok, "second registration must not overwrite the secret")
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(bcrypt.MinCost))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	exerciseStore(t, NewRedisStore(client, bcrypt.MinCost))
}

func TestPostgresStoreVerify(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	hash, err := utils.HashPassword("pw", bcrypt.MinCost)
	require.NoError(t, err)

	selectSQL := regexp.QuoteMeta(`SELECT password_hash FROM accounts WHERE username = $1`)
	mock.ExpectQuery(selectSQL).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(hash))
	mock.ExpectQuery(selectSQL).WithArgs("BANK").
		WillReturnRows(sqlmock.NewRows([]string{"password_hash"}).AddRow(""))
	mock.ExpectQuery(selectSQL).WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	s := NewPostgresStore(db, bcrypt.MinCost)
	ctx := context.Background()

	ok, err := s.Verify(ctx, "alice", "pw")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "BANK")
	require.NoError(t, err)
	assert.False(t, ok, "reserve row has no credentials")

	ok, err = s.Exists(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRegister(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	insertSQL := regexp.QuoteMeta(`INSERT INTO accounts (username, password_hash)`)
	mock.ExpectExec(insertSQL).WithArgs("alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertSQL).WithArgs("alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := NewPostgresStore(db, bcrypt.MinCost)
	require.NoError(t, s.Register(context.Background(), "alice", "pw"))
	assert.ErrorIs(t, s.Register(context.Background(), "alice", "pw"), ErrAlreadyRegistered)
	require.NoError(t, mock.ExpectationsWereMet())
}
