package distlock

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLock(t *testing.T) (*AdvisoryLock, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, "retention_sweep"), mock
}

func TestAcquirePinsConnectionUntilRelease(t *testing.T) {
	l, mock := setupLock(t)

	mock.ExpectQuery("pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("pg_advisory_unlock").
		WillReturnResult(sqlmock.NewResult(0, 0))

	acquired, err := l.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, acquired)
	// The session holding the lock stays pinned; the unlock must run on it.
	require.NotNil(t, l.conn)

	require.NoError(t, l.Release(context.Background()))
	assert.Nil(t, l.conn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailedAcquireDoesNotPinOrUnlock(t *testing.T) {
	l, mock := setupLock(t)

	mock.ExpectQuery("pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	acquired, err := l.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.Nil(t, l.conn)

	// Releasing a lock we never held must not issue an unlock for the
	// session that actually holds it.
	require.NoError(t, l.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireErrorClosesConnection(t *testing.T) {
	l, mock := setupLock(t)

	mock.ExpectQuery("pg_try_advisory_lock").
		WillReturnError(errors.New("dial tcp: connection refused"))

	acquired, err := l.TryAcquire(context.Background())
	assert.Error(t, err)
	assert.False(t, acquired)
	assert.Nil(t, l.conn)

	require.NoError(t, l.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSameKeyDerivesSameLockID(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	a := New(db, "retention_sweep")
	b := New(db, "retention_sweep")
	c := New(db, "other")
	assert.Equal(t, a.lockID, b.lockID)
	assert.NotEqual(t, a.lockID, c.lockID)
}
