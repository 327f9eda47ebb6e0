package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitepulse/collector/internal/config"
)

func setupSweeper(t *testing.T, months int) (*Sweeper, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewSweeper(db, months)
	s.batchSize = 100 // keep test fixtures small
	return s, mock
}

func expectLockAcquired(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
}

func expectLockReleased(mock sqlmock.Sqlmock) {
	mock.ExpectExec("pg_advisory_unlock").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestSweepDeletesUntilPartialBatch(t *testing.T) {
	s, mock := setupSweeper(t, 24)

	expectLockAcquired(mock)
	mock.ExpectExec("DELETE FROM pageviews").
		WillReturnResult(sqlmock.NewResult(0, 100))
	mock.ExpectExec("DELETE FROM pageviews").
		WillReturnResult(sqlmock.NewResult(0, 100))
	mock.ExpectExec("DELETE FROM pageviews").
		WillReturnResult(sqlmock.NewResult(0, 37))
	expectLockReleased(mock)

	res := s.Sweep(context.Background())

	assert.Equal(t, int64(237), res.TotalDeleted)
	assert.Equal(t, 3, res.BatchesProcessed)
	assert.Empty(t, res.Errors)
	assert.False(t, res.Aborted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepUsesConfiguredCutoff(t *testing.T) {
	s, mock := setupSweeper(t, 6)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	expectLockAcquired(mock)
	mock.ExpectExec("DELETE FROM pageviews").
		WithArgs(now.AddDate(0, -6, 0), 100, 0).
		WillReturnResult(sqlmock.NewResult(0, 0))
	expectLockReleased(mock)

	res := s.Sweep(context.Background())
	assert.Equal(t, int64(0), res.TotalDeleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepConnectionErrorAbortsPreservingProgress(t *testing.T) {
	s, mock := setupSweeper(t, 24)

	expectLockAcquired(mock)
	mock.ExpectExec("DELETE FROM pageviews").
		WillReturnResult(sqlmock.NewResult(0, 100))
	mock.ExpectExec("DELETE FROM pageviews").
		WillReturnError(errors.New("dial tcp 10.0.0.5:5432: connection refused"))
	expectLockReleased(mock)

	res := s.Sweep(context.Background())

	assert.Equal(t, int64(100), res.TotalDeleted, "batch 1 deletions preserved")
	assert.Equal(t, 2, res.BatchesProcessed)
	assert.True(t, res.Aborted)
	require.Len(t, res.Errors, 1)
	assert.NoError(t, mock.ExpectationsWereMet(), "batch 3 must never be attempted")
}

func TestSweepNonFatalErrorAdvancesToNextBatch(t *testing.T) {
	s, mock := setupSweeper(t, 24)

	expectLockAcquired(mock)
	mock.ExpectExec("DELETE FROM pageviews").
		WithArgs(sqlmock.AnyArg(), 100, 0).
		WillReturnError(errors.New(`pq: deadlock detected`))
	mock.ExpectExec("DELETE FROM pageviews").
		WithArgs(sqlmock.AnyArg(), 100, 100).
		WillReturnResult(sqlmock.NewResult(0, 20))
	expectLockReleased(mock)

	res := s.Sweep(context.Background())

	assert.Equal(t, int64(20), res.TotalDeleted)
	assert.Equal(t, 2, res.BatchesProcessed)
	assert.False(t, res.Aborted)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "deadlock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepUnreadableRowCountAdvancesToNextBatch(t *testing.T) {
	s, mock := setupSweeper(t, 24)

	expectLockAcquired(mock)
	mock.ExpectExec("DELETE FROM pageviews").
		WithArgs(sqlmock.AnyArg(), 100, 0).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("no RowsAffected available")))
	mock.ExpectExec("DELETE FROM pageviews").
		WithArgs(sqlmock.AnyArg(), 100, 100).
		WillReturnResult(sqlmock.NewResult(0, 20))
	expectLockReleased(mock)

	res := s.Sweep(context.Background())

	assert.Equal(t, int64(20), res.TotalDeleted)
	assert.Equal(t, 2, res.BatchesProcessed)
	assert.False(t, res.Aborted)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "RowsAffected")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepSkipsWhenLockHeldElsewhere(t *testing.T) {
	s, mock := setupSweeper(t, 24)

	mock.ExpectQuery("pg_try_advisory_lock").
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	res := s.Sweep(context.Background())

	assert.True(t, res.Skipped)
	assert.False(t, res.Aborted)
	assert.Equal(t, int64(0), res.TotalDeleted)
	assert.Equal(t, 0, res.BatchesProcessed)
	assert.NoError(t, mock.ExpectationsWereMet(), "no DELETE may run without the lock")
}

func TestSweepAbortsWhenLockUnavailable(t *testing.T) {
	s, mock := setupSweeper(t, 24)

	mock.ExpectQuery("pg_try_advisory_lock").
		WillReturnError(errors.New("dial tcp: connection refused"))

	res := s.Sweep(context.Background())

	assert.True(t, res.Aborted)
	require.Len(t, res.Errors, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSweeperInvalidRetentionFallsBack(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, months := range []int{0, -5} {
		s := NewSweeper(db, months)
		assert.Equal(t, config.DefaultRetentionMonths, s.retentionMonths)
	}
}

func TestIsConnectionError(t *testing.T) {
	fatal := []string{
		"dial tcp: connection refused",
		"lookup db.internal: no such host",
		"read tcp 10.0.0.1:5432: i/o timed out",
		"driver: connection closed",
		"read tcp 10.0.0.1:5432: connection reset by peer",
		"write: broken pipe",
	}
	for _, msg := range fatal {
		assert.True(t, isConnectionError(errors.New(msg)), msg)
	}

	benign := []string{
		"pq: deadlock detected",
		"pq: syntax error at or near",
		"pq: permission denied for table pageviews",
	}
	for _, msg := range benign {
		assert.False(t, isConnectionError(errors.New(msg)), msg)
	}
}
