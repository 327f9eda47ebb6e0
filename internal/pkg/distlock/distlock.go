// Package distlock provides a cross-process mutex over PostgreSQL advisory
// locks. The collector uses it to keep at most one retention sweep running
// against the store, whichever process triggers it.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
)

// AdvisoryLock is a non-blocking session-scoped lock. The lock id is
// derived deterministically from a key string, so every process naming the
// same key contends for the same lock. Advisory locks release automatically
// when the session drops, so a crashed holder never wedges the lock.
//
// Advisory locks belong to a database session, not to the pool, so a
// successful acquire pins a dedicated connection until Release. Unlocking
// through the pool would land on an arbitrary connection and silently
// no-op while the pinned session kept the lock forever.
type AdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// New creates an advisory lock for the given key.
func New(db *sql.DB, key string) *AdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &AdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// TryAcquire attempts the lock without blocking. False means another
// session holds it. On success the lock holds its connection open until
// Release.
func (l *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks on the session that acquired and returns the connection
// to the pool. A lock that was never acquired is a no-op.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	closeErr := l.conn.Close()
	l.conn = nil
	if err != nil {
		return err
	}
	return closeErr
}
