// Package distlock provides non-blocking mutual exclusion for campaign
// sends. The backend depends on the deployment: Redis when the API server
// and scheduler worker run as separate processes, PostgreSQL advisory locks
// when only the database is shared, and an in-process registry for the
// single-process in-memory mode.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is the interface for a send lock. Implementations must be safe for
// use from a single goroutine; concurrent use across goroutines requires
// separate lock instances.
type Lock interface {
	// Acquire tries to acquire the lock without blocking. Returns true if
	// successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// New creates a lock using the best available backend: Redis if a client is
// provided, otherwise PostgreSQL advisory locks if a db is provided,
// otherwise the in-process registry.
func New(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) Lock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	if db != nil {
		return NewPGAdvisoryLock(db, key)
	}
	return NewLocalLock(key)
}

// =============================================================================
// PostgreSQL Advisory Lock
// =============================================================================
// Uses pg_try_advisory_lock / pg_advisory_unlock, which are session-scoped.
// The lock is automatically released if the DB connection drops.

// PGAdvisoryLock implements Lock using PostgreSQL advisory locks.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire tries to acquire the advisory lock. Non-blocking.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

// Release releases the advisory lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}

// =============================================================================
// In-process lock
// =============================================================================
// For single-process deployments backed by the in-memory store. Equivalent
// to the single reentrancy flag, but keyed per campaign.

var localLocks sync.Map // key -> struct{}

// LocalLock implements Lock with a process-wide keyed registry.
type LocalLock struct {
	key  string
	held bool
}

// NewLocalLock creates an in-process lock for the given key.
func NewLocalLock(key string) *LocalLock {
	return &LocalLock{key: key}
}

// Acquire takes the key if no other LocalLock in this process holds it.
func (l *LocalLock) Acquire(context.Context) (bool, error) {
	_, loaded := localLocks.LoadOrStore(l.key, struct{}{})
	l.held = !loaded
	return l.held, nil
}

// Release frees the key if this instance acquired it.
func (l *LocalLock) Release(context.Context) error {
	if l.held {
		localLocks.Delete(l.key)
		l.held = false
	}
	return nil
}
