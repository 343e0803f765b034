package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCacheMiss is returned by a Cache when the key has no value.
	ErrCacheMiss = errors.New("cache miss")
	// ErrRowNotFound is returned by a WindowTable when no row matches the hash.
	ErrRowNotFound = errors.New("rate limit row not found")
)

// WindowRecord is the state of the current fixed window for one key.
type WindowRecord struct {
	Count     int64
	ExpiresAt time.Time
}

// Active reports whether the window is still open at now.
func (r WindowRecord) Active(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

// WindowStore counts one attempt against key and returns the resulting window.
// Implementations read, modify and write without atomicity guarantees unless
// documented otherwise.
type WindowStore interface {
	Hit(ctx context.Context, key Key, now time.Time, window time.Duration) (WindowRecord, error)
}

// Cache is a TTL-capable byte store used by EphemeralWindowStore.
type Cache interface {
	// Get returns ErrCacheMiss when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// WindowRow is one row of the persistent rate limit table.
type WindowRow struct {
	ID        int64
	KeyHash   string
	Attempts  int64
	ExpiresAt int64 // unix seconds
}

// WindowTable is the durable storage used by PersistentWindowStore.
type WindowTable interface {
	// FindByHash returns ErrRowNotFound when no row exists for hash.
	FindByHash(ctx context.Context, hash string) (*WindowRow, error)
	Insert(ctx context.Context, row *WindowRow) error
	UpdateByID(ctx context.Context, id, attempts, expiresAt int64) error
}

// WindowIncrementer is implemented by tables that can count a hit in a single
// atomic statement.
type WindowIncrementer interface {
	Increment(ctx context.Context, hash string, now time.Time, window time.Duration) (*WindowRow, error)
}

// StorageError is the typed failure returned by a WindowStore.
type StorageError struct {
	Backend StorageMode
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s store: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
