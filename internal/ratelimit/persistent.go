package ratelimit

import (
	"context"
	"errors"
	"time"
)

// PersistentWindowStore keeps windows in a database table keyed by the key hash.
type PersistentWindowStore struct {
	table  WindowTable
	atomic bool
}

// PersistentOption configures a PersistentWindowStore.
type PersistentOption func(*PersistentWindowStore)

// WithAtomicIncrement uses the table's single-statement increment when it has one.
func WithAtomicIncrement(enabled bool) PersistentOption {
	return func(s *PersistentWindowStore) { s.atomic = enabled }
}

// NewPersistentWindowStore creates a window store on top of table.
func NewPersistentWindowStore(table WindowTable, opts ...PersistentOption) *PersistentWindowStore {
	s := &PersistentWindowStore{table: table}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *PersistentWindowStore) Hit(ctx context.Context, key Key, now time.Time, window time.Duration) (WindowRecord, error) {
	if inc, ok := s.table.(WindowIncrementer); ok && s.atomic {
		row, err := inc.Increment(ctx, string(key), now, window)
		if err != nil {
			return WindowRecord{}, &StorageError{Backend: StoragePersistent, Op: "increment", Err: err}
		}

		return row.record(), nil
	}

	row, err := s.table.FindByHash(ctx, string(key))
	if err != nil && !errors.Is(err, ErrRowNotFound) {
		return WindowRecord{}, &StorageError{Backend: StoragePersistent, Op: "find", Err: err}
	}

	fresh := now.Add(window).Unix()

	if row == nil {
		row = &WindowRow{KeyHash: string(key), Attempts: 1, ExpiresAt: fresh}
		if err := s.table.Insert(ctx, row); err != nil {
			return WindowRecord{}, &StorageError{Backend: StoragePersistent, Op: "insert", Err: err}
		}

		return row.record(), nil
	}

	if row.ExpiresAt <= now.Unix() {
		row.Attempts = 1
		row.ExpiresAt = fresh
	} else {
		row.Attempts++
	}

	// A row without an id cannot be addressed; write a new one instead.
	if row.ID <= 0 {
		row.KeyHash = string(key)
		if err := s.table.Insert(ctx, row); err != nil {
			return WindowRecord{}, &StorageError{Backend: StoragePersistent, Op: "insert", Err: err}
		}

		return row.record(), nil
	}

	if err := s.table.UpdateByID(ctx, row.ID, row.Attempts, row.ExpiresAt); err != nil {
		return WindowRecord{}, &StorageError{Backend: StoragePersistent, Op: "update", Err: err}
	}

	return row.record(), nil
}

func (r *WindowRow) record() WindowRecord {
	return WindowRecord{
		Count:     r.Attempts,
		ExpiresAt: time.Unix(r.ExpiresAt, 0),
	}
}
