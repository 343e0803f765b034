package ratelimit_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/serroba/securegate/internal/ratelimit"
)

var errBackendDown = errors.New("backend down")

// failingCache fails every call.
type failingCache struct{}

func (failingCache) Get(_ context.Context, _ string) ([]byte, error) {
	return nil, errBackendDown
}

func (failingCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return errBackendDown
}

// rawCache stores values verbatim and records the last TTL written.
type rawCache struct {
	values  map[string][]byte
	lastTTL time.Duration
	setErr  error
}

func newRawCache() *rawCache {
	return &rawCache{values: make(map[string][]byte)}
}

func (c *rawCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := c.values[key]
	if !ok {
		return nil, ratelimit.ErrCacheMiss
	}

	return v, nil
}

func (c *rawCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}

	c.values[key] = value
	c.lastTTL = ttl

	return nil
}

// memoryTable is an in-memory ratelimit.WindowTable with injectable failures.
type memoryTable struct {
	mu        sync.Mutex
	rows      map[string]*ratelimit.WindowRow
	nextID    int64
	findErr   error
	insertErr error
	updateErr error
	inserts   int
	updates   int
}

func newMemoryTable() *memoryTable {
	return &memoryTable{rows: make(map[string]*ratelimit.WindowRow)}
}

func (m *memoryTable) FindByHash(_ context.Context, hash string) (*ratelimit.WindowRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}

	row, ok := m.rows[hash]
	if !ok {
		return nil, ratelimit.ErrRowNotFound
	}

	cp := *row

	return &cp, nil
}

func (m *memoryTable) Insert(_ context.Context, row *ratelimit.WindowRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insertErr != nil {
		return m.insertErr
	}

	m.nextID++
	m.inserts++
	row.ID = m.nextID
	cp := *row
	m.rows[row.KeyHash] = &cp

	return nil
}

func (m *memoryTable) UpdateByID(_ context.Context, id, attempts, expiresAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}

	for _, row := range m.rows {
		if row.ID == id {
			row.Attempts = attempts
			row.ExpiresAt = expiresAt
			m.updates++

			return nil
		}
	}

	return ratelimit.ErrRowNotFound
}

// atomicTable adds a single-call Increment to memoryTable.
type atomicTable struct {
	*memoryTable
	increments int
}

func (a *atomicTable) Increment(
	_ context.Context, hash string, now time.Time, window time.Duration,
) (*ratelimit.WindowRow, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.increments++

	row, ok := a.rows[hash]
	switch {
	case !ok:
		a.nextID++
		row = &ratelimit.WindowRow{ID: a.nextID, KeyHash: hash, Attempts: 1, ExpiresAt: now.Add(window).Unix()}
		a.rows[hash] = row
	case row.ExpiresAt <= now.Unix():
		row.Attempts = 1
		row.ExpiresAt = now.Add(window).Unix()
	default:
		row.Attempts++
	}

	cp := *row

	return &cp, nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
