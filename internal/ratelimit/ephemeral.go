package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const cacheKeyPrefix = "ratelimit:"

// cachedWindow is the serialized form of a WindowRecord in the cache.
type cachedWindow struct {
	Count     *int64 `json:"count"`
	ExpiresAt *int64 `json:"expiresAt"`
}

// EphemeralWindowStore keeps windows in a TTL cache.
type EphemeralWindowStore struct {
	cache Cache
}

// NewEphemeralWindowStore creates a window store on top of cache.
func NewEphemeralWindowStore(cache Cache) *EphemeralWindowStore {
	return &EphemeralWindowStore{cache: cache}
}

func (s *EphemeralWindowStore) Hit(ctx context.Context, key Key, now time.Time, window time.Duration) (WindowRecord, error) {
	cacheKey := cacheKeyPrefix + string(key)

	rec, err := s.read(ctx, cacheKey)
	if err != nil {
		return WindowRecord{}, &StorageError{Backend: StorageEphemeral, Op: "get", Err: err}
	}

	if rec == nil || !rec.Active(now) {
		rec = &WindowRecord{Count: 0, ExpiresAt: now.Add(window)}
	}

	rec.Count++

	ttl := max(time.Second, rec.ExpiresAt.Sub(now))

	payload, err := json.Marshal(cachedWindow{
		Count:     &rec.Count,
		ExpiresAt: ptr(rec.ExpiresAt.Unix()),
	})
	if err != nil {
		return WindowRecord{}, &StorageError{Backend: StorageEphemeral, Op: "encode", Err: err}
	}

	if err := s.cache.Set(ctx, cacheKey, payload, ttl); err != nil {
		return WindowRecord{}, &StorageError{Backend: StorageEphemeral, Op: "set", Err: err}
	}

	return *rec, nil
}

// read returns nil for a missing or malformed record.
func (s *EphemeralWindowStore) read(ctx context.Context, cacheKey string) (*WindowRecord, error) {
	raw, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}

		return nil, err
	}

	var cw cachedWindow
	if err := json.Unmarshal(raw, &cw); err != nil {
		return nil, nil
	}

	if cw.Count == nil || cw.ExpiresAt == nil || *cw.Count < 0 {
		return nil, nil
	}

	return &WindowRecord{
		Count:     *cw.Count,
		ExpiresAt: time.Unix(*cw.ExpiresAt, 0),
	}, nil
}

func ptr[T any](v T) *T {
	return &v
}
