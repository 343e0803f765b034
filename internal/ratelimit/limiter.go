package ratelimit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Decision is the outcome of a single hit. It is never persisted.
type Decision struct {
	Allowed    bool  `json:"allowed"`
	Current    int64 `json:"current"`
	Limit      int64 `json:"limit"`
	RetryAfter int64 `json:"retryAfter"` // seconds

	// Backend is the store that produced the counters; empty when FailedOpen.
	Backend StorageMode `json:"backend,omitempty"`
	// FailedOpen is set when every backend failed and the hit was admitted blindly.
	FailedOpen bool `json:"failedOpen,omitempty"`
}

// Remaining returns how many attempts are left in the current window.
func (d Decision) Remaining() int64 {
	return max(0, d.Limit-d.Current)
}

// Limiter applies a fixed-window limit using an ephemeral store and, when
// configured, a persistent store in front of it.
type Limiter struct {
	cfg        Config
	ephemeral  WindowStore
	persistent WindowStore
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a limiter. persistent may be nil when the deployment has
// no database; the ephemeral store is always required.
func NewLimiter(cfg Config, ephemeral, persistent WindowStore, logger *zap.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:        cfg.Normalize(),
		ephemeral:  ephemeral,
		persistent: persistent,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// IsEnabled reports whether callers should invoke Hit at all.
func (l *Limiter) IsEnabled() bool {
	return l.cfg.Enabled
}

// Config returns the normalized policy.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Hit counts one attempt for id under scope and returns the decision.
// Storage failures never escape: a persistent failure falls back to the
// ephemeral store, and if that fails too the hit is admitted.
func (l *Limiter) Hit(ctx context.Context, id Identity, scope Scope) Decision {
	now := l.now().Truncate(time.Second)
	key := BuildKey(id, scope, l.cfg.KeyMode)
	window := l.cfg.Window()

	if l.usePersistent() {
		rec, err := l.persistent.Hit(ctx, key, now, window)
		if err == nil {
			return l.decide(rec, now, StoragePersistent)
		}

		l.logger.Warn("persistent rate limit store failed, falling back to ephemeral",
			zap.String("scope", string(scope)),
			zap.String("op", storageOp(err)),
			zap.Error(err),
		)
	}

	rec, err := l.ephemeral.Hit(ctx, key, now, window)
	if err != nil {
		l.logger.Error("ephemeral rate limit store failed, admitting request",
			zap.String("scope", string(scope)),
			zap.String("op", storageOp(err)),
			zap.Error(err),
		)

		return Decision{Allowed: true, Limit: l.cfg.Limit, FailedOpen: true}
	}

	return l.decide(rec, now, StorageEphemeral)
}

func (l *Limiter) usePersistent() bool {
	return l.cfg.UsePersistent() && l.persistent != nil
}

func (l *Limiter) decide(rec WindowRecord, now time.Time, backend StorageMode) Decision {
	return Decision{
		Allowed:    rec.Count <= l.cfg.Limit,
		Current:    rec.Count,
		Limit:      l.cfg.Limit,
		RetryAfter: max(0, rec.ExpiresAt.Unix()-now.Unix()),
		Backend:    backend,
	}
}

func storageOp(err error) string {
	var serr *StorageError
	if errors.As(err, &serr) {
		return serr.Op
	}

	return "unknown"
}
