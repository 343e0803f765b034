package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// StorageMode selects the backend that holds window counters.
type StorageMode string

const (
	// StorageEphemeral keeps counters in a TTL cache (Redis or process memory).
	StorageEphemeral StorageMode = "ephemeral"
	// StoragePersistent keeps counters in a database table.
	StoragePersistent StorageMode = "persistent"
)

// KeyMode selects how rate limit buckets are partitioned.
type KeyMode string

const (
	// KeyModeIdentity buckets by client address only.
	KeyModeIdentity KeyMode = "identity"
	// KeyModeScoped buckets by scope, client address, method and path.
	KeyModeScoped KeyMode = "scoped"
)

// Configuration keys read by LoadConfig.
const (
	EnvEnabled     = "RATE_LIMIT_ENABLED"
	EnvMaxAttempts = "RATE_LIMIT_MAX_ATTEMPTS"
	EnvWindow      = "RATE_LIMIT_WINDOW"
	EnvStorage     = "RATE_LIMIT_STORAGE"
	EnvKeyMode     = "RATE_LIMIT_KEY_MODE"
	EnvTable       = "RATE_LIMIT_TABLE"
	EnvAtomic      = "RATE_LIMIT_ATOMIC"
	EnvDatabase    = "DATABASE"
)

// Defaults applied when a key is missing or cannot be parsed.
const (
	DefaultLimit         = 120
	DefaultWindowSeconds = 60
	DefaultTableName     = "secure_rate_limit"
)

// Config is the rate limit policy. It is read-only once handed to a Limiter.
type Config struct {
	Enabled       bool
	Limit         int64
	WindowSeconds int64
	StorageMode   StorageMode
	KeyMode       KeyMode
	TableName     string

	// PersistentProvisioned reports whether the deployment has a database at all.
	PersistentProvisioned bool

	// Atomic switches the persistent backend to a single upsert statement when supported.
	Atomic bool
}

// DefaultConfig returns the policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Enabled:       false,
		Limit:         DefaultLimit,
		WindowSeconds: DefaultWindowSeconds,
		StorageMode:   StorageEphemeral,
		KeyMode:       KeyModeIdentity,
		TableName:     DefaultTableName,
	}
}

// Window returns the window length as a duration.
func (c Config) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// UsePersistent reports whether the persistent backend should be tried first.
func (c Config) UsePersistent() bool {
	return c.StorageMode == StoragePersistent && c.PersistentProvisioned
}

// Normalize clamps limit and window to at least 1 and fills empty fields with defaults.
func (c Config) Normalize() Config {
	c.Limit = max(1, c.Limit)
	c.WindowSeconds = max(1, c.WindowSeconds)

	if c.StorageMode != StoragePersistent {
		c.StorageMode = StorageEphemeral
	}

	if c.KeyMode != KeyModeScoped {
		c.KeyMode = KeyModeIdentity
	}

	if strings.TrimSpace(c.TableName) == "" {
		c.TableName = DefaultTableName
	}

	return c
}

// Source is a read-only key/value lookup.
type Source interface {
	Lookup(key string) (string, bool)
}

// EnvSource reads configuration from the process environment.
type EnvSource struct{}

func (EnvSource) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapSource serves configuration from a static map.
type MapSource map[string]string

func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]

	return v, ok
}

// LoadConfig builds a normalized Config from src, falling back to defaults
// for missing or malformed values.
func LoadConfig(src Source) Config {
	cfg := DefaultConfig()

	cfg.Enabled = lookupBool(src, EnvEnabled, cfg.Enabled)
	cfg.Limit = lookupInt(src, EnvMaxAttempts, cfg.Limit)
	cfg.WindowSeconds = lookupInt(src, EnvWindow, cfg.WindowSeconds)
	cfg.StorageMode = ParseStorageMode(lookupString(src, EnvStorage, string(cfg.StorageMode)))
	cfg.KeyMode = ParseKeyMode(lookupString(src, EnvKeyMode, string(cfg.KeyMode)))
	cfg.TableName = lookupString(src, EnvTable, cfg.TableName)
	cfg.PersistentProvisioned = lookupBool(src, EnvDatabase, false)
	cfg.Atomic = lookupBool(src, EnvAtomic, false)

	return cfg.Normalize()
}

// ParseStorageMode accepts "persistent" or "database"; anything else is ephemeral.
func ParseStorageMode(s string) StorageMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "persistent", "database":
		return StoragePersistent
	default:
		return StorageEphemeral
	}
}

// ParseKeyMode accepts "scoped"; anything else (including "ip") is identity.
func ParseKeyMode(s string) KeyMode {
	if strings.ToLower(strings.TrimSpace(s)) == string(KeyModeScoped) {
		return KeyModeScoped
	}

	return KeyModeIdentity
}

func lookupString(src Source, key, def string) string {
	v, ok := src.Lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}

	return strings.TrimSpace(v)
}

func lookupInt(src Source, key string, def int64) int64 {
	v, ok := src.Lookup(key)
	if !ok {
		return def
	}

	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return def
	}

	return n
}

func lookupBool(src Source, key string, def bool) bool {
	v, ok := src.Lookup(key)
	if !ok {
		return def
	}

	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}

	return b
}
