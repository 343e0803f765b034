package container

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Cache backends for ephemeral counters and audit events.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options are the process-level settings, read from flags or SERVICE_* env vars.
type Options struct {
	Port          int    `default:"8888"             help:"Port to listen on"                                     short:"p"`
	RedisAddr     string `default:"localhost:6379"   help:"Redis server address"                                  short:"r"`
	DatabaseURL   string `default:""                 help:"Postgres URL; empty disables the persistent store"     short:"d"`
	LogFormat     string `default:"console"          help:"Log format: console or json"`
	CacheBackend  string `default:"redis"            help:"Backend for counters and audit events: redis or memory"`
	EnsureSchema  bool   `default:"false"            help:"Create the rate limit table on startup"`
	ConsumerGroup string `default:"securegate-audit" help:"Redis stream consumer group for audit events"`
}

// InProcessAudit reports whether audit events stay inside the server process.
func (o *Options) InProcessAudit() bool {
	return o.CacheBackend == BackendMemory
}

// RedisHandle owns the shared Redis client.
type RedisHandle struct {
	Client *redis.Client
}

// Shutdown closes the client.
func (h *RedisHandle) Shutdown() error {
	return h.Client.Close()
}

// PostgresHandle owns the connection pool. Pool is nil when no database is configured.
type PostgresHandle struct {
	Pool *pgxpool.Pool
}

// Shutdown closes the pool.
func (h *PostgresHandle) Shutdown() error {
	if h.Pool != nil {
		h.Pool.Close()
	}

	return nil
}
