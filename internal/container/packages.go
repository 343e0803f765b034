package container

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jaevor/go-nanoid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/securegate/internal/audit"
	"github.com/serroba/securegate/internal/handlers"
	"github.com/serroba/securegate/internal/health"
	"github.com/serroba/securegate/internal/messaging"
	"github.com/serroba/securegate/internal/middleware"
	"github.com/serroba/securegate/internal/ratelimit"
	"github.com/serroba/securegate/internal/store"
	"go.uber.org/zap"
)

const (
	cacheKeyPrefix = "securegate:"
	requestIDLen   = 21
	schemaTimeout  = 10 * time.Second
)

// LoggerPackage provides *zap.Logger built from Options.LogFormat.
func LoggerPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.LogFormat == "json" {
			return zap.NewProduction()
		}

		return zap.NewDevelopment()
	})
}

// RedisPackage provides the shared Redis client.
func RedisPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*RedisHandle, error) {
		opts := do.MustInvoke[*Options](i)

		return &RedisHandle{Client: redis.NewClient(&redis.Options{Addr: opts.RedisAddr})}, nil
	})
}

// PostgresPackage provides the Postgres pool, or an empty handle without a DatabaseURL.
func PostgresPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*PostgresHandle, error) {
		opts := do.MustInvoke[*Options](i)
		if opts.DatabaseURL == "" {
			return &PostgresHandle{}, nil
		}

		pool, err := pgxpool.New(context.Background(), opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}

		return &PostgresHandle{Pool: pool}, nil
	})
}

// RateLimitPackage provides the rate limit policy and the *ratelimit.Limiter.
func RateLimitPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (ratelimit.Config, error) {
		return ratelimit.LoadConfig(ratelimit.EnvSource{}), nil
	})

	do.Provide(injector, func(i *do.Injector) (*ratelimit.Limiter, error) {
		opts := do.MustInvoke[*Options](i)
		cfg := do.MustInvoke[ratelimit.Config](i)
		logger := do.MustInvoke[*zap.Logger](i)

		var cache ratelimit.Cache
		if opts.CacheBackend == BackendMemory {
			cache = store.NewMemoryCache()
		} else {
			cache = store.NewRedisCache(do.MustInvoke[*RedisHandle](i).Client, cacheKeyPrefix)
		}

		var persistent ratelimit.WindowStore

		if pool := do.MustInvoke[*PostgresHandle](i).Pool; pool != nil {
			if opts.EnsureSchema {
				ensureSchema(pool, cfg.TableName, logger)
			}

			table := store.NewPostgresWindowTable(pool, cfg.TableName)
			persistent = ratelimit.NewPersistentWindowStore(table, ratelimit.WithAtomicIncrement(cfg.Atomic))
		}

		logger.Info("rate limiter configured",
			zap.Bool("enabled", cfg.Enabled),
			zap.Int64("limit", cfg.Limit),
			zap.Int64("window_seconds", cfg.WindowSeconds),
			zap.String("storage", string(cfg.StorageMode)),
			zap.String("key_mode", string(cfg.KeyMode)),
			zap.Bool("persistent_wired", persistent != nil),
			zap.String("cache_backend", opts.CacheBackend),
		)

		return ratelimit.NewLimiter(cfg, ratelimit.NewEphemeralWindowStore(cache), persistent, logger), nil
	})
}

func ensureSchema(pool *pgxpool.Pool, table string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()

	if err := store.CreateWindowTable(ctx, pool, table); err != nil {
		logger.Warn("failed to ensure rate limit table", zap.String("table", table), zap.Error(err))

		return
	}

	logger.Info("rate limit table ready", zap.String("table", table))
}

// PubSubPackage provides the in-memory pub/sub used when CacheBackend is memory.
func PubSubPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*gochannel.GoChannel, error) {
		logger := do.MustInvoke[*zap.Logger](i)

		return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 100}, NewWatermillLogger(logger)), nil
	})
}

// PublisherGroupPackage provides the audit event publisher.
func PublisherGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		if opts.InProcessAudit() {
			return messaging.NewPublisherGroup(do.MustInvoke[*gochannel.GoChannel](i)), nil
		}

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: do.MustInvoke[*RedisHandle](i).Client},
			NewWatermillLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("create redis stream publisher: %w", err)
		}

		return messaging.NewPublisherGroup(publisher), nil
	})

	do.Provide(injector, func(i *do.Injector) (messaging.Publish[audit.LimitExceededEvent], error) {
		group := do.MustInvoke[*messaging.PublisherGroup](i)

		return audit.NewPublishFunc(group.Publisher()), nil
	})
}

// ConsumerGroupPackage provides the audit consumer group.
func ConsumerGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		var subscriber message.Subscriber

		if opts.InProcessAudit() {
			subscriber = do.MustInvoke[*gochannel.GoChannel](i)
		} else {
			sub, err := redisstream.NewSubscriber(
				redisstream.SubscriberConfig{
					Client:        do.MustInvoke[*RedisHandle](i).Client,
					ConsumerGroup: opts.ConsumerGroup,
				},
				NewWatermillLogger(logger),
			)
			if err != nil {
				return nil, fmt.Errorf("create redis stream subscriber: %w", err)
			}

			subscriber = sub
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(audit.NewConsumer(subscriber, audit.NewLogStore(logger), logger))

		return group, nil
	})
}

// HTTPPackage provides the router and the API with middleware and routes registered.
func HTTPPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(injector, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		router := do.MustInvoke[*chi.Mux](i)
		logger := do.MustInvoke[*zap.Logger](i)
		limiter := do.MustInvoke[*ratelimit.Limiter](i)
		publish := do.MustInvoke[messaging.Publish[audit.LimitExceededEvent]](i)

		newID, err := nanoid.Standard(requestIDLen)
		if err != nil {
			return nil, fmt.Errorf("create request id generator: %w", err)
		}

		api := humachi.New(router, huma.DefaultConfig("SecureGate", "1.0.0"))
		api.UseMiddleware(middleware.RequestMeta(api, newID))
		api.UseMiddleware(middleware.RateLimiter(api, limiter, ratelimit.NewOperationScopeResolver(), publish, logger))

		deps := []health.Dependency{
			{Name: "postgres", Checker: postgresChecker(do.MustInvoke[*PostgresHandle](i))},
		}
		if !opts.InProcessAudit() {
			deps = append(deps, health.Dependency{
				Name:    "redis",
				Checker: health.NewRedisChecker(do.MustInvoke[*RedisHandle](i).Client),
			})
		}

		health.RegisterRoutes(api, health.NewHandler(deps...))
		handlers.RegisterRoutes(api, handlers.NewWhoAmIHandler(limiter.Config()))

		return api, nil
	})
}

// postgresChecker returns nil when no pool is configured so the dependency is omitted.
func postgresChecker(h *PostgresHandle) health.Checker {
	if h.Pool == nil {
		return nil
	}

	return health.NewPostgresChecker(h.Pool)
}
