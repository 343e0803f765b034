package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/securegate/internal/audit"
	"github.com/serroba/securegate/internal/handlers"
	"github.com/serroba/securegate/internal/messaging"
	"github.com/serroba/securegate/internal/ratelimit"
	"go.uber.org/zap"
)

// Response headers set by the gate.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderRetryAfter = "Retry-After"
)

// Gate decides whether a request may proceed. *ratelimit.Limiter satisfies it.
type Gate interface {
	IsEnabled() bool
	Hit(ctx context.Context, id ratelimit.Identity, scope ratelimit.Scope) ratelimit.Decision
}

// RateLimiter returns a Huma middleware that counts every request against the
// gate and rejects it with 429 once the window's limit is exceeded.
//
// Per-endpoint configuration is read from operation metadata under
// ratelimit.MetadataKey. Endpoints can:
//   - Disable rate limiting entirely (Disabled: true)
//   - Name the scope used for scoped keys (Scope: "usercontroller::login")
func RateLimiter(
	api huma.API,
	gate Gate,
	resolver ratelimit.ScopeResolver,
	publish messaging.Publish[audit.LimitExceededEvent],
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if !gate.IsEnabled() {
			next(ctx)

			return
		}

		if cfg := ratelimit.GetEndpointConfig(ctx); cfg != nil && cfg.Disabled {
			logger.Debug("rate limiting disabled for endpoint",
				zap.String("path", ctx.URL().Path), zap.String("method", ctx.Method()))
			next(ctx)

			return
		}

		id := ratelimit.ResolveIdentity(ctx)
		scope := resolver.Resolve(ctx)
		decision := gate.Hit(ctx.Context(), id, scope)

		if !decision.FailedOpen {
			ctx.SetHeader(HeaderLimit, strconv.FormatInt(decision.Limit, 10))
			ctx.SetHeader(HeaderRemaining, strconv.FormatInt(decision.Remaining(), 10))
		}

		if decision.Allowed {
			next(ctx)

			return
		}

		rejectRequest(api, ctx, id, scope, decision, publish, logger)
	}
}

func rejectRequest(
	api huma.API,
	ctx huma.Context,
	id ratelimit.Identity,
	scope ratelimit.Scope,
	d ratelimit.Decision,
	publish messaging.Publish[audit.LimitExceededEvent],
	logger *zap.Logger,
) {
	meta := handlers.RequestMetaFromContext(ctx.Context())

	logger.Warn("rate limit exceeded",
		zap.String("scope", string(scope)),
		zap.String("method", id.Method),
		zap.String("path", id.Path),
		zap.String("client_ip", id.IP),
		zap.Int64("current", d.Current),
		zap.Int64("limit", d.Limit),
		zap.Int64("retry_after", d.RetryAfter),
		zap.String("request_id", meta.RequestID),
	)

	event := audit.NewLimitExceededEvent(id, scope, d, time.Now())
	event.RequestID = meta.RequestID
	event.UserAgent = meta.UserAgent

	if err := publish(ctx.Context(), event); err != nil {
		logger.Warn("failed to publish rate limit event",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}

	ctx.SetHeader(HeaderRetryAfter, strconv.FormatInt(d.RetryAfter, 10))

	msg := fmt.Sprintf("rate limit exceeded. retry after %d seconds", d.RetryAfter)
	_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, msg)
}
