package ratelimit

import (
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// Scope labels the endpoint a hit is counted against. It only partitions
// buckets in KeyModeScoped.
type Scope string

const (
	// ScopeGlobal is used when nothing more specific is known.
	ScopeGlobal Scope = "global"
	// ScopeRead covers GET, HEAD and OPTIONS requests without an operation.
	ScopeRead Scope = "read"
	// ScopeWrite covers every other method without an operation.
	ScopeWrite Scope = "write"
)

// MetadataKey is the key used to store rate limit config in operation metadata.
const MetadataKey = "rateLimit"

// EndpointConfig is per-endpoint rate limit configuration attached to a Huma
// operation through its Metadata field.
type EndpointConfig struct {
	// Scope overrides the scope derived from the operation ID.
	Scope Scope

	// Disabled skips rate limiting entirely for this endpoint.
	Disabled bool
}

// ScopeResolver determines the scope of a request.
type ScopeResolver interface {
	Resolve(ctx huma.Context) Scope
}

// MethodScopeResolver classifies requests as read or write by HTTP method.
type MethodScopeResolver struct{}

// NewMethodScopeResolver creates a new method-based scope resolver.
func NewMethodScopeResolver() *MethodScopeResolver {
	return &MethodScopeResolver{}
}

func (r *MethodScopeResolver) Resolve(ctx huma.Context) Scope {
	switch ctx.Method() {
	case "GET", "HEAD", "OPTIONS":
		return ScopeRead
	default:
		return ScopeWrite
	}
}

// OperationScopeResolver resolves the scope from operation metadata, then the
// lower-cased operation ID, then the HTTP method.
type OperationScopeResolver struct {
	fallback *MethodScopeResolver
}

// NewOperationScopeResolver creates a new operation-aware scope resolver.
func NewOperationScopeResolver() *OperationScopeResolver {
	return &OperationScopeResolver{
		fallback: NewMethodScopeResolver(),
	}
}

func (r *OperationScopeResolver) Resolve(ctx huma.Context) Scope {
	if cfg := GetEndpointConfig(ctx); cfg != nil && cfg.Scope != "" {
		return Scope(strings.ToLower(string(cfg.Scope)))
	}

	if op := ctx.Operation(); op != nil && op.OperationID != "" {
		return Scope(strings.ToLower(op.OperationID))
	}

	return r.fallback.Resolve(ctx)
}

// GetEndpointConfig extracts the EndpointConfig from operation metadata, if present.
func GetEndpointConfig(ctx huma.Context) *EndpointConfig {
	op := ctx.Operation()
	if op == nil || op.Metadata == nil {
		return nil
	}

	cfg, ok := op.Metadata[MetadataKey].(EndpointConfig)
	if !ok {
		return nil
	}

	return &cfg
}
