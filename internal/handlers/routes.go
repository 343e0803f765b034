package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/securegate/internal/ratelimit"
)

// RegisterRoutes registers the gated API routes.
func RegisterRoutes(api huma.API, whoami *WhoAmIHandler) {
	// GET /whoami - counted against the caller like any other endpoint
	huma.Register(api, huma.Operation{
		OperationID: "get-whoami",
		Method:      http.MethodGet,
		Path:        "/whoami",
		Summary:     "Describe the caller",
		Description: "Returns the client address the gate resolved and the active rate limit policy.",
		Tags:        []string{"Identity"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Scope: "identity::whoami"},
		},
	}, whoami.WhoAmI)
}
