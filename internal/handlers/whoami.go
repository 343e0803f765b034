package handlers

import (
	"context"

	"github.com/serroba/securegate/internal/ratelimit"
)

// WhoAmIResponse describes how the gate sees the caller.
type WhoAmIResponse struct {
	Body struct {
		RequestID     string `doc:"Request ID"                    json:"requestId"`
		ClientIP      string `doc:"Resolved client address"       example:"203.0.113.7" json:"clientIp"`
		UserAgent     string `doc:"Client user agent"             json:"userAgent,omitempty"`
		Enabled       bool   `doc:"Whether rate limiting is on"   json:"enabled"`
		KeyMode       string `doc:"How limiter keys are built"    example:"identity"    json:"keyMode"`
		Storage       string `doc:"Configured counter storage"    example:"ephemeral"   json:"storage"`
		Limit         int64  `doc:"Attempts allowed per window"   example:"120"         json:"limit"`
		WindowSeconds int64  `doc:"Window length in seconds"      example:"60"          json:"windowSeconds"`
	}
}

// WhoAmIHandler reports the caller's resolved identity and the active policy.
type WhoAmIHandler struct {
	cfg ratelimit.Config
}

// NewWhoAmIHandler creates a handler for the given policy.
func NewWhoAmIHandler(cfg ratelimit.Config) *WhoAmIHandler {
	return &WhoAmIHandler{cfg: cfg.Normalize()}
}

func (h *WhoAmIHandler) WhoAmI(ctx context.Context, _ *struct{}) (*WhoAmIResponse, error) {
	meta := RequestMetaFromContext(ctx)

	resp := &WhoAmIResponse{}
	resp.Body.RequestID = meta.RequestID
	resp.Body.ClientIP = meta.ClientIP
	resp.Body.UserAgent = meta.UserAgent
	resp.Body.Enabled = h.cfg.Enabled
	resp.Body.KeyMode = string(h.cfg.KeyMode)
	resp.Body.Storage = string(h.cfg.StorageMode)
	resp.Body.Limit = h.cfg.Limit
	resp.Body.WindowSeconds = h.cfg.WindowSeconds

	return resp, nil
}
