package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/serroba/securegate/internal/ratelimit"
)

// TopicLimitExceeded carries one event per rejected request.
const TopicLimitExceeded = "ratelimit.exceeded"

// LimitExceededEvent records a request the gate turned away.
type LimitExceededEvent struct {
	ID         string    `json:"id"`
	Scope      string    `json:"scope"`
	ClientIP   string    `json:"clientIp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Current    int64     `json:"current"`
	Limit      int64     `json:"limit"`
	RetryAfter int64     `json:"retryAfter"`
	Backend    string    `json:"backend"`
	RequestID  string    `json:"requestId,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewLimitExceededEvent builds an event from a denied decision.
func NewLimitExceededEvent(
	id ratelimit.Identity,
	scope ratelimit.Scope,
	d ratelimit.Decision,
	occurredAt time.Time,
) *LimitExceededEvent {
	return &LimitExceededEvent{
		ID:         uuid.NewString(),
		Scope:      string(scope),
		ClientIP:   id.IP,
		Method:     id.Method,
		Path:       id.Path,
		Current:    d.Current,
		Limit:      d.Limit,
		RetryAfter: d.RetryAfter,
		Backend:    string(d.Backend),
		OccurredAt: occurredAt.UTC(),
	}
}
