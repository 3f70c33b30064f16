package audit

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Request is the transport metadata attached to events.
type Request struct {
	ID        string `json:"id,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type requestKey struct{}

// WithRequest attaches r to ctx. An empty ID is replaced with a fresh UUID.
func WithRequest(ctx context.Context, r Request) context.Context {
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.IP = strings.TrimSpace(r.IP)
	r.UserAgent = strings.TrimSpace(r.UserAgent)
	return context.WithValue(ctx, requestKey{}, r)
}

// RequestFrom returns the request attached by WithRequest.
func RequestFrom(ctx context.Context) (Request, bool) {
	r, ok := ctx.Value(requestKey{}).(Request)
	return r, ok
}
