package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/uploaduser/internal/core"
)

// WithRequestMetadata records the HTTP caller as the run initiator.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithInitiator(ctx, core.Initiator{
		Source:    "http",
		IPAddress: r.RemoteAddr, // Already processed by TrustedRealIP
		UserAgent: r.Header.Get("User-Agent"),
	})
}
