package core

import "context"

type contextKey string

const ctxKeyInitiator contextKey = "run_initiator"

// Initiator describes who started a run. It is stored with the run history.
type Initiator struct {
	Source    string `json:"source"` // "cli" or "http"
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ContextWithInitiator attaches the run initiator to ctx.
func ContextWithInitiator(ctx context.Context, in Initiator) context.Context {
	return context.WithValue(ctx, ctxKeyInitiator, in)
}

// InitiatorFromContext extracts the run initiator, if any.
func InitiatorFromContext(ctx context.Context) Initiator {
	if v, ok := ctx.Value(ctxKeyInitiator).(Initiator); ok {
		return v
	}
	return Initiator{}
}
