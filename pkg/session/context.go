package session

import (
	"context"

	"github.com/joeydtaylor/steeze-pool/pkg/library"
)

type contextKey struct{ name string }

var sessionCtxKey = &contextKey{"session"}

func WithSession(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, sessionCtxKey, h)
}

// FromContext returns the request's session, or nil outside a dispatch.
func FromContext(ctx context.Context) *Handle {
	h, _ := ctx.Value(sessionCtxKey).(*Handle)
	return h
}

func IsSignedIn(ctx context.Context) bool {
	h := FromContext(ctx)
	return h != nil && h.Authorize([]string{library.PermSignedIn})
}
