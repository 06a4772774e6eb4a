package dispatch

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-pool/pkg/session"
)

// SessionMiddleware opens the request's session, or issues one on first
// contact and sets its cookie, and stores it in the request context.
func SessionMiddleware(m *session.Manager, trustProxy bool, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h, err := m.FromRequest(r)
			if err != nil {
				log.Error("session issue failed", zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if h.Fresh() {
				http.SetCookie(w, m.Cookie(h, isSecure(r, trustProxy)))
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), h)))
		})
	}
}

// isSecure reports whether the client reached us over TLS.
func isSecure(r *http.Request, trustProxy bool) bool {
	if r.TLS != nil {
		return true
	}
	return trustProxy && strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
