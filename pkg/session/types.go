package session

import (
	"sort"

	"github.com/golang-jwt/jwt/v5"
)

type claims struct {
	jwt.RegisteredClaims
	Perms []string `json:"perms,omitempty"`
}

// Handle is an opened session. A zero token means anonymous: the session
// was never issued and grants nothing.
type Handle struct {
	id    string
	token string
	perms map[string]struct{}
	fresh bool
}

func (h *Handle) ID() string    { return h.id }
func (h *Handle) Token() string { return h.token }

// Fresh reports whether the session was issued while handling this request
// and still needs its cookie set.
func (h *Handle) Fresh() bool { return h.fresh }

// Authorize reports whether every permission in perms was granted.
func (h *Handle) Authorize(perms []string) bool {
	if h == nil {
		return len(perms) == 0
	}
	for _, p := range perms {
		if _, ok := h.perms[p]; !ok {
			return false
		}
	}
	return true
}

// Permissions returns the granted permissions, sorted.
func (h *Handle) Permissions() []string {
	out := make([]string, 0, len(h.perms))
	for p := range h.perms {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func anonymous() *Handle { return &Handle{perms: map[string]struct{}{}} }
