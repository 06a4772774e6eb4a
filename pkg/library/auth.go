package library

import (
	"net/http"
	"strings"
	"sync"
)

// Auth modes. The open mode exempts an entry from the secure-scheme redirect.
const (
	AuthModeDefault = ""
	AuthModeOpen    = "open"
)

// Permissions carried by every session that has passed the respective gate.
const (
	PermConsent  = "session:consent"
	PermSignedIn = "session:signed-in"
)

// AuthPolicy gates access to an entry.
type AuthPolicy struct {
	Mode        string   `json:"mode,omitempty" toml:"mode"`
	Secure      bool     `json:"secure,omitempty" toml:"secure"`
	Consent     bool     `json:"consent,omitempty" toml:"consent"`
	SignIn      bool     `json:"signIn,omitempty" toml:"signin"`
	Permissions []string `json:"permissions,omitempty" toml:"permissions"`
	Predicate   string   `json:"predicate,omitempty" toml:"predicate"`
}

// Authorizer is the narrow view of a session the gate needs.
type Authorizer interface {
	Authorize(perms []string) bool
}

// Session is a resolved client session.
type Session interface {
	Authorizer
	Token() string
}

// Sessions opens a session from its token. Implementations return a fresh
// anonymous session, not an error, for tokens they do not recognise.
type Sessions interface {
	Open(token string) (Session, error)
}

// Gate is the request context a policy is evaluated against.
type Gate struct {
	Secure        bool
	RequireSecure bool // server-wide TLS requirement
	Session       Authorizer
	Header        http.Header
}

// Reason names the gate a StatusTemporaryRedirect sends the session to.
type Reason string

const (
	ReasonConsent Reason = "consent"
	ReasonSignIn  Reason = "signin"
)

// Evaluate runs the gate in order: scheme, consent, sign-in, permissions,
// predicate. It returns StatusOK when every check passes.
func (p AuthPolicy) Evaluate(g Gate) Status {
	st, _ := p.Check(g)
	return st
}

// Check is Evaluate that also reports which gate a 307 comes from.
func (p AuthPolicy) Check(g Gate) (Status, Reason) {
	if (p.Secure || g.RequireSecure) && !g.Secure && p.Mode != AuthModeOpen {
		return StatusMovedPermanently, ""
	}
	if p.Consent && !allowed(g.Session, PermConsent) {
		return StatusTemporaryRedirect, ReasonConsent
	}
	if p.SignIn && !allowed(g.Session, PermSignedIn) {
		return StatusTemporaryRedirect, ReasonSignIn
	}
	if len(p.Permissions) > 0 && !allowed(g.Session, p.Permissions...) {
		return StatusForbidden, ""
	}
	if name := strings.TrimSpace(p.Predicate); name != "" {
		fn, ok := LookupPredicate(name)
		if !ok || !fn(g.Header) {
			return StatusForbidden, ""
		}
	}
	return StatusOK, ""
}

func allowed(a Authorizer, perms ...string) bool {
	if a == nil {
		return false
	}
	return a.Authorize(perms)
}

// Predicate is a named header check referenced from AuthPolicy.Predicate.
type Predicate func(http.Header) bool

var (
	predMu     sync.RWMutex
	predicates = map[string]Predicate{}
)

// RegisterPredicate makes fn available to policies under name.
func RegisterPredicate(name string, fn Predicate) {
	if name == "" || fn == nil {
		panic("library: predicate name and func required")
	}
	predMu.Lock()
	predicates[name] = fn
	predMu.Unlock()
}

// LookupPredicate returns a registered predicate.
func LookupPredicate(name string) (Predicate, bool) {
	predMu.RLock()
	defer predMu.RUnlock()
	fn, ok := predicates[name]
	return fn, ok
}
