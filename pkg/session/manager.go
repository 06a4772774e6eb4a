package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joeydtaylor/steeze-pool/pkg/library"
)

// Config configures a Manager.
type Config struct {
	CookieName string
	Secret     []byte
	MaxAge     time.Duration
	Issuer     string
	Leeway     time.Duration
	DevBypass  bool
}

// Manager issues and verifies stateless HS256 session tokens. Controller and
// workers share the secret, so any process can open any session.
type Manager struct {
	cookieName string
	secret     []byte
	maxAge     time.Duration
	issuer     string
	leeway     time.Duration
	devBypass  bool
	now        func() time.Time
}

var _ library.Sessions = (*Manager)(nil)

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("session: secret must be at least 16 bytes")
	}
	m := &Manager{
		cookieName: firstNonEmpty(strings.TrimSpace(cfg.CookieName), "steeze_session"),
		secret:     append([]byte(nil), cfg.Secret...),
		maxAge:     cfg.MaxAge,
		issuer:     firstNonEmpty(cfg.Issuer, "steeze-pool"),
		leeway:     cfg.Leeway,
		devBypass:  cfg.DevBypass,
		now:        time.Now,
	}
	if m.maxAge <= 0 {
		m.maxAge = 30 * 24 * time.Hour
	}
	return m, nil
}

func (m *Manager) CookieName() string { return m.cookieName }

// Issue mints a new session granting perms.
func (m *Manager) Issue(perms ...string) (*Handle, error) {
	return m.sign(uuid.NewString(), perms)
}

// Grant re-issues h with perms added. The returned handle is fresh.
func (m *Manager) Grant(h *Handle, perms ...string) (*Handle, error) {
	id := h.id
	if id == "" {
		id = uuid.NewString()
	}
	return m.sign(id, append(h.Permissions(), perms...))
}

func (m *Manager) sign(id string, perms []string) (*Handle, error) {
	now := m.now()
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		if p = strings.TrimSpace(p); p != "" {
			set[p] = struct{}{}
		}
	}
	h := &Handle{id: id, perms: set, fresh: true}
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
		},
		Perms: h.Permissions(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return nil, err
	}
	h.token = tok
	return h, nil
}

// Open verifies token. Unknown, expired or forged tokens yield an anonymous
// session rather than an error.
func (m *Manager) Open(token string) (library.Session, error) {
	h, err := m.verify(token)
	if err != nil {
		return anonymous(), nil
	}
	return h, nil
}

func (m *Manager) verify(raw string) (*Handle, error) {
	if raw == "" {
		return nil, errors.New("empty token")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(m.issuer),
		jwt.WithLeeway(m.leeway),
		jwt.WithTimeFunc(m.now),
	)
	var c claims
	tok, err := parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, errors.New("invalid session")
	}
	if c.ID == "" {
		return nil, errors.New("missing session id")
	}
	h := &Handle{id: c.ID, token: raw, perms: make(map[string]struct{}, len(c.Perms))}
	for _, p := range c.Perms {
		h.perms[p] = struct{}{}
	}
	return h, nil
}

// FromRequest opens the request's session cookie or issues a new session on
// first contact.
func (m *Manager) FromRequest(r *http.Request) (*Handle, error) {
	// Dev bypass for local testing (NEVER enable in prod)
	if m.devBypass {
		if perms := devPermissionsFromHeaders(r); len(perms) > 0 {
			h, err := m.Issue(perms...)
			if err != nil {
				return nil, err
			}
			h.fresh = false
			return h, nil
		}
	}
	if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" {
		if h, err := m.verify(c.Value); err == nil {
			return h, nil
		}
	}
	return m.Issue()
}

// Cookie returns the HttpOnly cookie that carries h.
func (m *Manager) Cookie(h *Handle, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    h.Token(),
		Path:     "/",
		MaxAge:   int(m.maxAge / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
