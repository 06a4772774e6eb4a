package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/fx"

	"github.com/joeydtaylor/steeze-pool/pkg/manifest"
)

const (
	EnvSecret     = "SESSION_SECRET"
	EnvCookieName = "SESSION_COOKIE_NAME"
	EnvDevBypass  = "AUTH_DEV_BYPASS"
	EnvLeeway     = "SESSION_LEEWAY_SECONDS"
)

// ProvideManager builds the Manager from the manifest's [session] table,
// with environment overrides. When no secret is configured one is generated
// and exported so worker processes spawned later share it.
func ProvideManager(cfg manifest.Config) (*Manager, error) {
	s := cfg.Session

	secret := firstNonEmpty(strings.TrimSpace(os.Getenv(EnvSecret)), s.Secret)
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("session: generate secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		if err := os.Setenv(EnvSecret, secret); err != nil {
			return nil, err
		}
	}

	var leeway time.Duration
	if v := strings.TrimSpace(os.Getenv(EnvLeeway)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			leeway = time.Duration(n) * time.Second
		}
	}

	return NewManager(Config{
		CookieName: firstNonEmpty(strings.TrimSpace(os.Getenv(EnvCookieName)), s.CookieName),
		Secret:     []byte(secret),
		MaxAge:     time.Duration(s.MaxAgeSeconds) * time.Second,
		Leeway:     leeway,
		DevBypass:  s.DevBypass || os.Getenv(EnvDevBypass) == "true",
	})
}

var Module = fx.Options(
	fx.Provide(ProvideManager),
)
