package manifest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joeydtaylor/steeze-pool/pkg/library"
)

// Config is the top-level manifest shared by the controller and its workers.
type Config struct {
	Server  Server  `toml:"server"`
	Cache   Cache   `toml:"cache"`
	Session Session `toml:"session"`
	Entries []Entry `toml:"entry"`

	Dir string `toml:"-"` // directory the manifest was loaded from
}

type Server struct {
	Listen        string `toml:"listen"`
	Workers       int    `toml:"workers"`
	TLSCert       string `toml:"tls_cert"`
	TLSKey        string `toml:"tls_key"`
	RequireTLS    bool   `toml:"require_tls"`
	TrustProxy    bool   `toml:"trust_proxy"`
	MetricsListen string `toml:"metrics_listen"` // controller-only admin listener

	// LogBodyPaths lists paths whose small JSON request bodies the access
	// log records.
	LogBodyPaths []string `toml:"log_body_paths"`
}

type Cache struct {
	MaxEntryBytes int `toml:"max_entry_bytes"` // variants above this are never stored
	TimeoutMS     int `toml:"timeout_ms"`      // default variant lifetime
}

type Session struct {
	CookieName    string `toml:"cookie_name"`
	Secret        string `toml:"secret"`
	ConsentPath   string `toml:"consent_path"`
	SignInPath    string `toml:"signin_path"`
	MaxAgeSeconds int    `toml:"max_age_seconds"`
	DevBypass     bool   `toml:"dev_bypass"`
}

const (
	DefaultListen        = ":4000"
	DefaultMaxEntryBytes = 1 << 20
	DefaultTimeoutMS     = 5 * 60 * 1000
)

// LibraryEntries converts every entry for registry loading.
func (c *Config) LibraryEntries() ([]library.Entry, error) {
	out := make([]library.Entry, 0, len(c.Entries))
	for i := range c.Entries {
		e, err := c.Entries[i].Library(c.Dir)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Default returns a manifest with no entries and every default applied.
func Default() Config {
	var c Config
	_ = c.Validate()
	return c
}

// Validate applies defaults, normalizes entries and checks them.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if c.Cache.MaxEntryBytes == 0 {
		c.Cache.MaxEntryBytes = DefaultMaxEntryBytes
	}
	if c.Cache.MaxEntryBytes < 0 {
		return errors.New("cache.max_entry_bytes must be >= 0")
	}
	if c.Cache.TimeoutMS == 0 {
		c.Cache.TimeoutMS = DefaultTimeoutMS
	}
	if c.Cache.TimeoutMS < 0 {
		return errors.New("cache.timeout_ms must be >= 0")
	}
	c.Session.CookieName = strings.TrimSpace(c.Session.CookieName)
	if c.Session.CookieName == "" {
		c.Session.CookieName = "steeze_session"
	}
	if c.Session.ConsentPath == "" {
		c.Session.ConsentPath = "/consent"
	}
	if c.Session.SignInPath == "" {
		c.Session.SignInPath = "/signin"
	}
	if c.Session.MaxAgeSeconds < 0 {
		return errors.New("session.max_age_seconds must be >= 0")
	}
	return c.validateEntries()
}

func (c *Config) validateServer() error {
	s := &c.Server
	s.Listen = strings.TrimSpace(s.Listen)
	if s.Listen == "" {
		s.Listen = DefaultListen
	}
	for i, p := range s.LogBodyPaths {
		s.LogBodyPaths[i] = library.NormalizePath(p)
	}
	if s.Workers < 0 {
		return errors.New("server.workers must be >= 0")
	}
	if (s.TLSCert == "") != (s.TLSKey == "") {
		return fmt.Errorf("server: tls_cert and tls_key must be set together")
	}
	return nil
}
