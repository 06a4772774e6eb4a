// Package serverfx assembles the controller and worker processes from
// the shared modules.
package serverfx

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joeydtaylor/steeze-pool/pkg/cluster"
	"github.com/joeydtaylor/steeze-pool/pkg/manifest"
)

// Options allow per-service env keys/defaults without code duplication.
type Options struct {
	Service          string // for logs only
	ManifestEnv      string // e.g. "STEEZE_MANIFEST"
	DefaultManifest  string // e.g. "manifest.toml"
	ListenAddrEnv    string // e.g. "SERVER_LISTEN_ADDRESS"
	WorkersEnv       string // e.g. "STEEZE_WORKERS"
	TLSCertEnv       string // e.g. "SSL_SERVER_CERTIFICATE"
	TLSKeyEnv        string // e.g. "SSL_SERVER_KEY"
	MetricsListenEnv string // e.g. "METRICS_LISTEN_ADDRESS"
}

func DefaultOptions() Options {
	return Options{
		Service:          "steeze",
		ManifestEnv:      "STEEZE_MANIFEST",
		DefaultManifest:  "manifest.toml",
		ListenAddrEnv:    "SERVER_LISTEN_ADDRESS",
		WorkersEnv:       "STEEZE_WORKERS",
		TLSCertEnv:       "SSL_SERVER_CERTIFICATE",
		TLSKeyEnv:        "SSL_SERVER_KEY",
		MetricsListenEnv: "METRICS_LISTEN_ADDRESS",
	}
}

// IsWorker reports whether this process was spawned by a controller.
func IsWorker() bool { return os.Getenv(cluster.EnvRole) == cluster.RoleWorker }

// LoadConfig reads the manifest named by the environment and applies the
// env overrides. A missing default manifest yields an empty server; a
// missing manifest that was asked for by name is an error.
func LoadConfig(opts Options) (manifest.Config, error) {
	path := strings.TrimSpace(os.Getenv(opts.ManifestEnv))
	explicit := path != ""
	if !explicit {
		path = opts.DefaultManifest
	}

	cfg, err := manifest.Load(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg = manifest.Default()
	default:
		return manifest.Config{}, fmt.Errorf("manifest %s: %w", path, err)
	}

	s := &cfg.Server
	s.Listen = envOr(opts.ListenAddrEnv, s.Listen)
	s.TLSCert = envOr(opts.TLSCertEnv, s.TLSCert)
	s.TLSKey = envOr(opts.TLSKeyEnv, s.TLSKey)
	s.MetricsListen = envOr(opts.MetricsListenEnv, s.MetricsListen)
	if v := strings.TrimSpace(os.Getenv(opts.WorkersEnv)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return manifest.Config{}, fmt.Errorf("%s: want a non-negative integer, got %q", opts.WorkersEnv, v)
		}
		s.Workers = n
	}
	if err := cfg.Validate(); err != nil {
		return manifest.Config{}, err
	}
	return cfg, nil
}

func envOr(k, def string) string {
	if k == "" {
		return def
	}
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
