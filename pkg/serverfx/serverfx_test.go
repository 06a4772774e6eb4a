package serverfx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeydtaylor/steeze-pool/pkg/cluster"
	"github.com/joeydtaylor/steeze-pool/pkg/manifest"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	o := DefaultOptions()
	o.DefaultManifest = filepath.Join(t.TempDir(), "absent.toml")
	for _, k := range []string{o.ManifestEnv, o.ListenAddrEnv, o.WorkersEnv, o.TLSCertEnv, o.TLSKeyEnv, o.MetricsListenEnv} {
		t.Setenv(k, "")
	}
	return o
}

func TestLoadConfig_MissingDefaultManifest(t *testing.T) {
	cfg, err := LoadConfig(testOptions(t))
	require.NoError(t, err)
	assert.Equal(t, manifest.DefaultListen, cfg.Server.Listen)
	assert.Equal(t, 0, cfg.Server.Workers)
	assert.Empty(t, cfg.Entries)
}

func TestLoadConfig_MissingExplicitManifest(t *testing.T) {
	o := testOptions(t)
	t.Setenv(o.ManifestEnv, filepath.Join(t.TempDir(), "nope.toml"))
	_, err := LoadConfig(o)
	assert.Error(t, err)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	o := testOptions(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
listen = ":9000"
workers = 2

[[entry]]
path = "/ping"
type = "data"
data = "pong"
`), 0o644))

	t.Setenv(o.ManifestEnv, path)
	t.Setenv(o.ListenAddrEnv, "127.0.0.1:8080")
	t.Setenv(o.WorkersEnv, "4")
	t.Setenv(o.MetricsListenEnv, ":9100")

	cfg, err := LoadConfig(o)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, 4, cfg.Server.Workers)
	assert.Equal(t, ":9100", cfg.Server.MetricsListen)
	assert.Equal(t, dir, cfg.Dir)
	require.Len(t, cfg.Entries, 1)
}

func TestLoadConfig_BadWorkers(t *testing.T) {
	o := testOptions(t)
	t.Setenv(o.WorkersEnv, "-1")
	_, err := LoadConfig(o)
	assert.Error(t, err)

	t.Setenv(o.WorkersEnv, "many")
	_, err = LoadConfig(o)
	assert.Error(t, err)
}

func TestLoadConfig_TLSPairFromEnv(t *testing.T) {
	o := testOptions(t)
	t.Setenv(o.TLSCertEnv, "cert.pem")
	_, err := LoadConfig(o)
	assert.Error(t, err, "cert without key")

	t.Setenv(o.TLSKeyEnv, "key.pem")
	cfg, err := LoadConfig(o)
	require.NoError(t, err)
	assert.Equal(t, "cert.pem", cfg.Server.TLSCert)
	assert.False(t, fileExists(cfg.Server.TLSCert))
}

func TestRoleAndLabel(t *testing.T) {
	t.Setenv(cluster.EnvRole, "")
	t.Setenv(cluster.EnvWorkerID, "")
	assert.False(t, IsWorker())
	assert.Equal(t, "controller", workerLabel())

	t.Setenv(cluster.EnvRole, cluster.RoleWorker)
	t.Setenv(cluster.EnvWorkerID, "3")
	assert.True(t, IsWorker())
	assert.Equal(t, "3", workerLabel())
}
