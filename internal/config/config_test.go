package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults_NoPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:53", cfg.Address)
	assert.Equal(t, "info", cfg.Verbosity)
	assert.Equal(t, 1000.0, cfg.RateLimit.QPS)
	assert.Equal(t, 4096, cfg.CacheSize)
	assert.Empty(t, cfg.Upstreams)
	assert.Empty(t, cfg.Table)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
address: 127.0.0.1:5353
verbosity: debug
ratelimit:
  qps: 50
  burst: 10
cache_size: 128
upstreams:
  - label: primary
    kind: leaf
    transport: udp
    address: 1.1.1.1:53
table:
  - name: default
    label: primary
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5353", cfg.Address)
	assert.Equal(t, "debug", cfg.Verbosity)
	assert.Equal(t, 50.0, cfg.RateLimit.QPS)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, 128, cfg.CacheSize)
	require.Len(t, cfg.Upstreams, 1)
	assert.Equal(t, "primary", cfg.Upstreams[0].Label)
	require.Len(t, cfg.Table, 1)
	assert.Equal(t, "primary", cfg.Table[0].Label)
}

func TestLoad_MissingExplicitPathFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoad_RejectsEmptyAddress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("address: \"\"\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefault_ProducesValidatableConfig(t *testing.T) {
	cfg := Default()
	_, reg, _, err := Build(cfg, true)
	require.NoError(t, err)
	require.NoError(t, reg.Close())
}

func TestResolve_ExplicitPathWins(t *testing.T) {
	path, useDefault, err := Resolve("/some/explicit/path.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/some/explicit/path.yaml", path)
	assert.False(t, useDefault)
}

func TestResolve_FallsBackToDefaultWhenImplicitPathAbsent(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()

	path, useDefault, err := Resolve("")
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.True(t, useDefault)
}

func TestResolve_FindsImplicitConfigYAML(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()

	require.NoError(t, os.WriteFile("config.yaml", []byte("address: 0.0.0.0:53\n"), 0o644))

	path, useDefault, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", path)
	assert.False(t, useDefault)
}
