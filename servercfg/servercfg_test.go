package servercfg_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/laschicaz/samp-plugin-crashdetect/servercfg"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
die_on_error = true
run_on_error = "sh scripts/collect-logs.sh"
`)
	cfg, err := servercfg.Load(path)
	require.NoError(t, err)
	require.True(t, cfg.DieOnError)
	require.Equal(t, "sh scripts/collect-logs.sh", cfg.RunOnError)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := servercfg.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, &servercfg.Config{}, cfg)
}

func TestLoadIgnoresUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
hostname = "test server"
maxplayers = 32
die_on_error = false
`)
	cfg, err := servercfg.Load(path)
	require.NoError(t, err)
	require.False(t, cfg.DieOnError)
	require.Empty(t, cfg.RunOnError)
}

func TestLoadMalformed(t *testing.T) {
	path := writeConfig(t, `die_on_error = `)
	_, err := servercfg.Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse error")
}
