package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbeisheim/unionchess-backend/internal/rules"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, rules.DefaultOptions(), cfg.Options())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
addr: ":8080"
sweepInterval: 1s
archive:
  dir: /var/lib/unionchess
rules:
  chainRule: optional
  drawAfterRepetitions: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, time.Second, cfg.SweepInterval)
	assert.Equal(t, "/var/lib/unionchess", cfg.Archive.Dir)
	assert.Equal(t, int64(1), cfg.Archive.Parallel, "unset fields keep defaults")
	assert.Equal(t, rules.Options{Chain: rules.ChainOptional, DrawAfterRepetitions: 5, NoProgressHalfMoves: 100}, cfg.Options())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvAddr, "127.0.0.1:9000")
	t.Setenv(EnvArchiveDir, "/tmp/archive")

	cfg, err := Load(writeConfig(t, `addr: ":8080"`))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "/tmp/archive", cfg.Archive.Dir)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "addr: [unterminated"},
		{"chain rule", "rules:\n  chainRule: sometimes\n"},
		{"timeout rule", "rules:\n  timeoutRule: flip\n"},
		{"sweep interval", "sweepInterval: 0s\n"},
		{"negative limit", "rules:\n  noProgressHalfMoves: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
