package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Security.RateLimit.Enabled)
	assert.Equal(t, "data/licgate.db", cfg.Store.Path)
	assert.Empty(t, cfg.Security.AdminToken, "no admin token by default")
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("LICGATE_SERVER_PORT", "9999")
	t.Setenv("LICGATE_SECURITY_ADMIN_TOKEN", "sekrit")
	t.Setenv("LICGATE_STORE_PATH", "/tmp/other.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "sekrit", cfg.Security.AdminToken)
	assert.Equal(t, "/tmp/other.db", cfg.Store.Path)
}

func TestLoad_FileOverridesDefaultsButNotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licgate.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7001
store:
  path: /var/lib/licgate/file.db
`), 0o644))
	t.Setenv("LICGATE_CONFIG", path)
	t.Setenv("LICGATE_STORE_PATH", "/tmp/env-wins.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Server.Port, "file overrides default")
	assert.Equal(t, "/tmp/env-wins.db", cfg.Store.Path, "env overrides file")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", "LICGATE_SERVER_PORT", "70000"},
		{"zero rps with limiter enabled", "LICGATE_SECURITY_RATE_LIMIT_RPS", "0"},
		{"unknown log output", "LICGATE_LOGGING_OUTPUT", "syslog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingConfigFileIsError(t *testing.T) {
	t.Setenv("LICGATE_CONFIG", filepath.Join(t.TempDir(), "nope.yml"))
	_, err := Load()
	assert.Error(t, err)
}
