package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("RESEARCHCHAT_BASE_URL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Server.BaseURL)
	assert.Equal(t, 30, cfg.Server.TimeoutSecs)
	assert.Equal(t, 15, cfg.Embedding.PollTimeoutSecs)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	t.Setenv("RESEARCHCHAT_BASE_URL", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  base_url: https://research.example.com/api/v1\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://research.example.com/api/v1", cfg.Server.BaseURL)
	assert.Equal(t, "RESEARCHCHAT_TOKEN", cfg.Server.TokenEnv)
	assert.Equal(t, 180, cfg.Chat.SendTimeoutSecs)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("RESEARCHCHAT_BASE_URL", "")
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad url", yaml: "server:\n  base_url: not a url\n"},
		{name: "negative timeout", yaml: "server:\n  timeout_secs: -1\n"},
		{name: "unknown level", yaml: "logging:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestEnvOverridesBaseURL(t *testing.T) {
	t.Setenv("RESEARCHCHAT_BASE_URL", "http://10.0.0.5:8000/api/v1")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8000/api/v1", cfg.Server.BaseURL)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("RESEARCHCHAT_BASE_URL", "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Server.TimeoutSecs = 7
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Server.TimeoutSecs)
	assert.Equal(t, 7*time.Second, loaded.Server.Timeout())
}

func TestTokenReadsNamedEnv(t *testing.T) {
	t.Setenv("MY_TOKEN", "secret")
	assert.Equal(t, "secret", ServerConfig{TokenEnv: "MY_TOKEN"}.Token())
	assert.Equal(t, "", ServerConfig{}.Token())
}
