package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "pebble", cfg.Storage.Driver)
	assert.Equal(t, DefaultBaseURL, cfg.Provider.BaseURL)
	assert.Equal(t, time.Duration(0), cfg.Provider.RequestTimeout)
	assert.Equal(t, 10, cfg.Provider.MaxWorkers)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("API_KEY", "sk-env")
	t.Setenv("GENSTUDIO_STORAGE_DRIVER", "sqlite")
	t.Setenv("GENSTUDIO_PROVIDER_BASE_URL", "https://proxy.example.com/")
	t.Setenv("GENSTUDIO_PROVIDER_REQUEST_TIMEOUT", "45s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, "sk-env", cfg.Provider.APIKey)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "https://proxy.example.com", cfg.Provider.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Provider.RequestTimeout)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genstudio.yaml")
	body := "server:\n  log_level: debug\nstorage:\n  batch_writes: true\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("GENSTUDIO_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.True(t, cfg.Storage.BatchWrites)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("GENSTUDIO_STORAGE_DRIVER", "mongo")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestCellPrefersUserKey(t *testing.T) {
	cell := NewCell("https://api.example.com", "sk-env")

	assert.Equal(t, "sk-env", cell.Current().APIKey)
	assert.Equal(t, SourceEnv, cell.Source())

	cell.Set("sk-user")
	assert.Equal(t, Credential{BaseURL: "https://api.example.com", APIKey: "sk-user"}, cell.Current())
	assert.Equal(t, SourceUser, cell.Source())

	cell.Set("")
	assert.Equal(t, "sk-env", cell.Current().APIKey)
}

func TestCellWithoutAnyKey(t *testing.T) {
	cell := NewCell("https://api.example.com", "")

	assert.False(t, cell.Current().Valid())
	assert.Equal(t, "", cell.Source())
}
