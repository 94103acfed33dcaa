package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 256, cfg.Cache.Capacity)
	assert.Equal(t, 0.3, cfg.Router.SemanticThreshold)
	assert.Equal(t, "lexical", cfg.Router.Scorer)
}

func TestLoad(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default().Cache.Capacity, cfg.Cache.Capacity)
	})

	t.Run("yaml layers over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"cache:\n  capacity: 16\nrouter:\n  semantic_threshold: 0.5\n"), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 16, cfg.Cache.Capacity)
		assert.Equal(t, 0.5, cfg.Router.SemanticThreshold)
		// untouched defaults survive
		assert.Equal(t, "lexical", cfg.Router.Scorer)
	})

	t.Run("invalid capacity rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("cache:\n  capacity: -1\n"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("unknown scorer rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("router:\n  scorer: quantum\n"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Run("GEMINI_API_KEY enables genai scorer", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "key-123")

		cfg := Default()
		cfg.applyEnvOverrides()

		assert.Equal(t, "key-123", cfg.Router.GenAIAPIKey)
		assert.Equal(t, "genai", cfg.Router.Scorer)
	})

	t.Run("GEMINI_API_KEY does not override explicit off", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "key-123")

		cfg := Default()
		cfg.Router.Scorer = "off"
		cfg.applyEnvOverrides()

		assert.Equal(t, "off", cfg.Router.Scorer)
	})

	t.Run("SHEETNERD_AUDIT_DB enables persistence", func(t *testing.T) {
		t.Setenv("SHEETNERD_AUDIT_DB", "/tmp/audit.db")

		cfg := Default()
		cfg.applyEnvOverrides()

		assert.True(t, cfg.Audit.Enabled)
		assert.Equal(t, "/tmp/audit.db", cfg.Audit.DatabasePath)
	})

	t.Run("cache capacity override ignores garbage", func(t *testing.T) {
		t.Setenv("SHEETNERD_CACHE_CAPACITY", "lots")

		cfg := Default()
		cfg.applyEnvOverrides()

		assert.Equal(t, 256, cfg.Cache.Capacity)
	})
}
