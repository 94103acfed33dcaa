// Package config loads sheetnerd configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"sheetnerd/internal/logging"
)

// Config holds all sheetnerd configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Router configuration
	Router RouterConfig `yaml:"router"`

	// Document configuration
	Document DocumentConfig `yaml:"document"`

	// Cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Sandbox configuration
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Audit (change log persistence)
	Audit AuditConfig `yaml:"audit"`

	// Logging
	Logging logging.Config `yaml:"logging"`
}

// RouterConfig configures the intent router.
type RouterConfig struct {
	// SemanticThreshold is the default score a skill must reach in the
	// semantic pass. Per-skill thresholds override it.
	SemanticThreshold float64 `yaml:"semantic_threshold"`

	// Scorer selects the semantic scorer: "off", "lexical" or "genai".
	Scorer string `yaml:"scorer"`

	// GenAIAPIKey authenticates the genai scorer. Usually set via
	// GEMINI_API_KEY rather than the file.
	GenAIAPIKey string `yaml:"genai_api_key"`

	// GenAIModel is the embedding model name.
	GenAIModel string `yaml:"genai_model"`
}

// DocumentConfig configures the document controller.
type DocumentConfig struct {
	// WatchSource enables the fsnotify watcher on the loaded file.
	WatchSource bool `yaml:"watch_source"`

	// ChangeLogPayloadLimit caps the number of cells captured in a
	// change record's before/after payload; larger regions store a
	// summary only.
	ChangeLogPayloadLimit int `yaml:"change_log_payload_limit"`

	// PreviewRows is the default row count for data previews.
	PreviewRows int `yaml:"preview_rows"`
}

// CacheConfig configures the read cache.
type CacheConfig struct {
	// Capacity bounds the number of cached results (LRU beyond it).
	Capacity int `yaml:"capacity"`
}

// SandboxConfig configures the code-execution sandbox.
type SandboxConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
	MaxMemoryBytes int64         `yaml:"max_memory_bytes"`
}

// AuditConfig configures change-log persistence.
type AuditConfig struct {
	// Enabled turns on SQLite persistence of change records.
	Enabled bool `yaml:"enabled"`

	// DatabasePath is the SQLite file location.
	DatabasePath string `yaml:"database_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Name:    "sheetnerd",
		Version: "0.1.0",
		Router: RouterConfig{
			SemanticThreshold: 0.3,
			Scorer:            "lexical",
			GenAIModel:        "gemini-embedding-001",
		},
		Document: DocumentConfig{
			ChangeLogPayloadLimit: 64,
			PreviewRows:           10,
		},
		Cache: CacheConfig{
			Capacity: 256,
		},
		Sandbox: SandboxConfig{
			Timeout:        5 * time.Second,
			MaxOutputBytes: 1 << 20,
			MaxMemoryBytes: 256 << 20,
		},
		Audit: AuditConfig{
			DatabasePath: ".sheetnerd/audit.db",
		},
		Logging: logging.Config{
			Level: "info",
		},
	}
}

// Load reads YAML from path, layered over Default, then applies
// environment overrides. A missing file is not an error: defaults plus
// environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// defaults only
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps well-known environment variables onto the config.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Router.GenAIAPIKey = v
		if c.Router.Scorer == "lexical" || c.Router.Scorer == "" {
			c.Router.Scorer = "genai"
		}
	}
	if v := os.Getenv("SHEETNERD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SHEETNERD_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cache.Capacity = n
		}
	}
	if v := os.Getenv("SHEETNERD_AUDIT_DB"); v != "" {
		c.Audit.Enabled = true
		c.Audit.DatabasePath = v
	}
}

func (c *Config) validate() error {
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Router.SemanticThreshold < 0 || c.Router.SemanticThreshold > 1 {
		return fmt.Errorf("semantic threshold must be in [0,1], got %g", c.Router.SemanticThreshold)
	}
	switch c.Router.Scorer {
	case "", "off", "lexical", "genai":
	default:
		return fmt.Errorf("unknown scorer %q (use off, lexical or genai)", c.Router.Scorer)
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("sandbox timeout must be positive, got %s", c.Sandbox.Timeout)
	}
	return nil
}
