// Package config provides configuration loading for ragdex.
//
// Configuration comes from an optional YAML file overridden by RAGDEX_*
// environment variables. The vector store section is passed through to the
// vectorstore factory untouched; backend-specific keys are validated there.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the complete ragdex configuration.
type Config struct {
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Observability ObservabilityConfig `koanf:"observability"`
	Log           LogConfig           `koanf:"log"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Type is the registered backend name (chromadb, chroma, chromem, qdrant).
	Type string `koanf:"type"`

	// PersistDir is the on-disk location for embedded backends.
	PersistDir string `koanf:"persist_dir"`

	// Options holds backend-specific keys (collection_name, mode, host, ...).
	Options map[string]any `koanf:"options"`
}

// EmbeddingsConfig points at the embedding server used by the CLI.
type EmbeddingsConfig struct {
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	APIKey  Secret        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// ObservabilityConfig holds OpenTelemetry and Prometheus settings.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
	MetricsAddr     string `koanf:"metrics_addr"`
}

// LogConfig holds the subset of logging settings exposed to users.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
//
// Backend option keys are not checked here; the vectorstore package owns
// their semantics.
func (c *Config) Validate() error {
	if c.VectorStore.Type == "" {
		return errors.New("vectorstore.type is required")
	}
	if c.Embeddings.BaseURL != "" && !strings.HasPrefix(c.Embeddings.BaseURL, "http://") &&
		!strings.HasPrefix(c.Embeddings.BaseURL, "https://") {
		return fmt.Errorf("embeddings.base_url must be an http(s) URL, got %q", c.Embeddings.BaseURL)
	}
	if c.Embeddings.Timeout < 0 {
		return errors.New("embeddings.timeout cannot be negative")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be 'json' or 'console', got %q", c.Log.Format)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chromadb"
	}
	if cfg.VectorStore.PersistDir == "" {
		cfg.VectorStore.PersistDir = "~/.local/share/ragdex/vectorstore"
	}
	if cfg.VectorStore.Options == nil {
		cfg.VectorStore.Options = map[string]any{}
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-base-en-v1.5"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = 30 * time.Second
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "ragdex"
	}
	if cfg.Observability.OTLPEndpoint == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4317"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}
