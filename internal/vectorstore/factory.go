package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragdex/internal/config"
)

// DefaultEnvPrefix is the CreateFromEnv prefix when none is given.
const DefaultEnvPrefix = "RAGDEX_VECTOR_STORE"

// NewStore creates and initializes the store described by the application
// config. Options are forwarded as backend configuration:
//
//	cfg, _ := config.LoadWithFile("")
//	store, err := vectorstore.NewStore(ctx, cfg, embedder, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewStore(ctx context.Context, cfg *config.Config, embedder Embedder, logger *zap.Logger) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	values := make(map[string]any, len(cfg.VectorStore.Options)+1)
	for k, v := range cfg.VectorStore.Options {
		values[k] = v
	}
	values["type"] = cfg.VectorStore.Type
	return CreateFromConfig(ctx, values, cfg.VectorStore.PersistDir, embedder, WithLogger(logger))
}

// CreateFromEnv builds a store from {prefix}_TYPE and {prefix}_<KEY>
// environment variables. Keys are lower-cased; "true"/"false" become bools
// and all-digit values become ints.
func (r *Registry) CreateFromEnv(ctx context.Context, persistDir string, embedder Embedder, prefix string, opts ...Option) (Store, error) {
	values, err := EnvConfig(prefix)
	if err != nil {
		return nil, err
	}
	return r.CreateFromConfig(ctx, values, persistDir, embedder, opts...)
}

// CreateFromEnv builds a store from the environment on the default registry.
func CreateFromEnv(ctx context.Context, persistDir string, embedder Embedder, prefix string, opts ...Option) (Store, error) {
	return DefaultRegistry().CreateFromEnv(ctx, persistDir, embedder, prefix, opts...)
}

// EnvConfig returns the flat configuration map found under prefix.
func EnvConfig(prefix string) (map[string]any, error) {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	prefix = strings.TrimSuffix(prefix, "_") + "_"

	// The delimiter never appears in env names, so keys stay flat.
	k := koanf.New("\x00")
	provider := env.ProviderWithValue(prefix, "\x00", func(key, value string) (string, interface{}) {
		name := strings.ToLower(strings.TrimPrefix(key, prefix))
		if name == "" {
			return "", nil
		}
		return name, coerceEnvValue(value)
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, fmt.Errorf("%w: loading environment: %v", ErrInvalidConfig, err)
	}
	return k.Raw(), nil
}

func coerceEnvValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if value != "" && strings.Trim(value, "0123456789") == "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return value
}
