//go:build !noqdrant

package vectorstore

import "go.uber.org/zap"

func init() {
	builtins[BackendQdrant] = func(persistDir string, embedder Embedder, cfg Config, logger *zap.Logger) (Store, error) {
		return NewQdrantStore(persistDir, embedder, cfg, logger)
	}
}
