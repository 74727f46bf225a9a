package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragdex/internal/logging"
)

// probeDimension returns the embedding size: the configured size if set,
// then Dimension() if the embedder has it, then the length of a test
// embedding. If all fail it logs a warning and returns DefaultVectorSize.
func probeDimension(ctx context.Context, configured int, emb Embedder, logger *logging.Logger) int {
	if configured > 0 {
		return configured
	}
	if d, ok := emb.(Dimensioner); ok {
		if n := d.Dimension(); n > 0 {
			return n
		}
	}

	vec, err := emb.EmbedQuery(ctx, "test")
	if err == nil && len(vec) > 0 {
		return len(vec)
	}
	if err == nil {
		err = fmt.Errorf("embedder returned an empty vector")
	}
	logger.Warn(ctx, "could not detect vector size, using default",
		zap.Error(err),
		zap.Int("vector_size", DefaultVectorSize),
	)
	return DefaultVectorSize
}
