// Package logging provides structured logging for ragdex on top of Zap.
//
// The wrapper adds:
//   - a Trace level (-2, below Debug)
//   - stderr output plus optional OpenTelemetry output via the otelzap bridge
//   - context field injection (trace_id, span_id, store.backend, store.collection)
//   - encoder-level secret redaction
//   - level-aware sampling (errors are never sampled)
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithStore(ctx, "qdrant", "ragdex")
//	logger.Info(ctx, "documents added", zap.Int("count", n))
//
// The vectorstore package takes a plain *zap.Logger; hand it
// logger.Underlying().
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	store, _ := vectorstore.Create(ctx, "chromadb", dir, emb, vectorstore.WithLogger(tl.Underlying()))
//	tl.AssertLogged(t, zapcore.InfoLevel, "collection created")
package logging
