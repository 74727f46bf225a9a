// Package embeddings is an HTTP client for a Text Embeddings Inference
// (TEI) server. Service satisfies vectorstore.Embedder and reports its
// vector dimension, so stores can size new collections without a probe
// request.
package embeddings
