package vectorstore

import (
	"context"
)

// Embedder generates vector embeddings from text.
//
// Embeddings are produced outside this package; stores only call the
// embedder they were constructed with. Implementations must be safe for
// concurrent use.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns a slice of embeddings (one per input text) or an error.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Dimensioner is optionally implemented by an Embedder that knows its
// output size without embedding anything.
type Dimensioner interface {
	Dimension() int
}

// Store is the contract every backend satisfies.
//
// A Store starts uninitialized. Initialize moves it to initialized exactly
// once; every other method returns ErrNotInitialized (or 0 for Count)
// before that and does not touch the backend.
//
// Stores are not safe for concurrent first-time Initialize.
type Store interface {
	// Initialize establishes or loads the backend. Calling it again on an
	// initialized store is a no-op.
	Initialize(ctx context.Context) error

	// AddDocuments embeds and stores docs, returning new ids in input order.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// SimilaritySearch returns up to k documents, most similar first.
	SimilaritySearch(ctx context.Context, query string, k int, filter Filter) ([]Document, error)

	// SimilaritySearchWithScore is SimilaritySearch with backend scores.
	// Scores are monotonic with rank but not comparable across backends.
	SimilaritySearchWithScore(ctx context.Context, query string, k int, filter Filter) ([]ScoredDocument, error)

	// Delete removes every document matching filter. An empty filter is
	// rejected with ErrInvalidFilter; zero matches is not an error.
	Delete(ctx context.Context, filter Filter) error

	// Count returns the number of stored chunks, or 0 if the backend fails.
	Count(ctx context.Context) int

	// GetByFilter fetches matching documents without ranking. A limit <= 0
	// means unlimited.
	GetByFilter(ctx context.Context, filter Filter, limit int) (*GetResult, error)

	// Persist flushes to durable storage where the backend needs it.
	Persist(ctx context.Context) error

	// Name is a human-readable backend name.
	Name() string
}
