// Package vectorstore provides a backend-agnostic vector store with a
// uniform metadata filter language and a registry-based factory.
//
// Every backend implements Store. Two are built in:
//
// ChromemStore ("chromadb", "chroma", "chromem"):
//   - Embedded chromem-go storage persisted under a directory
//   - A ragdex.manifest.yaml marker decides between load and create
//   - Metadata is stored with a type tag and decoded back to Go types
//
// QdrantStore ("qdrant", unless built with the noqdrant tag):
//   - local: embedded points client persisted to SQLite
//   - memory: the same client, ephemeral
//   - remote: Qdrant server over gRPC, optional API key and TLS
//
// # Usage
//
//	store, err := vectorstore.Create(ctx, "qdrant", "/data/ragdex", embedder,
//	    vectorstore.WithConfig(map[string]any{"mode": "local", "collection_name": "books"}),
//	    vectorstore.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//
//	ids, err := store.AddDocuments(ctx, []vectorstore.Document{
//	    {Content: "alpha beta", Metadata: map[string]any{"book": "x"}},
//	})
//
//	docs, err := store.SimilaritySearch(ctx, "alpha", 4, vectorstore.Filter{
//	    "$or": []any{
//	        vectorstore.Filter{"book": "x"},
//	        vectorstore.Filter{"book": "y"},
//	    },
//	})
//
// Stores are also built from a flat map (CreateFromConfig) or from
// environment variables (CreateFromEnv):
//
//	RAGDEX_VECTOR_STORE_TYPE=qdrant
//	RAGDEX_VECTOR_STORE_MODE=remote
//	RAGDEX_VECTOR_STORE_URL=https://qdrant.internal:6334
//	RAGDEX_VECTOR_STORE_API_KEY=...
//
// # Filters
//
// Filters are equality, $eq, $and and $or over metadata keys. Sibling keys
// are ANDed. Results are identical across backends; ranking is not.
//
// # Limitations
//
// Initialize is not safe to call concurrently. Collection provisioning is
// check-then-create, so concurrent first-time initialization of the same
// collection may race. Embedded backends assume one process per directory.
package vectorstore
