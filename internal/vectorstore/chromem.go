package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/ragdex/internal/logging"
)

// BackendChromem is the metrics and log label of the embedded store.
const BackendChromem = "chromadb"

// ManifestFile marks a persist directory as initialized by ChromemStore.
const ManifestFile = "ragdex.manifest.yaml"

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("ragdex.vectorstore.chromem")

// manifest is the persistence marker written on first initialization.
// Dimension is filled in by the first add.
type manifest struct {
	Version    int       `yaml:"version"`
	Collection string    `yaml:"collection"`
	Compress   bool      `yaml:"compress"`
	Dimension  int       `yaml:"dimension,omitempty"`
	CreatedAt  time.Time `yaml:"created_at"`
}

// ChromemStore implements Store over chromem-go, an embedded vector
// database that persists every write to gob files under the persist
// directory. It is single process: two stores must not share a directory.
//
// chromem-go stores metadata as map[string]string; values are written with
// a type tag and decoded on the way out, so they keep their Go types.
type ChromemStore struct {
	persistDir string
	embedder   Embedder
	config     Config
	logger     *logging.Logger
	inst       instrumentation

	db         *chromem.DB
	collection *chromem.Collection
	manifest   manifest
	dimension  int
}

// NewChromemStore creates an uninitialized ChromemStore rooted at persistDir.
func NewChromemStore(persistDir string, embedder Embedder, cfg Config, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if persistDir == "" {
		return nil, fmt.Errorf("%w: persist directory is required", ErrInvalidConfig)
	}

	cfg.ApplyDefaults()
	if err := cfg.validateCollection(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expanded, err := expandPath(persistDir)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	return &ChromemStore{
		persistDir: expanded,
		embedder:   embedder,
		config:     cfg,
		logger:     logging.Wrap(logger),
		inst: instrumentation{
			tracer:     chromemTracer,
			backend:    BackendChromem,
			collection: cfg.CollectionName,
		},
	}, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// Initialize loads the database if the manifest exists, otherwise creates
// the directory, the collection and the manifest.
func (s *ChromemStore) Initialize(ctx context.Context) (err error) {
	if s.collection != nil {
		return nil
	}
	ctx, done := s.inst.start(ctx, "ChromemStore.Initialize")
	defer done(&err)

	markerPath := filepath.Join(s.persistDir, ManifestFile)
	m, err := readManifest(markerPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if m != nil {
		compress := m.Compress
		if compress != s.config.Compress {
			s.logger.Warn(ctx, "compress setting differs from existing store, using stored value",
				zap.Bool("stored", m.Compress),
				zap.Bool("configured", s.config.Compress),
			)
		}
		db, err := chromem.NewPersistentDB(s.persistDir, compress)
		if err != nil {
			return fmt.Errorf("%w: loading chromem DB: %v", ErrBackendUnavailable, err)
		}
		col := db.GetCollection(s.config.CollectionName, s.embeddingFunc())
		if col == nil {
			s.logger.Info(ctx, "collection not found in existing store, creating it",
				zap.String("path", s.persistDir),
			)
			col, err = db.CreateCollection(s.config.CollectionName, s.config.CollectionMetadata, s.embeddingFunc())
			if err != nil {
				return fmt.Errorf("%w: creating collection: %v", ErrBackendUnavailable, err)
			}
		}
		s.db, s.collection = db, col
		s.manifest, s.dimension = *m, m.Dimension
		s.logger.Info(ctx, "loaded existing chromem store",
			zap.String("path", s.persistDir),
			zap.Int("documents", col.Count()),
			zap.Int("dimension", m.Dimension),
		)
		return nil
	}

	if err := os.MkdirAll(s.persistDir, 0o755); err != nil {
		return fmt.Errorf("%w: creating directory %s: %v", ErrBackendUnavailable, s.persistDir, err)
	}
	db, err := chromem.NewPersistentDB(s.persistDir, s.config.Compress)
	if err != nil {
		return fmt.Errorf("%w: creating chromem DB: %v", ErrBackendUnavailable, err)
	}
	col, err := db.GetOrCreateCollection(s.config.CollectionName, s.config.CollectionMetadata, s.embeddingFunc())
	if err != nil {
		return fmt.Errorf("%w: creating collection: %v", ErrBackendUnavailable, err)
	}
	m = &manifest{
		Version:    1,
		Collection: s.config.CollectionName,
		Compress:   s.config.Compress,
		CreatedAt:  timeNow().UTC(),
	}
	if err := writeManifest(markerPath, *m); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	s.db, s.collection, s.manifest = db, col, *m
	s.logger.Info(ctx, "created chromem store",
		zap.String("path", s.persistDir),
		zap.Bool("compress", s.config.Compress),
	)
	return nil
}

// readManifest returns nil, nil when the file does not exist.
func readManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}

func writeManifest(path string, m manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// AddDocuments embeds docs in one batch and stores them under new UUIDs.
func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document) (ids []string, err error) {
	if s.collection == nil {
		return nil, ErrNotInitialized
	}
	ctx, done := s.inst.start(ctx, "ChromemStore.AddDocuments")
	defer done(&err)

	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	texts := make([]string, len(docs))
	metadatas := make([]map[string]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
		if metadatas[i], err = metadataToChromem(doc.Metadata); err != nil {
			return nil, fmt.Errorf("%w: document %d: %v", ErrInvalidArgument, i, err)
		}
	}
	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, backendError("embedding documents", err)
	}
	if len(embeddings) != len(docs) {
		return nil, backendError("embedding documents", fmt.Errorf("got %d embeddings for %d documents", len(embeddings), len(docs)))
	}

	ids = make([]string, len(docs))
	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		ids[i] = uuid.NewString()
		chromemDocs[i] = chromem.Document{
			ID:        ids[i],
			Content:   doc.Content,
			Metadata:  metadatas[i],
			Embedding: embeddings[i],
		}
	}

	// Concurrency of 1 since embeddings are already computed.
	if err := s.collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return nil, backendError("adding documents", err)
	}
	if s.dimension == 0 && len(embeddings[0]) > 0 {
		s.dimension = len(embeddings[0])
	}
	if s.manifest.Dimension == 0 && s.dimension > 0 {
		s.recordDimension(ctx)
	}

	DocumentsAdded.WithLabelValues(BackendChromem).Add(float64(len(ids)))
	s.logger.Debug(ctx, "added documents to chromem", zap.Int("count", len(ids)))
	return ids, nil
}

// recordDimension stores the embedding size in the manifest so a reopened
// store can scan metadata without calling the embedder. A write failure
// only costs a probe on the next open.
func (s *ChromemStore) recordDimension(ctx context.Context) {
	m := s.manifest
	m.Dimension = s.dimension
	if err := writeManifest(filepath.Join(s.persistDir, ManifestFile), m); err != nil {
		s.logger.Warn(ctx, "could not record dimension in manifest", zap.Error(err))
		return
	}
	s.manifest = m
}

// SimilaritySearch returns up to k documents, most similar first.
func (s *ChromemStore) SimilaritySearch(ctx context.Context, query string, k int, filter Filter) ([]Document, error) {
	scored, err := s.SimilaritySearchWithScore(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, len(scored))
	for i, sd := range scored {
		docs[i] = sd.Document
	}
	return docs, nil
}

// SimilaritySearchWithScore scores by cosine similarity, higher is better.
// Each DNF clause of filter is queried separately and the hits merged.
func (s *ChromemStore) SimilaritySearchWithScore(ctx context.Context, query string, k int, filter Filter) (results []ScoredDocument, err error) {
	if s.collection == nil {
		return nil, ErrNotInitialized
	}
	ctx, done := s.inst.start(ctx, "ChromemStore.SimilaritySearchWithScore")
	defer done(&err)

	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidArgument, k)
	}
	clauses, err := s.where(filter)
	if err != nil {
		return nil, err
	}

	results = []ScoredDocument{}
	count := s.collection.Count()
	if count == 0 || len(clauses) == 0 {
		return results, nil
	}
	n := min(k, count)

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, backendError("embedding query", err)
	}

	hits, err := s.queryClauses(ctx, vec, n, clauses)
	if err != nil {
		return nil, err
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity == hits[j].Similarity {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	for _, h := range hits {
		results = append(results, ScoredDocument{
			Document: Document{Content: h.Content, Metadata: metadataFromChromem(h.Metadata)},
			Score:    h.Similarity,
		})
	}
	s.logger.Debug(ctx, "searched chromem collection",
		zap.Int("k", k),
		zap.Int("clauses", len(clauses)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// queryClauses runs one native query per clause and dedupes by id.
func (s *ChromemStore) queryClauses(ctx context.Context, vec []float32, n int, clauses []map[string]string) ([]chromem.Result, error) {
	seen := make(map[string]bool)
	var hits []chromem.Result
	for _, where := range clauses {
		res, err := s.collection.QueryEmbedding(ctx, vec, n, where, nil)
		if err != nil {
			return nil, backendError("querying collection", err)
		}
		for _, r := range res {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			hits = append(hits, r)
		}
	}
	return hits, nil
}

// Delete removes every document matching filter.
func (s *ChromemStore) Delete(ctx context.Context, filter Filter) (err error) {
	if s.collection == nil {
		return ErrNotInitialized
	}
	ctx, done := s.inst.start(ctx, "ChromemStore.Delete")
	defer done(&err)

	if len(filter) == 0 {
		return fmt.Errorf("%w: delete requires a non-empty filter", ErrInvalidFilter)
	}
	clauses, err := s.where(filter)
	if err != nil {
		return err
	}

	before := s.collection.Count()
	for _, where := range clauses {
		if len(where) == 0 {
			continue
		}
		if err := s.collection.Delete(ctx, where, nil); err != nil {
			return backendError("deleting documents", err)
		}
	}
	s.logger.Debug(ctx, "deleted documents from chromem",
		zap.Int("deleted", before-s.collection.Count()),
	)
	return nil
}

// Count returns the number of documents in the collection.
func (s *ChromemStore) Count(ctx context.Context) int {
	if s.collection == nil {
		return 0
	}
	return s.collection.Count()
}

// GetByFilter fetches matching documents sorted by id.
func (s *ChromemStore) GetByFilter(ctx context.Context, filter Filter, limit int) (result *GetResult, err error) {
	if s.collection == nil {
		return nil, ErrNotInitialized
	}
	ctx, done := s.inst.start(ctx, "ChromemStore.GetByFilter")
	defer done(&err)

	clauses, err := s.where(filter)
	if err != nil {
		return nil, err
	}

	result = newGetResult()
	count := s.collection.Count()
	if count == 0 || len(clauses) == 0 {
		return result, nil
	}

	// chromem-go has no plain metadata scan, so query with a unit vector
	// for every document and discard the ranking. The manifest records the
	// dimension; stores written before it did fall back to probing.
	if s.dimension == 0 {
		s.dimension = probeDimension(ctx, s.config.VectorSize, s.embedder, s.logger)
	}
	probe := make([]float32, s.dimension)
	probe[0] = 1

	hits, err := s.queryClauses(ctx, probe, count, clauses)
	if err != nil {
		return nil, err
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ID < hits[j].ID })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	for _, h := range hits {
		result.add(h.ID, h.Content, metadataFromChromem(h.Metadata))
	}
	return result, nil
}

// Persist is a no-op: chromem-go writes every change to disk synchronously.
func (s *ChromemStore) Persist(ctx context.Context) error {
	if s.collection == nil {
		return ErrNotInitialized
	}
	s.logger.Debug(logging.WithStore(ctx, BackendChromem, s.config.CollectionName),
		"chromem persists on write, nothing to flush")
	return nil
}

// Name returns "ChromaDB".
func (s *ChromemStore) Name() string {
	return "ChromaDB"
}

// CollectionName returns the configured collection name.
func (s *ChromemStore) CollectionName() string {
	return s.config.CollectionName
}

// Collection returns the native collection handle, nil before Initialize.
func (s *ChromemStore) Collection() *chromem.Collection {
	return s.collection
}

// DB returns the native database handle, nil before Initialize.
func (s *ChromemStore) DB() *chromem.DB {
	return s.db
}

func (s *ChromemStore) where(filter Filter) ([]map[string]string, error) {
	n, err := parseFilter(filter)
	if err != nil {
		return nil, err
	}
	return toChromemWhere(n)
}

// Ensure ChromemStore implements Store interface.
var _ Store = (*ChromemStore)(nil)
