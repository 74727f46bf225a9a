package vectorstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragdex/internal/logging"
	qclient "github.com/fyrsmithlabs/ragdex/internal/qdrant"
)

// BackendQdrant is the metrics and log label of the points database store.
const BackendQdrant = "qdrant"

// ContentKey is the payload key holding document text.
const ContentKey = "page_content"

// scrollPageSize is the GetByFilter page size.
const scrollPageSize = 100

var qdrantTracer = otel.Tracer("ragdex.vectorstore.qdrant")

// QdrantStore implements Store over a points database client.
//
// Mode selects the client: local is an embedded client persisting to
// SQLite under the persist directory, memory is the same client without
// storage, remote is a gRPC connection to a Qdrant server. Each point
// carries the document text under ContentKey next to its metadata.
//
// Initialize creates the collection if it is missing. The existence check
// and the create are not atomic: two stores initializing the same new
// collection at once may race.
type QdrantStore struct {
	persistDir string
	embedder   Embedder
	config     Config
	logger     *logging.Logger
	inst       instrumentation

	client     qclient.Client
	vectorSize int
}

// NewQdrantStore creates an uninitialized QdrantStore. The mode and
// distance are validated here, before any I/O.
func NewQdrantStore(persistDir string, embedder Embedder, cfg Config, logger *zap.Logger) (*QdrantStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if cfg.Mode == ModeLocal && persistDir == "" {
		return nil, fmt.Errorf("%w: local mode requires a persist directory", ErrInvalidConfig)
	}

	expanded, err := expandPath(persistDir)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	return &QdrantStore{
		persistDir: expanded,
		embedder:   embedder,
		config:     cfg,
		logger:     logging.Wrap(logger),
		inst: instrumentation{
			tracer:     qdrantTracer,
			backend:    BackendQdrant,
			collection: cfg.CollectionName,
		},
	}, nil
}

func qdrantDistance(name string) qdrant.Distance {
	switch name {
	case DistanceEuclid:
		return qdrant.Distance_Euclid
	case DistanceDot:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

func (s *QdrantStore) connect(ctx context.Context) (qclient.Client, error) {
	switch s.config.Mode {
	case ModeLocal:
		s.logger.Info(ctx, "creating local points client", zap.String("path", s.persistDir))
		return qclient.NewLocalClient(ctx, s.persistDir, s.logger)
	case ModeMemory:
		s.logger.Info(ctx, "creating in-memory points client")
		return qclient.NewMemoryClient(s.logger), nil
	case ModeRemote:
		cc := s.clientConfig()
		if !s.config.PreferGRPC {
			s.logger.Debug(ctx, "prefer_grpc is false but only gRPC is supported, using gRPC")
		}
		s.logger.Info(ctx, "connecting to remote points database",
			zap.String("host", cc.Host),
			zap.Int("port", cc.Port),
			zap.Bool("tls", cc.UseTLS),
			zap.Int("retry_attempts", cc.RetryAttempts),
			logging.Secret("api_key", s.config.APIKey),
		)
		return qclient.NewGRPCClient(ctx, cc, s.logger)
	default:
		return nil, fmt.Errorf("%w: invalid mode %q", ErrInvalidConfig, s.config.Mode)
	}
}

// clientConfig builds the gRPC client config. A url overrides host and TLS;
// its port is used unless it is the REST port, in which case grpc_port is.
func (s *QdrantStore) clientConfig() *qclient.ClientConfig {
	cc := qclient.DefaultClientConfig()
	cc.Host = s.config.Host
	cc.Port = s.config.GRPCPort
	cc.UseTLS = s.config.HTTPS
	cc.APIKey = s.config.APIKey.Value()
	cc.RetryAttempts = s.config.RetryAttempts

	if s.config.URL != "" {
		// Validated in NewQdrantStore.
		host, port, tls, _ := parseEndpoint(s.config.URL)
		cc.Host = host
		cc.UseTLS = tls
		if port != 0 && port != s.config.Port {
			cc.Port = port
		}
	}
	return cc
}

// Initialize connects and provisions the collection.
func (s *QdrantStore) Initialize(ctx context.Context) (err error) {
	if s.client != nil {
		return nil
	}
	ctx, done := s.inst.start(ctx, "QdrantStore.Initialize")
	defer done(&err)

	client, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	size, err := s.provision(ctx, client)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	s.client = client
	s.vectorSize = size
	return nil
}

func (s *QdrantStore) provision(ctx context.Context, client qclient.Client) (int, error) {
	name := s.config.CollectionName
	names, err := client.ListCollections(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing collections: %w", err)
	}

	if slices.Contains(names, name) {
		info, err := client.CollectionInfo(ctx, name)
		if err != nil {
			return 0, fmt.Errorf("reading collection %s: %w", name, err)
		}
		s.logger.Info(ctx, "using existing collection",
			zap.Uint64("vector_size", info.VectorSize),
			zap.Uint64("points", info.PointsCount),
		)
		return int(info.VectorSize), nil
	}

	size := probeDimension(ctx, s.config.VectorSize, s.embedder, s.logger)
	if err := client.CreateCollection(ctx, name, uint64(size), qdrantDistance(s.config.Distance)); err != nil {
		return 0, fmt.Errorf("creating collection %s: %w", name, err)
	}
	s.logger.Info(ctx, "created collection",
		zap.Int("vector_size", size),
		zap.String("distance", s.config.Distance),
	)
	return size, nil
}

// AddDocuments embeds docs and upserts them as points with new UUIDs.
func (s *QdrantStore) AddDocuments(ctx context.Context, docs []Document) (ids []string, err error) {
	if s.client == nil {
		return nil, ErrNotInitialized
	}
	ctx, done := s.inst.start(ctx, "QdrantStore.AddDocuments")
	defer done(&err)

	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, backendError("embedding documents", err)
	}
	if len(embeddings) != len(docs) {
		return nil, backendError("embedding documents", fmt.Errorf("got %d embeddings for %d documents", len(embeddings), len(docs)))
	}

	ids = make([]string, len(docs))
	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		payload, err := toPayload(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: document %d: %v", ErrInvalidArgument, i, err)
		}
		ids[i] = uuid.NewString()
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(ids[i]),
			Vectors: qdrant.NewVectorsDense(embeddings[i]),
			Payload: payload,
		}
	}

	if err := s.client.Upsert(ctx, s.config.CollectionName, points); err != nil {
		return nil, backendError("upserting points", err)
	}

	DocumentsAdded.WithLabelValues(BackendQdrant).Add(float64(len(ids)))
	s.logger.Debug(ctx, "upserted points", zap.Int("count", len(ids)))
	return ids, nil
}

// toPayload stores canonical metadata, so integral floats land as
// integers and match integer filters.
func toPayload(doc Document) (map[string]*qdrant.Value, error) {
	metadata, err := canonicalMetadata(doc.Metadata)
	if err != nil {
		return nil, err
	}
	raw := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		raw[k] = v
	}
	raw[ContentKey] = doc.Content
	return qdrant.TryValueMap(raw)
}

// fromPayload splits a payload into text and metadata.
func fromPayload(payload map[string]*qdrant.Value) (string, map[string]any) {
	metadata := qclient.PayloadMap(payload)
	content, _ := metadata[ContentKey].(string)
	delete(metadata, ContentKey)
	return content, metadata
}

// SimilaritySearch returns up to k documents, most similar first.
func (s *QdrantStore) SimilaritySearch(ctx context.Context, query string, k int, filter Filter) ([]Document, error) {
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

// SimilaritySearchWithScore returns the backend score; for EUCLID lower is
// better, otherwise higher is.
func (s *QdrantStore) SimilaritySearchWithScore(ctx context.Context, query string, k int, filter Filter) (results []ScoredDocument, err error) {
	if s.client == nil {
		return nil, ErrNotInitialized
	}
	ctx, done := s.inst.start(ctx, "QdrantStore.SimilaritySearchWithScore")
	defer done(&err)

	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidArgument, k)
	}
	qf, err := ToQdrantFilter(filter)
	if err != nil {
		return nil, err
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, backendError("embedding query", err)
	}

	points, err := s.client.Search(ctx, s.config.CollectionName, vec, uint64(k), qf)
	if err != nil {
		s.logger.Error(ctx, "points search failed", zap.Error(err))
		return nil, backendError("searching points", err)
	}

	results = make([]ScoredDocument, 0, len(points))
	for _, p := range points {
		content, metadata := fromPayload(p.GetPayload())
		results = append(results, ScoredDocument{
			Document: Document{Content: content, Metadata: metadata},
			Score:    p.GetScore(),
		})
	}
	s.logger.Debug(ctx, "searched points", zap.Int("k", k), zap.Int("results", len(results)))
	return results, nil
}

// Delete removes every point matching filter.
func (s *QdrantStore) Delete(ctx context.Context, filter Filter) (err error) {
	if s.client == nil {
		return ErrNotInitialized
	}
	ctx, done := s.inst.start(ctx, "QdrantStore.Delete")
	defer done(&err)

	if len(filter) == 0 {
		return fmt.Errorf("%w: delete requires a non-empty filter", ErrInvalidFilter)
	}
	qf, err := ToQdrantFilter(filter)
	if err != nil {
		return err
	}
	if err := s.client.Delete(ctx, s.config.CollectionName, qf); err != nil {
		s.logger.Error(ctx, "points delete failed", zap.Error(err))
		return backendError("deleting points", err)
	}
	return nil
}

// Count returns the collection point count, or 0 if it cannot be read.
func (s *QdrantStore) Count(ctx context.Context) int {
	if s.client == nil {
		return 0
	}
	ctx = logging.WithStore(ctx, BackendQdrant, s.config.CollectionName)
	info, err := s.client.CollectionInfo(ctx, s.config.CollectionName)
	if err != nil {
		s.logger.Error(ctx, "failed to count points", zap.Error(err))
		return 0
	}
	return int(info.PointsCount)
}

// GetByFilter scrolls through matching points until limit is met or the
// backend has no more pages.
func (s *QdrantStore) GetByFilter(ctx context.Context, filter Filter, limit int) (result *GetResult, err error) {
	if s.client == nil {
		return nil, ErrNotInitialized
	}
	ctx, done := s.inst.start(ctx, "QdrantStore.GetByFilter")
	defer done(&err)

	qf, err := ToQdrantFilter(filter)
	if err != nil {
		return nil, err
	}

	result = newGetResult()
	var offset *qdrant.PointId
	for pages := 0; ; pages++ {
		pageSize := scrollPageSize
		if limit > 0 {
			pageSize = min(pageSize, limit-result.Len())
		}
		points, next, err := s.client.Scroll(ctx, s.config.CollectionName, qf, uint32(pageSize), offset)
		if err != nil {
			s.logger.Error(ctx, "points scroll failed", zap.Error(err), zap.Int("page", pages))
			return nil, backendError("scrolling points", err)
		}
		for _, p := range points {
			content, metadata := fromPayload(p.GetPayload())
			result.add(qclient.PointIDString(p.GetId()), content, metadata)
		}
		if next == nil || (limit > 0 && result.Len() >= limit) {
			break
		}
		offset = next
	}
	return result, nil
}

// Persist is a no-op: the points client persists every write itself.
func (s *QdrantStore) Persist(ctx context.Context) error {
	if s.client == nil {
		return ErrNotInitialized
	}
	s.logger.Debug(logging.WithStore(ctx, BackendQdrant, s.config.CollectionName),
		"points database persists automatically", zap.String("mode", s.config.Mode))
	return nil
}

// Name returns "Qdrant (<mode>)".
func (s *QdrantStore) Name() string {
	return fmt.Sprintf("Qdrant (%s)", s.config.Mode)
}

// CollectionName returns the configured collection name.
func (s *QdrantStore) CollectionName() string {
	return s.config.CollectionName
}

// VectorSize returns the collection's vector size, 0 before Initialize.
func (s *QdrantStore) VectorSize() int {
	return s.vectorSize
}

// Client returns the native points client, nil before Initialize.
func (s *QdrantStore) Client() qclient.Client {
	return s.client
}

// Close releases the points client.
func (s *QdrantStore) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// Ensure QdrantStore implements Store interface.
var _ Store = (*QdrantStore)(nil)
