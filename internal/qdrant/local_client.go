package qdrant

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/ragdex/internal/logging"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// LocalDBFile is the SQLite file a persistent LocalClient keeps in its directory.
const LocalDBFile = "qdrant.sqlite"

type collection struct {
	vectorSize uint64
	distance   qdrant.Distance
	points     map[string]*qdrant.PointStruct
}

func newCollection(size uint64, distance qdrant.Distance) *collection {
	return &collection{
		vectorSize: size,
		distance:   distance,
		points:     make(map[string]*qdrant.PointStruct),
	}
}

// LocalClient implements Client in process. Search is an exact scan over
// every point, which suits the corpus sizes an embedded store serves.
//
// With a directory, every write goes through to a SQLite file and state is
// reloaded on open. Without one, the client is purely in memory.
// A directory must not be opened by more than one process at a time.
type LocalClient struct {
	mu          sync.RWMutex
	collections map[string]*collection
	store       *storage
	path        string
	closed      bool
	logger      *logging.Logger
}

// NewMemoryClient returns an ephemeral LocalClient.
func NewMemoryClient(logger *logging.Logger) *LocalClient {
	if logger == nil {
		logger = logging.Wrap(nil)
	}
	return &LocalClient{
		collections: make(map[string]*collection),
		logger:      logger,
	}
}

// NewLocalClient opens (or creates) a persistent LocalClient rooted at dir.
func NewLocalClient(ctx context.Context, dir string, logger *logging.Logger) (*LocalClient, error) {
	if dir == "" {
		return nil, fmt.Errorf("local client requires a directory")
	}
	if logger == nil {
		logger = logging.Wrap(nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, LocalDBFile)
	st, err := openStorage(ctx, path)
	if err != nil {
		return nil, err
	}
	collections, err := st.load(ctx)
	if err != nil {
		_ = st.close()
		return nil, err
	}

	points := 0
	for _, c := range collections {
		points += len(c.points)
	}
	logger.Debug(ctx, "local points database opened",
		zap.String("path", path),
		zap.Int("collections", len(collections)),
		zap.Int("points", points),
	)

	return &LocalClient{
		collections: collections,
		store:       st,
		path:        path,
		logger:      logger,
	}, nil
}

// Persistent reports whether writes go to disk.
func (c *LocalClient) Persistent() bool {
	return c.store != nil
}

// Path returns the SQLite file path, or "" in memory.
func (c *LocalClient) Path() string {
	return c.path
}

// Health reports ErrClosed after Close.
func (c *LocalClient) Health(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// ListCollections returns collection names in sorted order.
func (c *LocalClient) ListCollections(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	names := make([]string, 0, len(c.collections))
	for name := range c.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CreateCollection creates a collection.
func (c *LocalClient) CreateCollection(ctx context.Context, name string, vectorSize uint64, distance qdrant.Distance) error {
	if name == "" {
		return fmt.Errorf("collection name is required")
	}
	if vectorSize == 0 {
		return fmt.Errorf("vector size must be > 0")
	}
	if distance == qdrant.Distance_UnknownDistance {
		distance = qdrant.Distance_Cosine
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, ok := c.collections[name]; ok {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}
	if c.store != nil {
		if err := c.store.createCollection(ctx, name, vectorSize, distance); err != nil {
			return err
		}
	}
	c.collections[name] = newCollection(vectorSize, distance)
	return nil
}

// DeleteCollection removes a collection. Deleting a missing collection is
// an error.
func (c *LocalClient) DeleteCollection(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, ok := c.collections[name]; !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if c.store != nil {
		if err := c.store.deleteCollection(ctx, name); err != nil {
			return err
		}
	}
	delete(c.collections, name)
	return nil
}

// CollectionInfo returns collection metadata and exact point count.
func (c *LocalClient) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	col, err := c.collection(name)
	if err != nil {
		return nil, err
	}
	return &CollectionInfo{
		Name:        name,
		PointsCount: uint64(len(col.points)),
		VectorSize:  col.vectorSize,
		Distance:    col.distance,
	}, nil
}

// Upsert inserts or replaces points. Every vector must match the
// collection's size; nothing is written if one does not.
func (c *LocalClient) Upsert(ctx context.Context, name string, points []*qdrant.PointStruct) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	col, err := c.collection(name)
	if err != nil {
		return err
	}

	for _, p := range points {
		if PointIDString(p.GetId()) == "" {
			return fmt.Errorf("point id is required")
		}
		if got := uint64(len(DenseVector(p.GetVectors()))); got != col.vectorSize {
			return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, col.vectorSize, got)
		}
	}

	if c.store != nil {
		if err := c.store.upsertPoints(ctx, name, points); err != nil {
			return err
		}
	}
	for _, p := range points {
		col.points[PointIDString(p.GetId())] = p
	}
	return nil
}

// Search scores every point matching filter and returns the best limit.
func (c *LocalClient) Search(ctx context.Context, name string, vector []float32, limit uint64, filter *qdrant.Filter) ([]*qdrant.ScoredPoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	col, err := c.collection(name)
	if err != nil {
		return nil, err
	}
	if uint64(len(vector)) != col.vectorSize {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, col.vectorSize, len(vector))
	}

	results := make([]*qdrant.ScoredPoint, 0, len(col.points))
	for _, p := range col.points {
		if !matchFilter(filter, p.GetPayload()) {
			continue
		}
		results = append(results, &qdrant.ScoredPoint{
			Id:      p.GetId(),
			Payload: p.GetPayload(),
			Score:   score(col.distance, vector, DenseVector(p.GetVectors())),
		})
	}

	lower := lowerIsBetter(col.distance)
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return PointIDString(results[i].Id) < PointIDString(results[j].Id)
		}
		if lower {
			return results[i].Score < results[j].Score
		}
		return results[i].Score > results[j].Score
	})

	if uint64(len(results)) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Scroll pages through matching points in id order.
func (c *LocalClient) Scroll(ctx context.Context, name string, filter *qdrant.Filter, limit uint32, offset *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
	if limit == 0 {
		limit = 10
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	col, err := c.collection(name)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]string, 0, len(col.points))
	for id, p := range col.points {
		if matchFilter(filter, p.GetPayload()) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	start := 0
	if offset != nil {
		from := PointIDString(offset)
		start = sort.SearchStrings(ids, from)
	}

	var page []*qdrant.RetrievedPoint
	var next *qdrant.PointId
	for i := start; i < len(ids); i++ {
		p := col.points[ids[i]]
		if uint32(len(page)) == limit {
			next = p.GetId()
			break
		}
		page = append(page, &qdrant.RetrievedPoint{
			Id:      p.GetId(),
			Payload: p.GetPayload(),
		})
	}
	return page, next, nil
}

// Delete removes every point matching filter. A nil filter removes all.
func (c *LocalClient) Delete(ctx context.Context, name string, filter *qdrant.Filter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	col, err := c.collection(name)
	if err != nil {
		return err
	}

	var ids []string
	for id, p := range col.points {
		if matchFilter(filter, p.GetPayload()) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if c.store != nil {
		if err := c.store.deletePoints(ctx, name, ids); err != nil {
			return err
		}
	}
	for _, id := range ids {
		delete(col.points, id)
	}
	c.logger.Trace(ctx, "local points deleted",
		zap.String("collection", name),
		zap.Int("count", len(ids)),
	)
	return nil
}

// Close releases the SQLite handle. Further calls return ErrClosed.
func (c *LocalClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.store != nil {
		return c.store.close()
	}
	return nil
}

// collection must be called with mu held.
func (c *LocalClient) collection(name string) (*collection, error) {
	if c.closed {
		return nil, ErrClosed
	}
	col, ok := c.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return col, nil
}

var _ Client = (*LocalClient)(nil)
