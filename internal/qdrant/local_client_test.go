package qdrant

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func point(id string, vec []float32, payload map[string]any) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(id),
		Vectors: qdrant.NewVectorsDense(vec),
		Payload: qdrant.NewValueMap(payload),
	}
}

func seed(t *testing.T, c Client) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.CreateCollection(ctx, "docs", 3, qdrant.Distance_Cosine))
	require.NoError(t, c.Upsert(ctx, "docs", []*qdrant.PointStruct{
		point("00000000-0000-0000-0000-000000000001", []float32{1, 0, 0}, map[string]any{"book": "a", "page": 1}),
		point("00000000-0000-0000-0000-000000000002", []float32{0, 1, 0}, map[string]any{"book": "a", "page": 2}),
		point("00000000-0000-0000-0000-000000000003", []float32{0, 0, 1}, map[string]any{"book": "b", "page": 3}),
	}))
}

func TestLocalClient_Collections(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(nil)
	defer c.Close()

	require.NoError(t, c.CreateCollection(ctx, "b", 4, qdrant.Distance_Dot))
	require.NoError(t, c.CreateCollection(ctx, "a", 4, qdrant.Distance_UnknownDistance))

	names, err := c.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	info, err := c.CollectionInfo(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), info.VectorSize)
	assert.Equal(t, qdrant.Distance_Cosine, info.Distance)
	assert.Equal(t, uint64(0), info.PointsCount)

	err = c.CreateCollection(ctx, "a", 4, qdrant.Distance_Cosine)
	assert.ErrorIs(t, err, ErrCollectionExists)

	require.NoError(t, c.DeleteCollection(ctx, "a"))
	_, err = c.CollectionInfo(ctx, "a")
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.ErrorIs(t, c.DeleteCollection(ctx, "a"), ErrCollectionNotFound)
}

func TestLocalClient_UpsertDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(nil)
	require.NoError(t, c.CreateCollection(ctx, "docs", 3, qdrant.Distance_Cosine))

	err := c.Upsert(ctx, "docs", []*qdrant.PointStruct{
		point("00000000-0000-0000-0000-000000000001", []float32{1, 0, 0}, nil),
		point("00000000-0000-0000-0000-000000000002", []float32{1, 0}, nil),
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	info, err := c.CollectionInfo(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), info.PointsCount, "no partial writes")
}

func TestLocalClient_Search(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(nil)
	seed(t, c)

	results, err := c.Search(ctx, "docs", []float32{0.9, 0.1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", PointIDString(results[0].Id))
	assert.Equal(t, "00000000-0000-0000-0000-000000000002", PointIDString(results[1].Id))
	assert.Greater(t, results[0].Score, results[1].Score)

	filtered, err := c.Search(ctx, "docs", []float32{0.9, 0.1, 0}, 10, &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("book", "b")},
	})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "00000000-0000-0000-0000-000000000003", PointIDString(filtered[0].Id))

	_, err = c.Search(ctx, "docs", []float32{1, 0}, 1, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestLocalClient_SearchEuclidAscending(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(nil)
	require.NoError(t, c.CreateCollection(ctx, "e", 2, qdrant.Distance_Euclid))
	require.NoError(t, c.Upsert(ctx, "e", []*qdrant.PointStruct{
		point("00000000-0000-0000-0000-00000000000a", []float32{10, 10}, nil),
		point("00000000-0000-0000-0000-00000000000b", []float32{1, 1}, nil),
	}))

	results, err := c.Search(ctx, "e", []float32{0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "00000000-0000-0000-0000-00000000000b", PointIDString(results[0].Id))
	assert.Less(t, results[0].Score, results[1].Score)
}

func TestLocalClient_Scroll(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(nil)
	require.NoError(t, c.CreateCollection(ctx, "docs", 1, qdrant.Distance_Cosine))

	var points []*qdrant.PointStruct
	for i := 0; i < 25; i++ {
		points = append(points, point(fmt.Sprintf("00000000-0000-0000-0000-%012d", i), []float32{1}, map[string]any{"i": i}))
	}
	require.NoError(t, c.Upsert(ctx, "docs", points))

	var (
		seen   []string
		offset *qdrant.PointId
		pages  int
	)
	for {
		page, next, err := c.Scroll(ctx, "docs", nil, 10, offset)
		require.NoError(t, err)
		pages++
		for _, p := range page {
			seen = append(seen, PointIDString(p.Id))
		}
		if next == nil {
			break
		}
		offset = next
	}

	assert.Equal(t, 3, pages)
	require.Len(t, seen, 25)
	assert.Equal(t, "00000000-0000-0000-0000-000000000000", seen[0])
	assert.Equal(t, "00000000-0000-0000-0000-000000000024", seen[24])
}

func TestLocalClient_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(nil)
	seed(t, c)

	require.NoError(t, c.Delete(ctx, "docs", &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("book", "a")},
	}))
	info, err := c.CollectionInfo(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.PointsCount)

	require.NoError(t, c.Delete(ctx, "docs", &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("book", "zzz")},
	}))
	info, err = c.CollectionInfo(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.PointsCount)
}

func TestLocalClient_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := NewLocalClient(ctx, dir, nil)
	require.NoError(t, err)
	assert.True(t, c.Persistent())
	assert.Equal(t, filepath.Join(dir, LocalDBFile), c.Path())
	seed(t, c)
	require.NoError(t, c.Delete(ctx, "docs", &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("book", "b")},
	}))
	require.NoError(t, c.CreateCollection(ctx, "gone", 2, qdrant.Distance_Dot))
	require.NoError(t, c.DeleteCollection(ctx, "gone"))
	require.NoError(t, c.Close())

	reopened, err := NewLocalClient(ctx, dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	names, err := reopened.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, names)

	info, err := reopened.CollectionInfo(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.PointsCount)
	assert.Equal(t, uint64(3), info.VectorSize)

	results, err := reopened.Search(ctx, "docs", []float32{0, 1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", PayloadMap(results[0].Payload)["book"])
	assert.Equal(t, int64(2), PayloadMap(results[0].Payload)["page"])
}

func TestLocalClient_Closed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(nil)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Health(ctx), ErrClosed)
	_, err := c.ListCollections(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.CreateCollection(ctx, "x", 1, qdrant.Distance_Cosine), ErrClosed)
}

func TestNewLocalClient_RequiresDir(t *testing.T) {
	_, err := NewLocalClient(context.Background(), "", nil)
	assert.Error(t, err)
}
