// Package qdrant provides clients for the Qdrant points database.
//
// Two implementations share the Client interface:
//   - GRPCClient talks to a Qdrant server through the official go-client.
//   - LocalClient runs the same collection/point model in process, either
//     purely in memory or written through to a SQLite file.
//
// Both speak in the go-client's protobuf types (PointStruct, Filter,
// ScoredPoint, RetrievedPoint) so callers build one request shape for
// every mode.
package qdrant

import (
	"context"
	"errors"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists is returned when creating a collection that exists.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrDimensionMismatch is returned when a vector's length differs from
	// the collection's configured size.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrClosed is returned by a LocalClient after Close.
	ErrClosed = errors.New("client closed")
)

// CollectionInfo describes a collection.
type CollectionInfo struct {
	Name        string
	PointsCount uint64
	VectorSize  uint64
	Distance    qdrant.Distance
}

// Client is the points-database surface used by the vector store adapter.
type Client interface {
	// ListCollections returns the names of all collections.
	ListCollections(ctx context.Context) ([]string, error)

	// CreateCollection creates a collection for dense vectors of the given size.
	CreateCollection(ctx context.Context, name string, vectorSize uint64, distance qdrant.Distance) error

	// DeleteCollection removes a collection and its points.
	DeleteCollection(ctx context.Context, name string) error

	// CollectionInfo returns size, distance and point count of a collection.
	CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)

	// Upsert inserts or replaces points.
	Upsert(ctx context.Context, collection string, points []*qdrant.PointStruct) error

	// Search returns up to limit points nearest to vector, best first.
	Search(ctx context.Context, collection string, vector []float32, limit uint64, filter *qdrant.Filter) ([]*qdrant.ScoredPoint, error)

	// Scroll returns one page of points matching filter, starting at offset
	// (inclusive), and the offset of the next page (nil when exhausted).
	Scroll(ctx context.Context, collection string, filter *qdrant.Filter, limit uint32, offset *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)

	// Delete removes every point matching filter.
	Delete(ctx context.Context, collection string, filter *qdrant.Filter) error

	// Health checks that the backend is reachable.
	Health(ctx context.Context) error

	// Close releases the client's resources.
	Close() error
}

// PointIDString renders a point id as a string. UUIDs are returned as-is,
// numeric ids in base 10.
func PointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.GetPointIdOptions().(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return strconv.FormatUint(v.Num, 10)
	default:
		return ""
	}
}

// DenseVector extracts the dense vector from point vectors, or nil.
func DenseVector(v *qdrant.Vectors) []float32 {
	vec := v.GetVector()
	if vec == nil {
		return nil
	}
	if dense := vec.GetDense(); dense != nil {
		return dense.GetData()
	}
	return vec.GetData()
}

// PayloadValue converts a payload value to a plain Go value:
// string, int64, float64, bool, nil, map[string]any or []any.
func PayloadValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_StructValue:
		return PayloadMap(val.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		values := val.ListValue.GetValues()
		out := make([]any, len(values))
		for i, item := range values {
			out[i] = PayloadValue(item)
		}
		return out
	default:
		return nil
	}
}

// PayloadMap converts a payload to a plain map.
func PayloadMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = PayloadValue(v)
	}
	return out
}
