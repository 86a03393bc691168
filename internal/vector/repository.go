// Package vector defines the vector-store adapter used by the ingestion and
// query steps.
package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/efebarandurmaz/pdfrag/internal/rag"
)

var (
	// ErrDimensionMismatch is returned when a vector does not match the
	// collection's dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrLengthMismatch is returned when ids, vectors and payloads differ
	// in length.
	ErrLengthMismatch = errors.New("ids, vectors and payloads must have equal length")
	// ErrCollectionNotFound is returned when searching a collection that
	// was never created.
	ErrCollectionNotFound = errors.New("collection not found")
)

// Payload keys written for every chunk.
const (
	PayloadText   = "text"
	PayloadSource = "source"
)

// Store provides vector storage and similarity search over named
// collections.
type Store interface {
	// EnsureCollection creates the collection with cosine distance if it
	// does not exist. Idempotent.
	EnsureCollection(ctx context.Context, collection string, dim int) error
	// Upsert inserts or overwrites points by ID.
	Upsert(ctx context.Context, collection string, ids []string, vectors [][]float32, payloads []map[string]any) error
	// Search returns the text and source of the topK nearest points, best
	// match first.
	Search(ctx context.Context, collection string, vec []float32, topK int) (rag.SearchResult, error)
	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error
	// Close releases resources.
	Close() error
}

// CheckLengths validates the parallel upsert slices.
func CheckLengths(ids []string, vectors [][]float32, payloads []map[string]any) error {
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return fmt.Errorf("%w: %d ids, %d vectors, %d payloads", ErrLengthMismatch, len(ids), len(vectors), len(payloads))
	}
	return nil
}

// CheckDimensions validates that every vector has dim components.
func CheckDimensions(vectors [][]float32, dim int) error {
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}
