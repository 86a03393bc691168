package vector

import (
	"context"
	"time"

	"github.com/efebarandurmaz/pdfrag/internal/observability"
	"github.com/efebarandurmaz/pdfrag/internal/rag"
)

// TracedStore wraps a Store with spans and request metrics.
type TracedStore struct {
	inner    Store
	provider string
}

// WithTracing wraps s so every collection call gets a vector span.
func WithTracing(s Store, provider string) Store {
	if s == nil {
		return nil
	}
	return &TracedStore{inner: s, provider: provider}
}

func (t *TracedStore) EnsureCollection(ctx context.Context, collection string, dim int) error {
	ctx, span := observability.StartVectorSpan(ctx, "ensure_collection", collection)
	defer span.End()

	start := time.Now()
	err := t.inner.EnsureCollection(ctx, collection, dim)
	observability.RecordError(span, err)
	observability.Metrics().RecordVectorOp(t.provider, "ensure_collection", start, err)
	return err
}

func (t *TracedStore) Upsert(ctx context.Context, collection string, ids []string, vectors [][]float32, payloads []map[string]any) error {
	ctx, span := observability.StartVectorSpan(ctx, "upsert", collection)
	defer span.End()

	start := time.Now()
	err := t.inner.Upsert(ctx, collection, ids, vectors, payloads)
	observability.RecordError(span, err)
	observability.Metrics().RecordVectorOp(t.provider, "upsert", start, err)
	return err
}

func (t *TracedStore) Search(ctx context.Context, collection string, vec []float32, topK int) (rag.SearchResult, error) {
	ctx, span := observability.StartVectorSpan(ctx, "search", collection)
	defer span.End()

	start := time.Now()
	res, err := t.inner.Search(ctx, collection, vec, topK)
	observability.RecordError(span, err)
	observability.Metrics().RecordVectorOp(t.provider, "search", start, err)
	return res, err
}

func (t *TracedStore) Health(ctx context.Context) error { return t.inner.Health(ctx) }

func (t *TracedStore) Close() error { return t.inner.Close() }
