package vector

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/pdfrag/internal/llm"
	"github.com/efebarandurmaz/pdfrag/internal/rag"
)

// Embedder wraps an embedding provider and a Store to index chunk batches
// and run question searches.
type Embedder struct {
	provider  llm.Provider
	store     Store
	batchSize int
}

// DefaultBatchSize bounds the number of texts sent per embedding call.
const DefaultBatchSize = 64

// NewEmbedder creates an Embedder.
func NewEmbedder(provider llm.Provider, store Store) *Embedder {
	return &Embedder{provider: provider, store: store, batchSize: DefaultBatchSize}
}

// WithBatchSize changes the embedding batch size. n <= 0 is ignored.
func (e *Embedder) WithBatchSize(n int) *Embedder {
	if n > 0 {
		e.batchSize = n
	}
	return e
}

// Embed returns one vector per text, in order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.provider.Embed(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d: %w", i, end, err)
		}
		if len(vecs) != end-i {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vecs), end-i)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// IndexChunks embeds every chunk of batch and upserts it into collection
// under its deterministic chunk ID. The collection is created on first use
// with the dimension of the returned vectors.
func (e *Embedder) IndexChunks(ctx context.Context, collection string, batch rag.ChunkBatch) (rag.UpsertResult, error) {
	if len(batch.Chunks) == 0 {
		return rag.UpsertResult{Ingested: 0}, nil
	}

	vectors, err := e.Embed(ctx, batch.Chunks)
	if err != nil {
		return rag.UpsertResult{}, err
	}

	if err := e.store.EnsureCollection(ctx, collection, len(vectors[0])); err != nil {
		return rag.UpsertResult{}, fmt.Errorf("ensure collection %s: %w", collection, err)
	}

	ids := rag.ChunkIDs(batch.SourceID, len(batch.Chunks))
	payloads := rag.ChunkPayloads(batch.SourceID, batch.Chunks)
	if err := e.store.Upsert(ctx, collection, ids, vectors, payloads); err != nil {
		return rag.UpsertResult{}, fmt.Errorf("upsert into %s: %w", collection, err)
	}

	return rag.UpsertResult{Ingested: len(batch.Chunks)}, nil
}

// SearchQuestion embeds question and returns the topK nearest chunks.
func (e *Embedder) SearchQuestion(ctx context.Context, collection, question string, topK int) (rag.SearchResult, error) {
	vecs, err := e.Embed(ctx, []string{question})
	if err != nil {
		return rag.SearchResult{}, err
	}
	res, err := e.store.Search(ctx, collection, vecs[0], topK)
	if err != nil {
		return rag.SearchResult{}, fmt.Errorf("search %s: %w", collection, err)
	}
	return res, nil
}
