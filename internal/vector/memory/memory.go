// Package memory is an in-process vector.Store using brute-force cosine
// similarity. It backs tests and single-process demos.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/efebarandurmaz/pdfrag/internal/rag"
	"github.com/efebarandurmaz/pdfrag/internal/vector"
)

type point struct {
	vec     []float32
	norm    float64
	payload map[string]any
	seq     int
}

type collection struct {
	dim    int
	points map[string]*point
	seq    int
}

// Store keeps every collection in memory.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// New returns an empty store.
func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) EnsureCollection(_ context.Context, name string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[name]; ok {
		if c.dim != dim {
			return fmt.Errorf("%w: collection %s has size %d, got %d", vector.ErrDimensionMismatch, name, c.dim, dim)
		}
		return nil
	}
	s.collections[name] = &collection{dim: dim, points: make(map[string]*point)}
	return nil
}

func (s *Store) Upsert(_ context.Context, name string, ids []string, vectors [][]float32, payloads []map[string]any) error {
	if err := vector.CheckLengths(ids, vectors, payloads); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%w: %s", vector.ErrCollectionNotFound, name)
	}
	if err := vector.CheckDimensions(vectors, c.dim); err != nil {
		return err
	}

	for i, id := range ids {
		p := &point{
			vec:     append([]float32(nil), vectors[i]...),
			norm:    norm(vectors[i]),
			payload: payloads[i],
		}
		if old, ok := c.points[id]; ok {
			p.seq = old.seq
		} else {
			p.seq = c.seq
			c.seq++
		}
		c.points[id] = p
	}
	return nil
}

func (s *Store) Search(_ context.Context, name string, vec []float32, topK int) (rag.SearchResult, error) {
	if topK <= 0 {
		topK = rag.DefaultTopK
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return rag.SearchResult{}, fmt.Errorf("%w: %s", vector.ErrCollectionNotFound, name)
	}
	if len(vec) != c.dim {
		return rag.SearchResult{}, fmt.Errorf("%w: query has %d dimensions, expected %d", vector.ErrDimensionMismatch, len(vec), c.dim)
	}

	type scored struct {
		p     *point
		score float64
	}
	qn := norm(vec)
	hits := make([]scored, 0, len(c.points))
	for _, p := range c.points {
		hits = append(hits, scored{p: p, score: cosine(vec, qn, p.vec, p.norm)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].p.seq < hits[j].p.seq
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	res := rag.SearchResult{
		Contexts: make([]string, 0, len(hits)),
		Sources:  make([]string, 0, len(hits)),
	}
	for _, h := range hits {
		text, _ := h.p.payload[vector.PayloadText].(string)
		if text == "" {
			continue
		}
		source, _ := h.p.payload[vector.PayloadSource].(string)
		res.Contexts = append(res.Contexts, text)
		res.Sources = append(res.Sources, source)
	}
	return res, nil
}

// Count returns the number of points in a collection.
func (s *Store) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[name]; ok {
		return len(c.points)
	}
	return 0
}

func (s *Store) Health(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}

var _ vector.Store = (*Store)(nil)
