// Package catalog records which sources were ingested into which
// collection.
package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/efebarandurmaz/pdfrag/internal/rag"
)

// Repository stores source records.
type Repository interface {
	// RecordSource inserts or replaces the record for (collection, source).
	RecordSource(ctx context.Context, rec rag.SourceRecord) error
	// ListSources returns the sources of a collection ordered by source ID.
	ListSources(ctx context.Context, collection string) ([]rag.SourceRecord, error)
	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error
	// Close releases resources.
	Close(ctx context.Context) error
}

// Memory is an in-process Repository.
type Memory struct {
	mu      sync.RWMutex
	records map[string]map[string]rag.SourceRecord
}

// NewMemory returns an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]map[string]rag.SourceRecord)}
}

func (m *Memory) RecordSource(_ context.Context, rec rag.SourceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.records[rec.Collection]
	if !ok {
		byID = make(map[string]rag.SourceRecord)
		m.records[rec.Collection] = byID
	}
	byID[rec.SourceID] = rec
	return nil
}

func (m *Memory) ListSources(_ context.Context, collection string) ([]rag.SourceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]rag.SourceRecord, 0, len(m.records[collection]))
	for _, rec := range m.records[collection] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

func (m *Memory) Health(context.Context) error { return nil }

func (m *Memory) Close(context.Context) error { return nil }

var _ Repository = (*Memory)(nil)
