// Package neo4j implements catalog.Repository on Neo4j. Collections and
// sources are nodes joined by CONTAINS edges.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/pdfrag/internal/catalog"
	"github.com/efebarandurmaz/pdfrag/internal/rag"
)

const (
	recordSourceCypher = "MERGE (c:Collection {name: $collection}) " +
		"MERGE (c)-[:CONTAINS]->(s:Source {collection: $collection, source_id: $source_id}) " +
		"SET s.pdf_path = $pdf_path, s.chunks = $chunks, s.updated_at = datetime()"

	listSourcesCypher = "MATCH (:Collection {name: $collection})-[:CONTAINS]->(s:Source) " +
		"RETURN s.source_id AS source_id, s.pdf_path AS pdf_path, s.chunks AS chunks " +
		"ORDER BY s.source_id"
)

// Repository implements catalog.Repository using Neo4j.
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, uri, username, password, database string) (*Repository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Repository{driver: driver, database: database}, nil
}

func (r *Repository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

func (r *Repository) RecordSource(ctx context.Context, rec rag.SourceRecord) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, recordSourceCypher, recordParams(rec))
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("record source %s: %w", rec.SourceID, err)
	}
	return nil
}

func (r *Repository) ListSources(ctx context.Context, collection string) ([]rag.SourceRecord, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, listSourcesCypher, map[string]any{"collection": collection})
		if err != nil {
			return nil, err
		}
		out := []rag.SourceRecord{}
		for records.Next(ctx) {
			out = append(out, toSourceRecord(collection, records.Record().AsMap()))
		}
		return out, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list sources of %s: %w", collection, err)
	}
	return result.([]rag.SourceRecord), nil
}

func (r *Repository) Health(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

func recordParams(rec rag.SourceRecord) map[string]any {
	return map[string]any{
		"collection": rec.Collection,
		"source_id":  rec.SourceID,
		"pdf_path":   rec.PDFPath,
		"chunks":     int64(rec.Chunks),
	}
}

func toSourceRecord(collection string, m map[string]any) rag.SourceRecord {
	rec := rag.SourceRecord{Collection: collection}
	rec.SourceID, _ = m["source_id"].(string)
	rec.PDFPath, _ = m["pdf_path"].(string)
	if n, ok := m["chunks"].(int64); ok {
		rec.Chunks = int(n)
	}
	return rec
}

var _ catalog.Repository = (*Repository)(nil)
