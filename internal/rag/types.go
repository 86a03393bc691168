// Package rag holds the domain types shared by the HTTP layer, the workflow
// definitions and the worker: requests, step outputs, event payloads, chunk
// identifiers and the answer prompt.
package rag

// DefaultCollection is used when a request leaves the collection empty.
const DefaultCollection = "docs"

// DefaultTopK is the number of contexts retrieved when a query does not say.
const DefaultTopK = 5

// IngestRequest is the body of PATCH /ingest-pdf.
type IngestRequest struct {
	PDFPath    string `json:"pdf_path"`
	SourceID   string `json:"source_id,omitempty"`
	Collection string `json:"collection,omitempty"`
}

// QueryRequest is the body of POST /query-pdf-ai. TopK is a pointer so an
// explicit 0 can be told apart from an omitted field.
type QueryRequest struct {
	Question   string `json:"question"`
	TopK       *int   `json:"top_k,omitempty"`
	Collection string `json:"collection,omitempty"`
}

// ChunkBatch is the output of the load-and-chunk step.
type ChunkBatch struct {
	Chunks   []string `json:"chunks"`
	SourceID string   `json:"source_id"`
}

// UpsertResult is the output of the embed-and-upsert step and of the
// ingestion workflow.
type UpsertResult struct {
	Ingested int `json:"ingested"`
}

// SearchResult is the output of the embed-and-search step. Contexts and
// Sources are parallel: Sources[i] is the source of Contexts[i].
type SearchResult struct {
	Contexts []string `json:"contexts"`
	Sources  []string `json:"sources"`
}

// QueryResult is the output of the query workflow.
type QueryResult struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources"`
	NumContexts int      `json:"num_contexts"`
}

// SourceRecord describes one ingested source in a collection.
type SourceRecord struct {
	Collection string `json:"collection"`
	SourceID   string `json:"source_id"`
	PDFPath    string `json:"pdf_path"`
	Chunks     int    `json:"chunks"`
}
