package rag

import "errors"

// Event names understood by the dispatcher.
const (
	EventIngestPDF  = "rag/ingest_pdf"
	EventQueryPDFAI = "rag/query_pdf_ai"
)

var (
	ErrMissingPDFPath  = errors.New("pdf_path is required")
	ErrMissingQuestion = errors.New("question is required")
	ErrNegativeTopK    = errors.New("top_k must not be negative")
)

// Event is a named trigger for a workflow. ID doubles as the workflow ID;
// an empty ID gets a fresh one on send.
type Event struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Data any    `json:"data"`
}

// SendResult acknowledges a sent event. It carries identifiers only, never
// the workflow result.
type SendResult struct {
	IDs []string `json:"ids"`
}

// IngestPayload is the data of a rag/ingest_pdf event.
type IngestPayload struct {
	PDFPath    string `json:"pdf_path"`
	SourceID   string `json:"source_id"`
	Collection string `json:"collection"`
}

// QueryPayload is the data of a rag/query_pdf_ai event.
type QueryPayload struct {
	Question   string `json:"question"`
	TopK       int    `json:"top_k"`
	Collection string `json:"collection"`
}

// Validate rejects requests that must never reach the workflow engine.
func (r IngestRequest) Validate() error {
	if r.PDFPath == "" {
		return ErrMissingPDFPath
	}
	return nil
}

// Payload applies defaults: source_id falls back to pdf_path and collection
// to DefaultCollection.
func (r IngestRequest) Payload() IngestPayload {
	p := IngestPayload{
		PDFPath:    r.PDFPath,
		SourceID:   r.SourceID,
		Collection: r.Collection,
	}
	return p.WithDefaults()
}

// Validate rejects requests that must never reach the workflow engine.
func (r QueryRequest) Validate() error {
	if r.Question == "" {
		return ErrMissingQuestion
	}
	if r.TopK != nil && *r.TopK < 0 {
		return ErrNegativeTopK
	}
	return nil
}

// Payload applies defaults: top_k falls back to DefaultTopK when absent or
// zero, collection to DefaultCollection.
func (r QueryRequest) Payload() QueryPayload {
	p := QueryPayload{
		Question:   r.Question,
		Collection: r.Collection,
	}
	if r.TopK != nil {
		p.TopK = *r.TopK
	}
	return p.WithDefaults()
}

// WithDefaults fills empty fields.
func (p IngestPayload) WithDefaults() IngestPayload {
	if p.SourceID == "" {
		p.SourceID = p.PDFPath
	}
	if p.Collection == "" {
		p.Collection = DefaultCollection
	}
	return p
}

// WithDefaults fills empty fields.
func (p QueryPayload) WithDefaults() QueryPayload {
	if p.TopK <= 0 {
		p.TopK = DefaultTopK
	}
	if p.Collection == "" {
		p.Collection = DefaultCollection
	}
	return p
}
