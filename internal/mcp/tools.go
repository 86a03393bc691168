package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/efebarandurmaz/pdfrag/internal/rag"
)

// IngestInput is the input schema for the ingest_pdf tool.
type IngestInput struct {
	PDFPath    string `json:"pdf_path" jsonschema:"path of the PDF as seen by the worker"`
	SourceID   string `json:"source_id,omitempty" jsonschema:"source label stored with each chunk (default: pdf_path)"`
	Collection string `json:"collection,omitempty" jsonschema:"target collection (default docs)"`
	Wait       bool   `json:"wait,omitempty" jsonschema:"block until ingestion finishes"`
}

// IngestOutput is the output schema for the ingest_pdf tool.
type IngestOutput struct {
	RunID    string `json:"run_id"`
	Ingested *int   `json:"ingested,omitempty"`
}

// QueryInput is the input schema for the query_pdf tool.
type QueryInput struct {
	Question   string `json:"question" jsonschema:"the question to answer"`
	TopK       *int   `json:"top_k,omitempty" jsonschema:"number of chunks to retrieve (default 5)"`
	Collection string `json:"collection,omitempty" jsonschema:"collection to search (default docs)"`
	Wait       *bool  `json:"wait,omitempty" jsonschema:"block until the answer is ready (default true)"`
}

// QueryOutput is the output schema for the query_pdf tool.
type QueryOutput struct {
	RunID       string   `json:"run_id"`
	Answer      string   `json:"answer,omitempty"`
	Sources     []string `json:"sources,omitempty"`
	NumContexts int      `json:"num_contexts,omitempty"`
}

// ResultInput is the input schema for the get_result tool.
type ResultInput struct {
	RunID string `json:"run_id" jsonschema:"ID returned by ingest_pdf or query_pdf"`
}

// ResultOutput carries a run result as the workflow stored it.
type ResultOutput struct {
	RunID  string `json:"run_id"`
	Result any    `json:"result"`
}

// ListSourcesInput is the input schema for the list_sources tool.
type ListSourcesInput struct {
	Collection string `json:"collection,omitempty" jsonschema:"collection to list (default docs)"`
}

// ListSourcesOutput is the output schema for the list_sources tool.
type ListSourcesOutput struct {
	Sources []rag.SourceRecord `json:"sources"`
	Count   int                `json:"count"`
}

func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	req := rag.IngestRequest{PDFPath: input.PDFPath, SourceID: input.SourceID, Collection: input.Collection}
	if err := req.Validate(); err != nil {
		return nil, IngestOutput{}, err
	}

	runID, err := s.send(ctx, rag.EventIngestPDF, req.Payload())
	if err != nil {
		return nil, IngestOutput{}, fmt.Errorf("ingesting PDF: %w", err)
	}
	out := IngestOutput{RunID: runID}
	if !input.Wait {
		return nil, out, nil
	}

	var res rag.UpsertResult
	if err := s.events.Result(ctx, runID, &res); err != nil {
		return nil, out, err
	}
	out.Ingested = &res.Ingested
	return nil, out, nil
}

func (s *Server) handleQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	req := rag.QueryRequest{Question: input.Question, TopK: input.TopK, Collection: input.Collection}
	if err := req.Validate(); err != nil {
		return nil, QueryOutput{}, err
	}

	runID, err := s.send(ctx, rag.EventQueryPDFAI, req.Payload())
	if err != nil {
		return nil, QueryOutput{}, fmt.Errorf("querying PDF AI: %w", err)
	}
	out := QueryOutput{RunID: runID}
	if input.Wait != nil && !*input.Wait {
		return nil, out, nil
	}

	var res rag.QueryResult
	if err := s.events.Result(ctx, runID, &res); err != nil {
		return nil, out, err
	}
	out.Answer = res.Answer
	out.Sources = res.Sources
	out.NumContexts = res.NumContexts
	return nil, out, nil
}

func (s *Server) handleResult(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ResultInput,
) (*mcp.CallToolResult, ResultOutput, error) {
	if input.RunID == "" {
		return nil, ResultOutput{}, errors.New("run_id is required")
	}
	var result any
	if err := s.events.Result(ctx, input.RunID, &result); err != nil {
		return nil, ResultOutput{}, err
	}
	return nil, ResultOutput{RunID: input.RunID, Result: result}, nil
}

func (s *Server) handleListSources(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListSourcesInput,
) (*mcp.CallToolResult, ListSourcesOutput, error) {
	collection := input.Collection
	if collection == "" {
		collection = rag.DefaultCollection
	}
	records, err := s.catalog.ListSources(ctx, collection)
	if err != nil {
		return nil, ListSourcesOutput{}, err
	}
	if records == nil {
		records = []rag.SourceRecord{}
	}
	return nil, ListSourcesOutput{Sources: records, Count: len(records)}, nil
}

// send dispatches one event and returns its run ID.
func (s *Server) send(ctx context.Context, name string, data any) (string, error) {
	ack, err := s.events.Send(ctx, rag.Event{Name: name, Data: data})
	if err != nil {
		return "", err
	}
	if len(ack.IDs) == 0 {
		return "", errors.New("dispatcher returned no run ID")
	}
	return ack.IDs[0], nil
}
