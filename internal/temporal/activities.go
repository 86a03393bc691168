package temporal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/pdfrag/internal/catalog"
	"github.com/efebarandurmaz/pdfrag/internal/llm"
	"github.com/efebarandurmaz/pdfrag/internal/loader"
	"github.com/efebarandurmaz/pdfrag/internal/observability"
	"github.com/efebarandurmaz/pdfrag/internal/rag"
	"github.com/efebarandurmaz/pdfrag/internal/vector"
)

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Loader    *loader.Loader
	Embedder  *vector.Embedder
	Generator llm.Provider
	Catalog   catalog.Repository // optional
}

var deps *Dependencies

// ErrNoDependencies is returned by activities run before SetDependencies.
var ErrNoDependencies = errors.New("worker dependencies not configured")

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// LoadAndChunkActivity extracts the PDF text and splits it into chunks.
func LoadAndChunkActivity(ctx context.Context, in LoadInput) (batch rag.ChunkBatch, err error) {
	ctx, done := beginStep(ctx, StepLoadAndChunk)
	defer func() { done(len(batch.Chunks), err) }()

	if deps == nil || deps.Loader == nil {
		return rag.ChunkBatch{}, misconfigured(StepLoadAndChunk)
	}

	sourceID := in.SourceID
	if sourceID == "" {
		sourceID = in.PDFPath
	}

	chunks, err := deps.Loader.LoadAndChunk(ctx, in.PDFPath)
	if err != nil {
		return rag.ChunkBatch{}, classify(fmt.Errorf("load %s: %w", in.PDFPath, err))
	}

	activity.GetLogger(ctx).Info("pdf chunked", "pdf_path", in.PDFPath, "chunks", len(chunks))
	return rag.ChunkBatch{Chunks: chunks, SourceID: sourceID}, nil
}

// EmbedAndUpsertActivity embeds every chunk and upserts it under its
// deterministic chunk ID, so retries overwrite rather than duplicate.
func EmbedAndUpsertActivity(ctx context.Context, in UpsertInput) (res rag.UpsertResult, err error) {
	ctx, done := beginStep(ctx, StepEmbedAndUpsert)
	defer func() { done(res.Ingested, err) }()

	if deps == nil || deps.Embedder == nil {
		return rag.UpsertResult{}, misconfigured(StepEmbedAndUpsert)
	}

	res, err = deps.Embedder.IndexChunks(ctx, in.Collection, in.Batch)
	if err != nil {
		return rag.UpsertResult{}, classify(fmt.Errorf("index %s: %w", in.Batch.SourceID, err))
	}

	observability.Metrics().RecordChunksIngested(res.Ingested)
	activity.GetLogger(ctx).Info("chunks upserted", "collection", in.Collection, "ingested", res.Ingested)
	return res, nil
}

// RecordSourceActivity writes the source to the catalog. Without a catalog
// it does nothing.
func RecordSourceActivity(ctx context.Context, rec rag.SourceRecord) (err error) {
	ctx, done := beginStep(ctx, StepRecordSource)
	defer func() { done(1, err) }()

	if deps == nil || deps.Catalog == nil {
		return nil
	}
	if err := deps.Catalog.RecordSource(ctx, rec); err != nil {
		return fmt.Errorf("record source %s: %w", rec.SourceID, err)
	}
	return nil
}

// EmbedAndSearchActivity embeds the question and returns the nearest
// contexts with their sources.
func EmbedAndSearchActivity(ctx context.Context, in SearchInput) (res rag.SearchResult, err error) {
	ctx, done := beginStep(ctx, StepEmbedAndSearch)
	defer func() { done(len(res.Contexts), err) }()

	if deps == nil || deps.Embedder == nil {
		return rag.SearchResult{}, misconfigured(StepEmbedAndSearch)
	}

	res, err = deps.Embedder.SearchQuestion(ctx, in.Collection, in.Question, in.TopK)
	if err != nil {
		return rag.SearchResult{}, classify(fmt.Errorf("search %s: %w", in.Collection, err))
	}
	return res, nil
}

// GenerateAnswerActivity asks the generation model to answer from the
// retrieved contexts. It runs as a local activity.
func GenerateAnswerActivity(ctx context.Context, in AnswerInput) (answer string, err error) {
	ctx, done := beginStep(ctx, StepGenerateAnswer)
	defer func() { done(len(in.Contexts), err) }()

	if deps == nil || deps.Generator == nil {
		return "", misconfigured(StepGenerateAnswer)
	}

	prompt := llm.NewPrompt(rag.SystemInstruction, rag.BuildPrompt(in.Question, in.Contexts))
	resp, err := deps.Generator.Complete(ctx, prompt, nil)
	if err != nil {
		return "", classify(fmt.Errorf("generate answer: %w", err))
	}

	observability.Metrics().RecordQuery()
	return resp.Text(), nil
}

// beginStep opens a span for the step and returns a function that closes
// it and records step metrics.
func beginStep(ctx context.Context, step string) (context.Context, func(items int, err error)) {
	start := time.Now()
	ctx, span := observability.StartStepSpan(ctx, step, activity.GetInfo(ctx).WorkflowExecution.ID)
	return ctx, func(items int, err error) {
		observability.RecordStepResult(span, items)
		observability.RecordError(span, err)
		span.End()
		observability.Metrics().RecordStep(step, time.Since(start), err)
	}
}

func misconfigured(step string) error {
	return temporal.NewNonRetryableApplicationError(
		fmt.Sprintf("%s: %v", step, ErrNoDependencies), ErrTypeMisconfigured, ErrNoDependencies)
}

// classify marks errors that no retry can fix as non-retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, loader.ErrFileNotFound),
		errors.Is(err, loader.ErrEmptyPath),
		errors.Is(err, vector.ErrCollectionNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
	case errors.Is(err, loader.ErrPDFToolNotFound),
		errors.Is(err, llm.ErrEmbeddingsUnsupported),
		errors.Is(err, vector.ErrDimensionMismatch):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeMisconfigured, err)
	}

	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) &&
		statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 &&
		statusErr.StatusCode != http.StatusTooManyRequests {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeProviderRejected, err)
	}
	return err
}
