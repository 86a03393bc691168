package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/efebarandurmaz/pdfrag/internal/rag"
)

// Step names. Activities are registered under these names so workflow
// history and metrics read the same. generate-answer is a local activity
// invoked by function, so history records it as GenerateAnswerActivity;
// logs, spans and metrics still use StepGenerateAnswer.
const (
	StepLoadAndChunk   = "load-and-chunk"
	StepEmbedAndUpsert = "embed-and-upsert"
	StepRecordSource   = "record-source"
	StepEmbedAndSearch = "embed-and-search"
	StepGenerateAnswer = "generate-answer"
)

// Application error types attached to non-retryable failures.
const (
	ErrTypeInvalidInput     = "InvalidInput"
	ErrTypeProviderRejected = "ProviderRejected"
	ErrTypeMisconfigured    = "Misconfigured"
)

// LoadInput is the argument of the load-and-chunk step.
type LoadInput struct {
	PDFPath  string `json:"pdf_path"`
	SourceID string `json:"source_id"`
}

// UpsertInput is the argument of the embed-and-upsert step.
type UpsertInput struct {
	Collection string         `json:"collection"`
	Batch      rag.ChunkBatch `json:"batch"`
}

// SearchInput is the argument of the embed-and-search step.
type SearchInput struct {
	Collection string `json:"collection"`
	Question   string `json:"question"`
	TopK       int    `json:"top_k"`
}

// AnswerInput is the argument of the generate-answer step.
type AnswerInput struct {
	Question string   `json:"question"`
	Contexts []string `json:"contexts"`
}

// stepRetryPolicy is shared by every durable step. Bad input is marked
// non-retryable by the activities themselves.
func stepRetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:        time.Second,
		BackoffCoefficient:     2.0,
		MaximumInterval:        time.Minute,
		MaximumAttempts:        5,
		NonRetryableErrorTypes: []string{ErrTypeInvalidInput, ErrTypeProviderRejected, ErrTypeMisconfigured},
	}
}

func ingestActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy:         stepRetryPolicy(),
	}
}

func recordActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	}
}

func queryActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         stepRetryPolicy(),
	}
}

func answerActivityOptions() workflow.LocalActivityOptions {
	return workflow.LocalActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		RetryPolicy:         stepRetryPolicy(),
	}
}

// IngestPDFWorkflow loads a PDF, chunks it, embeds the chunks and upserts
// them into the collection. A configured catalog records the source
// afterwards; catalog failures are logged and never fail the ingestion.
func IngestPDFWorkflow(ctx workflow.Context, in rag.IngestPayload) (rag.UpsertResult, error) {
	in = in.WithDefaults()
	if in.PDFPath == "" {
		return rag.UpsertResult{}, temporal.NewNonRetryableApplicationError(
			rag.ErrMissingPDFPath.Error(), ErrTypeInvalidInput, rag.ErrMissingPDFPath)
	}

	logger := workflow.GetLogger(ctx)
	logger.Info("ingest started", "pdf_path", in.PDFPath, "source_id", in.SourceID, "collection", in.Collection)

	actx := workflow.WithActivityOptions(ctx, ingestActivityOptions())

	var batch rag.ChunkBatch
	load := LoadInput{PDFPath: in.PDFPath, SourceID: in.SourceID}
	if err := workflow.ExecuteActivity(actx, StepLoadAndChunk, load).Get(ctx, &batch); err != nil {
		return rag.UpsertResult{}, fmt.Errorf("%s: %w", StepLoadAndChunk, err)
	}

	var result rag.UpsertResult
	upsert := UpsertInput{Collection: in.Collection, Batch: batch}
	if err := workflow.ExecuteActivity(actx, StepEmbedAndUpsert, upsert).Get(ctx, &result); err != nil {
		return rag.UpsertResult{}, fmt.Errorf("%s: %w", StepEmbedAndUpsert, err)
	}

	rctx := workflow.WithActivityOptions(ctx, recordActivityOptions())
	rec := rag.SourceRecord{
		Collection: in.Collection,
		SourceID:   in.SourceID,
		PDFPath:    in.PDFPath,
		Chunks:     result.Ingested,
	}
	if err := workflow.ExecuteActivity(rctx, StepRecordSource, rec).Get(ctx, nil); err != nil {
		logger.Warn("recording source failed", "source_id", in.SourceID, "error", err)
	}

	logger.Info("ingest finished", "source_id", in.SourceID, "ingested", result.Ingested)
	return result, nil
}

// QueryPDFWorkflow retrieves the nearest chunks for a question and asks the
// generation model to answer from them. Generation runs as a local activity.
func QueryPDFWorkflow(ctx workflow.Context, in rag.QueryPayload) (rag.QueryResult, error) {
	in = in.WithDefaults()
	if in.Question == "" {
		return rag.QueryResult{}, temporal.NewNonRetryableApplicationError(
			rag.ErrMissingQuestion.Error(), ErrTypeInvalidInput, rag.ErrMissingQuestion)
	}

	logger := workflow.GetLogger(ctx)
	logger.Info("query started", "collection", in.Collection, "top_k", in.TopK)

	actx := workflow.WithActivityOptions(ctx, queryActivityOptions())

	var found rag.SearchResult
	search := SearchInput{Collection: in.Collection, Question: in.Question, TopK: in.TopK}
	if err := workflow.ExecuteActivity(actx, StepEmbedAndSearch, search).Get(ctx, &found); err != nil {
		return rag.QueryResult{}, fmt.Errorf("%s: %w", StepEmbedAndSearch, err)
	}

	lctx := workflow.WithLocalActivityOptions(ctx, answerActivityOptions())

	var answer string
	gen := AnswerInput{Question: in.Question, Contexts: found.Contexts}
	if err := workflow.ExecuteLocalActivity(lctx, GenerateAnswerActivity, gen).Get(ctx, &answer); err != nil {
		return rag.QueryResult{}, fmt.Errorf("%s: %w", StepGenerateAnswer, err)
	}

	logger.Info("query finished", "num_contexts", len(found.Contexts))
	return rag.QueryResult{
		Answer:      answer,
		Sources:     found.Sources,
		NumContexts: len(found.Contexts),
	}, nil
}
