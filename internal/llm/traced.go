package llm

import (
	"context"
	"time"

	"github.com/efebarandurmaz/pdfrag/internal/observability"
)

// TracedProvider records a span and service metrics around every call of
// the wrapped provider.
type TracedProvider struct {
	inner Provider
}

// WithTracing wraps p. A nil provider stays nil.
func WithTracing(p Provider) Provider {
	if p == nil {
		return nil
	}
	return &TracedProvider{inner: p}
}

func (t *TracedProvider) Name() string { return t.inner.Name() }

func (t *TracedProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	ctx, span := observability.StartLLMSpan(ctx, t.inner.Name(), "complete")
	defer span.End()

	start := time.Now()
	resp, err := t.inner.Complete(ctx, prompt, opts)
	elapsed := time.Since(start)

	tokens := 0
	if resp != nil {
		tokens = resp.InputTokens + resp.OutputTokens
		observability.RecordLLMMetrics(span, resp.InputTokens, resp.OutputTokens, elapsed)
	}
	observability.RecordError(span, err)
	observability.Metrics().RecordLLMRequest(t.inner.Name(), "complete", elapsed, tokens, err)
	return resp, err
}

func (t *TracedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := observability.StartLLMSpan(ctx, t.inner.Name(), "embed")
	defer span.End()

	start := time.Now()
	vecs, err := t.inner.Embed(ctx, texts)
	observability.RecordError(span, err)
	observability.Metrics().RecordLLMRequest(t.inner.Name(), "embed", time.Since(start), 0, err)
	return vecs, err
}
