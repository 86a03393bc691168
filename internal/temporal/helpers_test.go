package temporal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/pdfrag/internal/catalog"
	"github.com/efebarandurmaz/pdfrag/internal/llm"
	"github.com/efebarandurmaz/pdfrag/internal/loader"
	"github.com/efebarandurmaz/pdfrag/internal/vector"
	"github.com/efebarandurmaz/pdfrag/internal/vector/memory"
)

const sampleText = "Alpha is first. Beta is second. Gamma is third."

// staticExtractor returns the same text for every path.
type staticExtractor struct {
	text string
	err  error
}

func (s staticExtractor) Extract(context.Context, string) (string, error) {
	return s.text, s.err
}

// keywordModel embeds texts by keyword presence and answers with a fixed
// prefix followed by the prompt it received.
type keywordModel struct {
	prompts  []*llm.Prompt
	embedErr error
}

var keywords = []string{"alpha", "beta", "gamma"}

func (m *keywordModel) Name() string { return "keyword" }

func (m *keywordModel) Complete(_ context.Context, p *llm.Prompt, _ *llm.RequestOptions) (*llm.Response, error) {
	m.prompts = append(m.prompts, p)
	return &llm.Response{Content: "  <think>hmm</think>Beta is second.  ", InputTokens: 10, OutputTokens: 3}, nil
}

func (m *keywordModel) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		vec := make([]float32, len(keywords)+1)
		for j, k := range keywords {
			if strings.Contains(lower, k) {
				vec[j] = 1
			}
		}
		vec[len(keywords)] = 0.01
		out[i] = vec
	}
	return out, nil
}

type testDeps struct {
	model   *keywordModel
	store   *memory.Store
	catalog *catalog.Memory
	pdfPath string
}

// installDeps wires in-memory dependencies and a PDF stand-in file, and
// restores the previous dependencies when the test ends.
func installDeps(t *testing.T) *testDeps {
	t.Helper()

	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "guide.pdf")
	if err := os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	splitter, err := loader.NewSentenceSplitter(3, 0)
	if err != nil {
		t.Fatal(err)
	}

	td := &testDeps{
		model:   &keywordModel{},
		store:   memory.New(),
		catalog: catalog.NewMemory(),
		pdfPath: pdfPath,
	}

	prev := deps
	SetDependencies(&Dependencies{
		Loader:    loader.New(staticExtractor{text: sampleText}, splitter),
		Embedder:  vector.NewEmbedder(td.model, td.store),
		Generator: td.model,
		Catalog:   td.catalog,
	})
	t.Cleanup(func() { deps = prev })
	return td
}

// hasAppErrorType walks the cause chain for an application error of typ.
// Workflow errors wrap activity errors, so errors.As would stop at the
// outermost application error.
func hasAppErrorType(err error, typ string) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if appErr, ok := e.(*temporal.ApplicationError); ok && appErr.Type() == typ {
			return true
		}
	}
	return false
}
