package loader

import (
	"context"
	"fmt"
)

// Loader extracts a PDF and splits it into chunks.
type Loader struct {
	extractor Extractor
	splitter  *SentenceSplitter
}

// New returns a Loader. Nil arguments select DefaultExtractor and
// DefaultSplitter.
func New(extractor Extractor, splitter *SentenceSplitter) *Loader {
	if extractor == nil {
		extractor = DefaultExtractor()
	}
	if splitter == nil {
		splitter = DefaultSplitter()
	}
	return &Loader{extractor: extractor, splitter: splitter}
}

// LoadAndChunk reads the PDF at path and returns its chunks in document
// order. A missing file yields ErrFileNotFound and an empty path
// ErrEmptyPath; callers treat both as permanent.
func (l *Loader) LoadAndChunk(ctx context.Context, path string) ([]string, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	text, err := l.extractor.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	return l.splitter.Split(text), nil
}
