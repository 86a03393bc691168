// Package loader turns a PDF on disk into an ordered list of text chunks.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrPDFToolNotFound is returned when pdftotext is not installed.
	ErrPDFToolNotFound = errors.New("pdftotext not found: install poppler-utils")
	// ErrFileNotFound is returned when the PDF path does not exist.
	ErrFileNotFound = errors.New("pdf file not found")
	// ErrEmptyPath is returned for an empty PDF path.
	ErrEmptyPath = errors.New("pdf path is empty")
)

// Extractor reads the plain text of a PDF.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// CheckAvailable reports whether pdftotext is on PATH.
func CheckAvailable() error {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// PDFToText extracts text with poppler's pdftotext, keeping the page layout.
type PDFToText struct {
	runner    CommandRunner
	checkTool bool
}

// NewPDFToText returns an extractor that shells out to pdftotext.
func NewPDFToText() *PDFToText {
	return &PDFToText{runner: execRunner{}, checkTool: true}
}

// NewPDFToTextWithRunner returns an extractor that uses runner instead of
// executing pdftotext directly.
func NewPDFToTextWithRunner(runner CommandRunner) *PDFToText {
	return &PDFToText{runner: runner}
}

func (p *PDFToText) Extract(ctx context.Context, path string) (string, error) {
	if p.checkTool {
		if err := CheckAvailable(); err != nil {
			return "", err
		}
	}
	out, err := p.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	return string(out), nil
}

// Native extracts text in process with github.com/ledongthuc/pdf. It copes
// with fewer PDFs than pdftotext but needs no external tool.
type Native struct{}

func (Native) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

// Fallback tries each extractor in order and returns the first non-empty
// text. If every extractor fails the errors are joined.
type Fallback []Extractor

func (f Fallback) Extract(ctx context.Context, path string) (string, error) {
	var errs []error
	for _, e := range f {
		text, err := e.Extract(ctx, path)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	if len(errs) == 0 {
		return "", nil
	}
	return "", errors.Join(errs...)
}

// DefaultExtractor prefers pdftotext and falls back to the native reader.
func DefaultExtractor() Extractor {
	return Fallback{NewPDFToText(), Native{}}
}

func checkPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrEmptyPath
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

// ExtractorByName returns the extractor selected by configuration:
// "pdftotext", "native", or "auto" (and empty) for DefaultExtractor.
func ExtractorByName(name string) (Extractor, error) {
	switch name {
	case "", "auto":
		return DefaultExtractor(), nil
	case "pdftotext":
		return NewPDFToText(), nil
	case "native":
		return Native{}, nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", name)
	}
}
