// Package ocr produces per-page text from PDF documents. The text feeds
// address detection only.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/odgsully/renoscore/internal/config"
)

// Extractor returns the text of every page of a PDF, in page order.
type Extractor interface {
	ExtractPages(ctx context.Context, pdf []byte) ([]string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.TextConfig, mistral config.MistralConfig) (Extractor, error) {
	switch cfg.Source {
	case "native", "":
		return NewNative(), nil
	case "pdftotext":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if mistral.Key == "" {
			return nil, eris.New("ocr: mistral source requires mistral.key")
		}
		return NewMistralOCR(mistral.Key, mistral.Model), nil
	default:
		return nil, eris.Errorf("ocr: unknown source %q", cfg.Source)
	}
}
