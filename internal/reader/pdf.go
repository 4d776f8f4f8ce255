package reader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/wudi/pdfkit/extractor"
	"github.com/wudi/pdfkit/ir"
)

// PDFPage is one page of extracted text.
type PDFPage struct {
	Index int
	Label string
	Text  string
}

// LoadPDF extracts per-page text from a PDF on disk. Pages with no
// text layer are skipped; a fully scanned document yields no pages
// and should go through the image pipeline instead.
func LoadPDF(ctx context.Context, path string) ([]PDFPage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	doc, err := ir.NewDefault().Parse(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}
	dec := doc.Decoded()
	if dec == nil {
		return nil, errors.New("pdf produced no decoded document")
	}

	ext, err := extractor.New(dec)
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}
	pages, err := ext.ExtractText()
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	out := make([]PDFPage, 0, len(pages))
	for _, page := range pages {
		text := strings.TrimSpace(page.Content)
		if text == "" {
			continue
		}
		out = append(out, PDFPage{
			Index: page.Page,
			Label: page.Label,
			Text:  text,
		})
	}
	return out, nil
}
