package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/pagevoice/pagevoice/internal/ocr/engine"
)

// Mode selects which recognition backend serves a request.
type Mode string

const (
	// ModePPOCR uses the model backend, with a page-level fallback
	// only when it reads nothing at all.
	ModePPOCR Mode = "ppocr"
	// ModeTesseract bypasses the model backend entirely.
	ModeTesseract Mode = "tesseract"
	// ModeHybrid runs the model backend first and retries low-quality
	// readings with the fallback, keeping whichever scores higher.
	ModeHybrid Mode = "hybrid"
)

// Selector routes per-box recognition between a primary backend and an
// optional fallback according to the active mode.
type Selector struct {
	primary  engine.Recognizer
	fallback engine.Recognizer
}

// NewSelector creates a selector. fallback may be nil, which pins all
// modes to the primary backend.
func NewSelector(primary, fallback engine.Recognizer) *Selector {
	return &Selector{primary: primary, fallback: fallback}
}

// RecognizeBox reads one box under the given mode.
func (s *Selector) RecognizeBox(ctx context.Context, mode Mode, img image.Image, box engine.BoundingBox) (engine.Line, error) {
	switch mode {
	case ModeTesseract:
		if s.fallback == nil {
			return engine.Line{}, fmt.Errorf("tesseract mode requested but no fallback backend configured")
		}
		return s.fallback.RecognizeBox(ctx, img, box)
	case ModeHybrid:
		return s.recognizeHybrid(ctx, img, box)
	default:
		return s.primary.RecognizeBox(ctx, img, box)
	}
}

func (s *Selector) recognizeHybrid(ctx context.Context, img image.Image, box engine.BoundingBox) (engine.Line, error) {
	line, err := s.primary.RecognizeBox(ctx, img, box)
	if s.fallback == nil {
		return line, err
	}

	q := AssessLines([]string{line.Text})
	if err == nil && !q.Low {
		return line, nil
	}

	alt, altErr := s.fallback.RecognizeBox(ctx, img, box)
	if altErr != nil {
		slog.Debug("selector: fallback read failed", slog.Any("error", altErr))
		return line, err
	}
	if err != nil {
		return alt, nil
	}

	// The primary keeps ties.
	if AssessLines([]string{alt.Text}).score() > q.score() {
		return alt, nil
	}
	return line, nil
}

// Close closes both backends.
func (s *Selector) Close() error {
	err := s.primary.Close()
	if s.fallback != nil {
		if ferr := s.fallback.Close(); err == nil {
			err = ferr
		}
	}
	return err
}
