package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/pagevoice/pagevoice/internal/ocr/engine"
)

type stubRecognizer struct {
	line  engine.Line
	err   error
	calls int
}

func (r *stubRecognizer) RecognizeBox(_ context.Context, _ image.Image, _ engine.BoundingBox) (engine.Line, error) {
	r.calls++
	return r.line, r.err
}

func (r *stubRecognizer) Close() error { return nil }

func box() engine.BoundingBox {
	return engine.BoundingBox{MaxX: 100, MaxY: 40}
}

func TestSelectorPPOCRModeSkipsFallback(t *testing.T) {
	primary := &stubRecognizer{line: engine.Line{Text: "primary read", Confidence: 0.9}}
	fallback := &stubRecognizer{line: engine.Line{Text: "fallback read", Confidence: 0.9}}
	s := NewSelector(primary, fallback)

	line, err := s.RecognizeBox(context.Background(), ModePPOCR, testImage(), box())
	if err != nil {
		t.Fatalf("RecognizeBox: %v", err)
	}
	if line.Text != "primary read" {
		t.Errorf("text = %q, want primary", line.Text)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback ran %d times, want 0", fallback.calls)
	}
}

func TestSelectorTesseractModeSkipsPrimary(t *testing.T) {
	primary := &stubRecognizer{line: engine.Line{Text: "primary read", Confidence: 0.9}}
	fallback := &stubRecognizer{line: engine.Line{Text: "fallback read", Confidence: 0.9}}
	s := NewSelector(primary, fallback)

	line, err := s.RecognizeBox(context.Background(), ModeTesseract, testImage(), box())
	if err != nil {
		t.Fatalf("RecognizeBox: %v", err)
	}
	if line.Text != "fallback read" {
		t.Errorf("text = %q, want fallback", line.Text)
	}
	if primary.calls != 0 {
		t.Errorf("primary ran %d times, want 0", primary.calls)
	}
}

func TestSelectorTesseractModeWithoutFallbackErrors(t *testing.T) {
	s := NewSelector(&stubRecognizer{}, nil)
	if _, err := s.RecognizeBox(context.Background(), ModeTesseract, testImage(), box()); err == nil {
		t.Fatal("expected error without a fallback backend")
	}
}

func TestSelectorHybridKeepsGoodPrimaryRead(t *testing.T) {
	primary := &stubRecognizer{line: engine.Line{Text: "A perfectly readable sentence", Confidence: 0.9}}
	fallback := &stubRecognizer{line: engine.Line{Text: "should not run", Confidence: 0.9}}
	s := NewSelector(primary, fallback)

	line, err := s.RecognizeBox(context.Background(), ModeHybrid, testImage(), box())
	if err != nil {
		t.Fatalf("RecognizeBox: %v", err)
	}
	if line.Text != "A perfectly readable sentence" {
		t.Errorf("text = %q, want primary kept", line.Text)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback ran %d times, want 0 for a clean read", fallback.calls)
	}
}

func TestSelectorHybridRetriesGarbage(t *testing.T) {
	primary := &stubRecognizer{line: engine.Line{Text: "|||~~|||", Confidence: 0.9}}
	fallback := &stubRecognizer{line: engine.Line{Text: "Hello there friend", Confidence: 0.8}}
	s := NewSelector(primary, fallback)

	line, err := s.RecognizeBox(context.Background(), ModeHybrid, testImage(), box())
	if err != nil {
		t.Fatalf("RecognizeBox: %v", err)
	}
	if line.Text != "Hello there friend" {
		t.Errorf("text = %q, want the fallback's better read", line.Text)
	}
}

func TestSelectorHybridKeepsPrimaryWhenFallbackNoBetter(t *testing.T) {
	primary := &stubRecognizer{line: engine.Line{Text: "ab", Confidence: 0.9}}
	fallback := &stubRecognizer{line: engine.Line{Text: "cd", Confidence: 0.9}}
	s := NewSelector(primary, fallback)

	line, err := s.RecognizeBox(context.Background(), ModeHybrid, testImage(), box())
	if err != nil {
		t.Fatalf("RecognizeBox: %v", err)
	}
	if line.Text != "ab" {
		t.Errorf("text = %q, want primary kept on equal score", line.Text)
	}
}

func TestSelectorHybridUsesFallbackOnPrimaryError(t *testing.T) {
	primary := &stubRecognizer{err: errors.New("model failed")}
	fallback := &stubRecognizer{line: engine.Line{Text: "rescued text", Confidence: 0.7}}
	s := NewSelector(primary, fallback)

	line, err := s.RecognizeBox(context.Background(), ModeHybrid, testImage(), box())
	if err != nil {
		t.Fatalf("RecognizeBox: %v", err)
	}
	if line.Text != "rescued text" {
		t.Errorf("text = %q, want fallback rescue", line.Text)
	}
}

func TestAssessLines(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		wantLow bool
	}{
		{name: "empty", lines: nil, wantLow: true},
		{name: "punctuation garbage", lines: []string{"||| ~~ |||"}, wantLow: true},
		{name: "too few letters", lines: []string{"ab"}, wantLow: true},
		{name: "digits only", lines: []string{"12345"}, wantLow: true},
		{name: "digits with enough letters", lines: []string{"Chapter 12, page 345"}, wantLow: false},
		{name: "clean sentence", lines: []string{"The quick brown fox"}, wantLow: false},
		{name: "mostly symbols", lines: []string{"a#$%^&*()!@"}, wantLow: true},
		{name: "multiple clean lines", lines: []string{"Hello", "World"}, wantLow: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := AssessLines(tt.lines)
			if q.Low != tt.wantLow {
				t.Errorf("AssessLines(%v).Low = %v, want %v (letters=%d ratio=%.2f)",
					tt.lines, q.Low, tt.wantLow, q.Letters, q.AlphaRatio)
			}
		})
	}
}

func TestAssessLinesExcludesDigitsFromLetterCount(t *testing.T) {
	q := AssessLines([]string{"12345"})
	if q.Letters != 0 {
		t.Errorf("letters = %d for a digit run, want 0", q.Letters)
	}
	if q.AlphaRatio != 0 {
		t.Errorf("alpha ratio = %v for a digit run, want 0", q.AlphaRatio)
	}
	if !q.Low {
		t.Error("digit-only text judged readable, want low quality")
	}
}
