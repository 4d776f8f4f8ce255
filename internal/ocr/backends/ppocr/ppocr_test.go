package ppocr

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/pagevoice/pagevoice/internal/ocr/engine"
	"github.com/pagevoice/pagevoice/internal/ocr/tensor"
)

type seqSession struct {
	outputs []tensor.Tensor
	calls   int
}

func (s *seqSession) Run(_ context.Context, _ tensor.Tensor) (tensor.Tensor, error) {
	out := s.outputs[s.calls%len(s.outputs)]
	s.calls++
	return out, nil
}

func (s *seqSession) Close() error { return nil }

func TestRecognizeBoxWideCropSinglePass(t *testing.T) {
	sess := &seqSession{outputs: []tensor.Tensor{
		logits([][]float32{{0, 5, 0}}),
	}}
	r := NewRecognizer(sess, []string{"a", "b"}, DefaultConfig())

	img := image.NewRGBA(image.Rect(0, 0, 200, 50))
	line, err := r.RecognizeBox(context.Background(), img, engine.BoundingBox{MaxX: 200, MaxY: 50})
	if err != nil {
		t.Fatalf("RecognizeBox: %v", err)
	}
	if line.Text != "a" {
		t.Errorf("text = %q, want %q", line.Text, "a")
	}
	if sess.calls != 1 {
		t.Errorf("model ran %d times, want 1 for a wide crop", sess.calls)
	}
}

func TestRecognizeBoxTallCropRetriesRotated(t *testing.T) {
	// First pass reads "a" with a thin margin; the rotated pass reads
	// "b" with a wide one and must win.
	sess := &seqSession{outputs: []tensor.Tensor{
		logits([][]float32{{0, 0.1, 0}}),
		logits([][]float32{{0, 0, 8}}),
	}}
	r := NewRecognizer(sess, []string{"a", "b"}, DefaultConfig())

	img := image.NewRGBA(image.Rect(0, 0, 40, 200))
	line, err := r.RecognizeBox(context.Background(), img, engine.BoundingBox{MaxX: 40, MaxY: 200})
	if err != nil {
		t.Fatalf("RecognizeBox: %v", err)
	}
	if sess.calls != 2 {
		t.Fatalf("model ran %d times, want 2 for a tall crop", sess.calls)
	}
	if line.Text != "b" {
		t.Errorf("text = %q, want the higher-confidence rotated read %q", line.Text, "b")
	}
}

func TestRecognizeBoxTallCropKeepsStrongerUprightRead(t *testing.T) {
	sess := &seqSession{outputs: []tensor.Tensor{
		logits([][]float32{{0, 8, 0}}),
		logits([][]float32{{0, 0, 0.1}}),
	}}
	r := NewRecognizer(sess, []string{"a", "b"}, DefaultConfig())

	img := image.NewRGBA(image.Rect(0, 0, 40, 200))
	line, err := r.RecognizeBox(context.Background(), img, engine.BoundingBox{MaxX: 40, MaxY: 200})
	if err != nil {
		t.Fatalf("RecognizeBox: %v", err)
	}
	if line.Text != "a" {
		t.Errorf("text = %q, want the upright read %q", line.Text, "a")
	}
}

func TestRecognizeBoxRotationDisabled(t *testing.T) {
	sess := &seqSession{outputs: []tensor.Tensor{
		logits([][]float32{{0, 5, 0}}),
	}}
	cfg := DefaultConfig()
	cfg.TryRotate = false
	r := NewRecognizer(sess, []string{"a", "b"}, cfg)

	img := image.NewRGBA(image.Rect(0, 0, 40, 200))
	if _, err := r.RecognizeBox(context.Background(), img, engine.BoundingBox{MaxX: 40, MaxY: 200}); err != nil {
		t.Fatalf("RecognizeBox: %v", err)
	}
	if sess.calls != 1 {
		t.Errorf("model ran %d times, want 1 with rotation disabled", sess.calls)
	}
}

func TestLoadDict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.txt")
	if err := os.WriteFile(path, []byte("a\nb\nあ\n"), 0o644); err != nil {
		t.Fatalf("write dict: %v", err)
	}

	dict, err := LoadDict(path)
	if err != nil {
		t.Fatalf("LoadDict: %v", err)
	}
	if len(dict) != 3 {
		t.Fatalf("got %d tokens, want 3", len(dict))
	}
	if dict[2] != "あ" {
		t.Errorf("dict[2] = %q, want %q", dict[2], "あ")
	}
}

func TestLoadDictEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.txt")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write dict: %v", err)
	}
	if _, err := LoadDict(path); err == nil {
		t.Fatal("expected error for empty dictionary")
	}
}
