// Package ppocr implements text recognition with a CRNN-style model
// and CTC greedy decoding. Crops are scaled to a fixed input height,
// right-padded onto a white canvas, and decoded against a dictionary
// shipped alongside the model.
package ppocr

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"strconv"

	"github.com/pagevoice/pagevoice/internal/ocr/engine"
	"github.com/pagevoice/pagevoice/internal/ocr/imaging"
	"github.com/pagevoice/pagevoice/internal/ocr/tensor"
	"github.com/pagevoice/pagevoice/internal/registry"
)

func init() {
	registry.Recognizers.Register("ppocr", func(config map[string]string) (engine.Recognizer, error) {
		runtime := tensor.NewORTRuntime(config["onnx_lib"])
		session, err := runtime.OpenSession(context.Background(), config["model_path"])
		if err != nil {
			return nil, fmt.Errorf("open recognition model: %w", err)
		}
		dict, err := LoadDict(config["dict_path"])
		if err != nil {
			session.Close()
			return nil, err
		}
		cfg := DefaultConfig()
		if v, err := strconv.ParseBool(config["try_rotate"]); err == nil {
			cfg.TryRotate = v
		}
		return NewRecognizer(session, dict, cfg), nil
	})
}

// Config holds the recognizer's input geometry and rotation policy.
type Config struct {
	// ImgH is the model input height.
	ImgH int
	// MaxW caps the padded input width.
	MaxW int
	// TryRotate retries tall crops rotated a quarter turn and keeps
	// whichever reading scored higher.
	TryRotate bool
	// VerticalRatio is the height/width ratio above which a crop
	// counts as tall.
	VerticalRatio float64
}

// DefaultConfig returns the recognizer defaults.
func DefaultConfig() Config {
	return Config{
		ImgH:          48,
		MaxW:          320,
		TryRotate:     true,
		VerticalRatio: 1.2,
	}
}

// LoadDict reads a recognition dictionary, one token per line. Class
// index i in the model output maps to dict[i-1]; index 0 is the CTC
// blank.
func LoadDict(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()

	var dict []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		dict = append(dict, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	if len(dict) == 0 {
		return nil, fmt.Errorf("dictionary %s is empty", path)
	}
	return dict, nil
}

// Recognizer decodes text from image crops using a recognition model
// session. Safe for concurrent use when the session is.
type Recognizer struct {
	session tensor.Session
	dict    []string
	cfg     Config
}

// NewRecognizer creates a recognizer over an open model session.
func NewRecognizer(session tensor.Session, dict []string, cfg Config) *Recognizer {
	if cfg.ImgH <= 0 {
		cfg = DefaultConfig()
	}
	return &Recognizer{session: session, dict: dict, cfg: cfg}
}

// RecognizeBox implements engine.Recognizer.
func (r *Recognizer) RecognizeBox(ctx context.Context, img image.Image, box engine.BoundingBox) (engine.Line, error) {
	crop := imaging.Crop(img, box.Rect())
	line, err := r.recognize(ctx, crop)
	if err != nil {
		return engine.Line{}, err
	}

	// Tall crops are usually vertical text; retry rotated and keep
	// the reading the model was more certain about.
	cb := crop.Bounds()
	if r.cfg.TryRotate && float64(cb.Dy()) > r.cfg.VerticalRatio*float64(cb.Dx()) {
		rotated, err := r.recognize(ctx, imaging.Rotate90CCW(crop))
		if err == nil && rotated.Confidence > line.Confidence {
			line = rotated
		}
	}
	return line, nil
}

func (r *Recognizer) recognize(ctx context.Context, crop *image.RGBA) (engine.Line, error) {
	canvas := imaging.ResizeToHeight(crop, r.cfg.ImgH, r.cfg.MaxW, color.White)
	chw := imaging.ToCHW(canvas, [3]float32{0.5, 0.5, 0.5}, [3]float32{0.5, 0.5, 0.5})

	out, err := r.session.Run(ctx, tensor.Tensor{
		Data:  chw,
		Shape: []int64{1, 3, int64(r.cfg.ImgH), int64(r.cfg.MaxW)},
	})
	if err != nil {
		return engine.Line{}, fmt.Errorf("recognition model: %w", err)
	}
	return ctcGreedyDecode(out, r.dict)
}

// Close releases the underlying model session.
func (r *Recognizer) Close() error {
	return r.session.Close()
}
