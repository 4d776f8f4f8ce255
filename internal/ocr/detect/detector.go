// Package detect implements speech-bubble detection: a sliding
// vertical window over the source image, a letterboxed model pass per
// window, and non-max suppression over the pooled candidates.
package detect

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/pagevoice/pagevoice/internal/ocr/engine"
	"github.com/pagevoice/pagevoice/internal/ocr/imaging"
	"github.com/pagevoice/pagevoice/internal/ocr/tensor"
)

// Config holds the detector's tunable thresholds. Values are
// calibration constants, kept named so they can be re-tuned against a
// labeled corpus.
type Config struct {
	// InputSize is the square model input side length S.
	InputSize int
	// WindowOverlap is the fraction of S shared between consecutive
	// vertical windows.
	WindowOverlap float64
	// ScoreThreshold drops candidates below this detection score.
	ScoreThreshold float64
	// IoUThreshold is the non-max suppression overlap limit.
	IoUThreshold float64
	// MaskThreshold binarizes probability-mask model outputs.
	MaskThreshold float64
	// MinMaskArea drops connected components smaller than this many
	// mask pixels.
	MinMaskArea int
	// Mean and Std normalize input pixels after scaling to [0,1].
	Mean [3]float32
	Std  [3]float32
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{
		InputSize:      640,
		WindowOverlap:  0.25,
		ScoreThreshold: 0.25,
		IoUThreshold:   0.45,
		MaskThreshold:  0.35,
		MinMaskArea:    40,
		Mean:           [3]float32{0, 0, 0},
		Std:            [3]float32{1, 1, 1},
	}
}

// BubbleDetector runs a detection model over sliding windows of an
// image and returns deduplicated boxes in original-image coordinates.
type BubbleDetector struct {
	session tensor.Session
	cfg     Config
}

// New creates a detector over an open model session.
func New(session tensor.Session, cfg Config) *BubbleDetector {
	if cfg.InputSize <= 0 {
		cfg = DefaultConfig()
	}
	return &BubbleDetector{session: session, cfg: cfg}
}

// Detect implements engine.Detector. Images taller than the model
// input run as overlapping vertical windows so small text in tall
// panel strips keeps its resolution; shorter images run as a single
// window.
func (d *BubbleDetector) Detect(ctx context.Context, img image.Image) ([]engine.BoundingBox, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	size := d.cfg.InputSize
	stride := int(float64(size) * (1 - d.cfg.WindowOverlap))

	var pooled []engine.BoundingBox
	windows := 0
	for y := 0; y < h; y += stride {
		chunkH := size
		if h-y < chunkH {
			chunkH = h - y
		}
		// A short tail window that is not the final one carries no
		// content the previous window missed.
		if chunkH < stride/2 && y+chunkH < h {
			continue
		}

		crop := imaging.Crop(img, image.Rect(b.Min.X, b.Min.Y+y, b.Min.X+w, b.Min.Y+y+chunkH))
		boxes, err := d.runWindow(ctx, crop)
		if err != nil {
			return nil, fmt.Errorf("detect window at y=%d: %w", y, err)
		}
		for _, box := range boxes {
			box.MinY += float64(y)
			box.MaxY += float64(y)
			pooled = append(pooled, box.Clamp(float64(w), float64(h)))
		}
		windows++
	}

	final := NonMaxSuppression(pooled, d.cfg.IoUThreshold)
	slog.Debug("detector: detection complete",
		slog.Int("windows", windows),
		slog.Int("candidates", len(pooled)),
		slog.Int("boxes", len(final)))
	return final, nil
}

func (d *BubbleDetector) runWindow(ctx context.Context, crop *image.RGBA) ([]engine.BoundingBox, error) {
	size := d.cfg.InputSize
	canvas, meta := imaging.Letterbox(crop, size, color.Black)
	chw := imaging.ToCHW(canvas, d.cfg.Mean, d.cfg.Std)

	out, err := d.session.Run(ctx, tensor.Tensor{
		Data:  chw,
		Shape: []int64{1, 3, int64(size), int64(size)},
	})
	if err != nil {
		return nil, err
	}

	var candidates []engine.BoundingBox
	if isMaskOutput(out) {
		candidates = maskToBoxes(out, meta, d.cfg.MaskThreshold, d.cfg.MinMaskArea)
	} else {
		candidates = decodeBoxRows(out, meta, d.cfg.ScoreThreshold)
	}
	// Suppress within the window first; the pooled pass handles
	// duplicates across overlapping windows.
	return NonMaxSuppression(candidates, d.cfg.IoUThreshold), nil
}

// decodeBoxRows decodes row-major candidate output laid out as
// (cx, cy, w, h, score) rows over N detections, un-letterboxing each
// surviving candidate back to window-local pixel coordinates.
func decodeBoxRows(out tensor.Tensor, meta imaging.LetterboxMeta, scoreThr float64) []engine.BoundingBox {
	dims := out.Shape
	if len(dims) < 2 {
		return nil
	}
	n := int(dims[len(dims)-1])
	rows := int(dims[len(dims)-2])
	if rows < 5 || n <= 0 || len(out.Data) < 5*n {
		return nil
	}

	var boxes []engine.BoundingBox
	for i := 0; i < n; i++ {
		score := float64(out.Data[4*n+i])
		if score < scoreThr {
			continue
		}
		cx := (float64(out.Data[0*n+i]) - float64(meta.PadX)) / meta.Scale
		cy := (float64(out.Data[1*n+i]) - float64(meta.PadY)) / meta.Scale
		bw := float64(out.Data[2*n+i]) / meta.Scale
		bh := float64(out.Data[3*n+i]) / meta.Scale

		box := engine.BoundingBox{
			MinX:  cx - bw/2,
			MinY:  cy - bh/2,
			MaxX:  cx + bw/2,
			MaxY:  cy + bh/2,
			Score: score,
		}
		boxes = append(boxes, box.Clamp(float64(meta.SrcW), float64(meta.SrcH)))
	}
	return boxes
}

func isMaskOutput(out tensor.Tensor) bool {
	return len(out.Shape) == 4 && out.Shape[1] == 1
}

// Close releases the underlying model session.
func (d *BubbleDetector) Close() error {
	return d.session.Close()
}
