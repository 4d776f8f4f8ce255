// Package engine defines the contracts shared by the OCR pipeline:
// detector and recognizer interfaces plus the geometry and result
// types that flow between them.
package engine

import (
	"context"
	"image"
)

// BoundingBox is an axis-aligned box in original-image pixel
// coordinates. MinX <= MaxX and MinY <= MaxY always hold for boxes
// produced by a Detector.
type BoundingBox struct {
	MinX  float64 `json:"minX"`
	MinY  float64 `json:"minY"`
	MaxX  float64 `json:"maxX"`
	MaxY  float64 `json:"maxY"`
	Score float64 `json:"score"`
}

// Width returns the horizontal extent of the box.
func (b BoundingBox) Width() float64 { return b.MaxX - b.MinX }

// Height returns the vertical extent of the box.
func (b BoundingBox) Height() float64 { return b.MaxY - b.MinY }

// Clamp limits the box to the given image dimensions.
func (b BoundingBox) Clamp(width, height float64) BoundingBox {
	c := b
	c.MinX = clamp(c.MinX, 0, width)
	c.MinY = clamp(c.MinY, 0, height)
	c.MaxX = clamp(c.MaxX, 0, width)
	c.MaxY = clamp(c.MaxY, 0, height)
	return c
}

// Rect converts the box to an integer image rectangle with at least
// one pixel in each dimension.
func (b BoundingBox) Rect() image.Rectangle {
	r := image.Rect(int(b.MinX), int(b.MinY), int(b.MaxX)+1, int(b.MaxY)+1)
	if r.Dx() < 1 {
		r.Max.X = r.Min.X + 1
	}
	if r.Dy() < 1 {
		r.Max.Y = r.Min.Y + 1
	}
	return r
}

// IoU returns the intersection-over-union overlap of two boxes.
func (b BoundingBox) IoU(o BoundingBox) float64 {
	x1 := max(b.MinX, o.MinX)
	y1 := max(b.MinY, o.MinY)
	x2 := min(b.MaxX, o.MaxX)
	y2 := min(b.MaxY, o.MaxY)
	inter := max(0, x2-x1) * max(0, y2-y1)
	union := b.Width()*b.Height() + o.Width()*o.Height() - inter + 1e-6
	return inter / union
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Line is a single recognized text line with its confidence in [0,1].
type Line struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Result is the unit produced by a full recognize pass: assembled line
// texts in detection order plus the detected boxes.
type Result struct {
	Lines []string      `json:"lines"`
	Boxes []BoundingBox `json:"boxes"`
}

// Detector finds likely text regions in a raster image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]BoundingBox, error)
	Close() error
}

// Recognizer decodes the text inside one detected box of an image.
// The source image is never mutated; implementations crop copies.
type Recognizer interface {
	RecognizeBox(ctx context.Context, img image.Image, box BoundingBox) (Line, error)
	Close() error
}
