// Package imaging holds the raster operations shared by detection and
// recognition preprocessing: letterboxing, cropping, rotation and
// CHW normalization.
package imaging

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// LetterboxMeta records how a source raster was placed into the model
// canvas so detections can be mapped back to source coordinates.
type LetterboxMeta struct {
	Scale float64
	PadX  int
	PadY  int
	SrcW  int
	SrcH  int
}

// Letterbox performs an aspect-preserving resize of src into a
// size x size canvas, padding with fill.
func Letterbox(src image.Image, size int, fill color.Color) (*image.RGBA, LetterboxMeta) {
	b := src.Bounds()
	iw, ih := b.Dx(), b.Dy()
	scale := min(float64(size)/float64(iw), float64(size)/float64(ih))
	nw := int(float64(iw)*scale + 0.5)
	nh := int(float64(ih)*scale + 0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	padX := (size - nw) / 2
	padY := (size - nh) / 2

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(fill), image.Point{}, xdraw.Src)
	target := image.Rect(padX, padY, padX+nw, padY+nh)
	xdraw.ApproxBiLinear.Scale(dst, target, src, b, xdraw.Src, nil)

	return dst, LetterboxMeta{Scale: scale, PadX: padX, PadY: padY, SrcW: iw, SrcH: ih}
}

// Crop returns a copy of the region r of src. The copy keeps
// downstream stages from ever touching the source raster.
func Crop(src image.Image, r image.Rectangle) *image.RGBA {
	r = r.Intersect(src.Bounds())
	if r.Empty() {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	xdraw.Draw(dst, dst.Bounds(), src, r.Min, xdraw.Src)
	return dst
}

// Rotate90CCW rotates src a quarter turn counter-clockwise, turning
// vertical text runs horizontal.
func Rotate90CCW(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < w; y++ {
		for x := 0; x < h; x++ {
			dst.Set(x, y, src.At(b.Min.X+w-1-y, b.Min.Y+x))
		}
	}
	return dst
}

// ResizeToHeight scales src to the given height preserving aspect
// ratio, truncates at maxWidth, and pads the remainder with fill.
// This is the recognition-model input shape (height x maxWidth).
func ResizeToHeight(src image.Image, height, maxWidth int, fill color.Color) *image.RGBA {
	b := src.Bounds()
	scale := float64(height) / float64(b.Dy())
	rw := int(float64(b.Dx())*scale + 0.5)
	if rw < 1 {
		rw = 1
	}
	if rw > maxWidth {
		rw = maxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(fill), image.Point{}, xdraw.Src)
	xdraw.ApproxBiLinear.Scale(dst, image.Rect(0, 0, rw, height), src, b, xdraw.Src, nil)
	return dst
}

// ToCHW converts an RGBA raster into a normalized CHW float tensor:
// out[c][y][x] = (value/255 - mean[c]) / std[c].
func ToCHW(img *image.RGBA, mean, std [3]float32) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	size := w * h
	out := make([]float32, 3*size)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			p := y*w + x
			r := float32(row[x*4]) / 255
			g := float32(row[x*4+1]) / 255
			bl := float32(row[x*4+2]) / 255
			out[p] = (r - mean[0]) / std[0]
			out[p+size] = (g - mean[1]) / std[1]
			out[p+2*size] = (bl - mean[2]) / std[2]
		}
	}
	return out
}
