package detect

import (
	"github.com/pagevoice/pagevoice/internal/ocr/engine"
	"github.com/pagevoice/pagevoice/internal/ocr/imaging"
	"github.com/pagevoice/pagevoice/internal/ocr/tensor"
)

// maskMergeIoU is the overlap at which neighboring mask components are
// considered fragments of one text region and merged.
const maskMergeIoU = 0.2

// maskToBoxes decodes a probability-mask output of shape [1,1,H,W]
// into bounding boxes: binarize at thr, flood-fill connected
// components, drop tiny ones, un-letterbox the rest. A component's
// score is its mean probability.
func maskToBoxes(out tensor.Tensor, meta imaging.LetterboxMeta, thr float64, minArea int) []engine.BoundingBox {
	h := int(out.Shape[2])
	w := int(out.Shape[3])
	if h <= 0 || w <= 0 || len(out.Data) < h*w {
		return nil
	}

	visited := make([]bool, h*w)
	var boxes []engine.BoundingBox
	queue := make([]int, 0, 256)

	for start := 0; start < h*w; start++ {
		if visited[start] || float64(out.Data[start]) < thr {
			continue
		}

		minX, minY := w, h
		maxX, maxY := 0, 0
		area := 0
		probSum := 0.0

		queue = append(queue[:0], start)
		visited[start] = true
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := idx%w, idx/w

			area++
			probSum += float64(out.Data[idx])
			if x < minX {
				minX = x
			}
			if y < minY {
				minY = y
			}
			if x > maxX {
				maxX = x
			}
			if y > maxY {
				maxY = y
			}

			for _, n := range [4]int{idx - 1, idx + 1, idx - w, idx + w} {
				if n < 0 || n >= h*w || visited[n] {
					continue
				}
				// Row wrap check for the horizontal neighbors.
				if (n == idx-1 || n == idx+1) && n/w != y {
					continue
				}
				if float64(out.Data[n]) < thr {
					continue
				}
				visited[n] = true
				queue = append(queue, n)
			}
		}

		if area < minArea {
			continue
		}
		box := engine.BoundingBox{
			MinX:  (float64(minX) - float64(meta.PadX)) / meta.Scale,
			MinY:  (float64(minY) - float64(meta.PadY)) / meta.Scale,
			MaxX:  (float64(maxX+1) - float64(meta.PadX)) / meta.Scale,
			MaxY:  (float64(maxY+1) - float64(meta.PadY)) / meta.Scale,
			Score: probSum / float64(area),
		}
		boxes = append(boxes, box.Clamp(float64(meta.SrcW), float64(meta.SrcH)))
	}

	return mergeOverlapping(boxes, maskMergeIoU)
}

// mergeOverlapping unions boxes whose IoU exceeds iouThr. Mask models
// often split one text line into touching components; merging yields a
// single crop per line.
func mergeOverlapping(boxes []engine.BoundingBox, iouThr float64) []engine.BoundingBox {
	merged := make([]engine.BoundingBox, 0, len(boxes))
	for _, box := range boxes {
		absorbed := false
		for i := range merged {
			if merged[i].IoU(box) > iouThr {
				merged[i] = union(merged[i], box)
				absorbed = true
				break
			}
		}
		if !absorbed {
			merged = append(merged, box)
		}
	}
	return merged
}

func union(a, b engine.BoundingBox) engine.BoundingBox {
	out := a
	if b.MinX < out.MinX {
		out.MinX = b.MinX
	}
	if b.MinY < out.MinY {
		out.MinY = b.MinY
	}
	if b.MaxX > out.MaxX {
		out.MaxX = b.MaxX
	}
	if b.MaxY > out.MaxY {
		out.MaxY = b.MaxY
	}
	if b.Score > out.Score {
		out.Score = b.Score
	}
	return out
}
