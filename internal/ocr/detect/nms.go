package detect

import (
	"sort"

	"github.com/pagevoice/pagevoice/internal/ocr/engine"
)

// NonMaxSuppression keeps the highest-scoring box of every overlapping
// cluster. Two boxes overlap when their IoU exceeds iouThr.
func NonMaxSuppression(boxes []engine.BoundingBox, iouThr float64) []engine.BoundingBox {
	if len(boxes) <= 1 {
		return boxes
	}
	ordered := make([]engine.BoundingBox, len(boxes))
	copy(ordered, boxes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	suppressed := make([]bool, len(ordered))
	kept := ordered[:0]
	for i, box := range ordered {
		if suppressed[i] {
			continue
		}
		kept = append(kept, box)
		for j := i + 1; j < len(ordered); j++ {
			if suppressed[j] {
				continue
			}
			if box.IoU(ordered[j]) > iouThr {
				suppressed[j] = true
			}
		}
	}
	return kept
}
