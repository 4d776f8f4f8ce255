package ppocr

import (
	"fmt"
	"math"
	"strings"

	"github.com/pagevoice/pagevoice/internal/ocr/engine"
	"github.com/pagevoice/pagevoice/internal/ocr/tensor"
)

// ctcGreedyDecode collapses per-timestep class logits into a line of
// text. A character is emitted when the argmax changes between
// timesteps and is not the blank class (index 0). Character confidence
// is the sigmoid of the top-two logit margin at the emitting timestep;
// line confidence is the mean over emitted characters.
func ctcGreedyDecode(out tensor.Tensor, dict []string) (engine.Line, error) {
	steps, classes, err := logitDims(out.Shape)
	if err != nil {
		return engine.Line{}, err
	}
	if len(out.Data) < steps*classes {
		return engine.Line{}, fmt.Errorf("ctc decode: output has %d values, want %d", len(out.Data), steps*classes)
	}

	var sb strings.Builder
	var confSum float64
	emitted := 0
	prev := -1

	for t := 0; t < steps; t++ {
		row := out.Data[t*classes : (t+1)*classes]
		best, margin := argmaxMargin(row)

		if best != prev && best != 0 {
			idx := best - 1
			if idx < len(dict) {
				sb.WriteString(dict[idx])
				confSum += sigmoid(margin)
				emitted++
			}
		}
		prev = best
	}

	line := engine.Line{Text: sb.String()}
	if emitted > 0 {
		line.Confidence = confSum / float64(emitted)
	}
	return line, nil
}

// logitDims accepts [1,T,C] or [T,C] output shapes.
func logitDims(shape []int64) (steps, classes int, err error) {
	switch len(shape) {
	case 3:
		if shape[0] != 1 {
			return 0, 0, fmt.Errorf("ctc decode: unexpected batch size %d", shape[0])
		}
		return int(shape[1]), int(shape[2]), nil
	case 2:
		return int(shape[0]), int(shape[1]), nil
	default:
		return 0, 0, fmt.Errorf("ctc decode: unexpected output rank %d", len(shape))
	}
}

// argmaxMargin returns the index of the largest value and its margin
// over the runner-up.
func argmaxMargin(row []float32) (int, float64) {
	best := 0
	top1 := float64(math.Inf(-1))
	top2 := float64(math.Inf(-1))
	for i, v := range row {
		f := float64(v)
		if f > top1 {
			top2 = top1
			top1 = f
			best = i
		} else if f > top2 {
			top2 = f
		}
	}
	if math.IsInf(top2, -1) {
		top2 = top1
	}
	return best, top1 - top2
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
