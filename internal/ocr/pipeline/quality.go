package pipeline

import "unicode"

// Quality summarizes how readable a recognition result looks. The
// alpha ratio compares letters against all non-space runes; model
// garbage skews heavily toward punctuation, and digit runs carry no
// readable prose either.
type Quality struct {
	Letters    int
	AlphaRatio float64
	Low        bool
}

const (
	minAlphaRatio = 0.5
	minLetters    = 5
)

// AssessLines scores the joined text of a result.
func AssessLines(lines []string) Quality {
	letters := 0
	total := 0
	for _, line := range lines {
		for _, r := range line {
			if unicode.IsSpace(r) {
				continue
			}
			total++
			if unicode.IsLetter(r) {
				letters++
			}
		}
	}

	q := Quality{Letters: letters}
	if total > 0 {
		q.AlphaRatio = float64(letters) / float64(total)
	}
	q.Low = len(lines) == 0 || q.AlphaRatio < minAlphaRatio || letters < minLetters
	return q
}

// score ranks one reading against another when two backends disagree.
func (q Quality) score() float64 {
	return float64(q.Letters) * q.AlphaRatio
}
