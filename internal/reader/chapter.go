package reader

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// InferNextChapterURL guesses the next chapter from the current URL by
// incrementing the last run of digits in the path. Returns empty when
// the path carries no number to advance.
func InferNextChapterURL(current string) string {
	u, err := url.Parse(current)
	if err != nil || u.Path == "" {
		return ""
	}

	path := u.Path
	end := -1
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] >= '0' && path[i] <= '9' {
			end = i + 1
			break
		}
	}
	if end < 0 {
		return ""
	}
	start := end - 1
	for start > 0 && path[start-1] >= '0' && path[start-1] <= '9' {
		start--
	}

	n, err := strconv.Atoi(path[start:end])
	if err != nil {
		return ""
	}

	digits := strconv.Itoa(n + 1)
	// Preserve zero padding like /ch/007/.
	if pad := end - start; len(digits) < pad {
		digits = strings.Repeat("0", pad-len(digits)) + digits
	}

	u.Path = fmt.Sprintf("%s%s%s", path[:start], digits, path[end:])
	return u.String()
}
