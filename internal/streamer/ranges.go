package streamer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnsatisfiableRange = errors.New("range not satisfiable")

// ParseRange parses a single range spec ("a-b", "a-" or "-n", with b inclusive)
// against a file of total bytes and returns the half open interval [start, end).
// An empty spec is the whole file.
func ParseRange(spec string, total int64) (start, end int64, err error) {
	spec = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(spec), "bytes="))
	if spec == "" {
		return 0, total, nil
	}
	if strings.Contains(spec, ",") {
		return 0, 0, fmt.Errorf("%w: multiple ranges", ErrUnsatisfiableRange)
	}

	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnsatisfiableRange, spec)
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		// Suffix range: the last n bytes.
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("%w: %q", ErrUnsatisfiableRange, spec)
		}
		return max(total-n, 0), total, nil
	}

	start, err = strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 || start >= total {
		return 0, 0, fmt.Errorf("%w: %q of %d", ErrUnsatisfiableRange, spec, total)
	}

	end = total
	if last != "" {
		inclusive, err := strconv.ParseInt(last, 10, 64)
		if err != nil || inclusive < start {
			return 0, 0, fmt.Errorf("%w: %q", ErrUnsatisfiableRange, spec)
		}
		end = min(inclusive+1, total)
	}
	return start, end, nil
}
