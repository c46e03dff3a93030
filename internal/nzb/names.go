package nzb

import (
	"html"
	"regexp"
	"strings"
)

var (
	reYenc    = regexp.MustCompile(`(?i)\s+yenc.*$`)
	reLead    = regexp.MustCompile(`^\[\d+/\d+\]\s+`)
	reBad     = regexp.MustCompile(`[\\/:*?"<>|]`)
	reCounter = regexp.MustCompile(`\s*\(\d+/\d+\)\s*$`)
)

// CleanName removes Usenet metadata and OS-illegal characters from a subject.
func CleanName(subject string) string {
	res := html.UnescapeString(subject)

	// Try pattern A: Contents inside double quotes
	firstQuote := strings.Index(res, "\"")
	lastQuote := strings.LastIndex(res, "\"")
	if firstQuote != -1 && lastQuote != -1 && firstQuote < lastQuote {
		res = res[firstQuote+1 : lastQuote]
	} else {
		// Pattern B: strip (1/14), [01/14] and the "yenc" suffix
		res = reYenc.ReplaceAllString(res, "")
		res = reCounter.ReplaceAllString(res, "")
		res = reLead.ReplaceAllString(res, "")
	}

	// Windows/Linux/macOS safety
	res = reBad.ReplaceAllString(res, "_")

	return strings.TrimSpace(res)
}
