package scope

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ReadmeFile is the conventional per-directory documentation file.
const ReadmeFile = "README.md"

// readmeSummary returns the first paragraph of dir's README, skipping
// headings and badges. Empty when there is no README.
func readmeSummary(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, ReadmeFile))
	if err != nil {
		return ""
	}

	var para []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			if len(para) > 0 {
				return strings.Join(para, " ")
			}
		case strings.HasPrefix(line, "#"), strings.HasPrefix(line, "!["), strings.HasPrefix(line, "[!["):
			if len(para) > 0 {
				return strings.Join(para, " ")
			}
		default:
			para = append(para, line)
		}
	}
	return strings.Join(para, " ")
}

// truncateBytes cuts s to at most max bytes on a rune boundary, marking
// the cut with "...".
func truncateBytes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	const ellipsis = "..."
	if max <= len(ellipsis) {
		return s[:runeBoundary(s, max)]
	}
	cut := runeBoundary(s, max-len(ellipsis))
	return strings.TrimRight(s[:cut], " ") + ellipsis
}

// runeBoundary backs n up to the start of the rune containing s[n].
func runeBoundary(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
