package tools

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Detail level constants for the detail_level parameter.
//   - summary: counts and names only
//   - standard: default, the result without bulky maps
//   - full: everything
const (
	DetailSummary  = "summary"
	DetailStandard = "standard"
	DetailFull     = "full"
)

// DetailLevelValues returns the enum values for MCP tool definitions.
func DetailLevelValues() []string {
	return []string{DetailSummary, DetailStandard, DetailFull}
}

// ParseDetailLevel normalizes a detail_level string, defaulting to "standard"
// for empty or unrecognized values.
func ParseDetailLevel(s string) string {
	switch s {
	case DetailSummary, DetailFull:
		return s
	default:
		return DetailStandard
	}
}

// SummaryFooter is appended to summary responses.
const SummaryFooter = "\n---\nUse detail_level: standard or full for more detail."

// EstimateTokens approximates the token count of text with the chars/4
// heuristic. Returns 0 for empty strings, at least 1 otherwise.
func EstimateTokens(text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	if tokens := n / 4; tokens > 0 {
		return tokens
	}
	return 1
}

// TokenFooter returns a one-line footer with the estimated token count.
func TokenFooter(estimatedTokens int) string {
	return fmt.Sprintf("\n~%s tokens", humanize.Comma(int64(estimatedTokens)))
}
