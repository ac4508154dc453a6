package scope

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// Memory estimate weights, in bytes.
const (
	BytesPerFile            = 4096
	BytesPerDescriptionByte = 2
	BytesPerTheme           = 2048
	BytesPerFlow            = 3072
)

// Auto-escalation thresholds for theme-focused requests.
const (
	MaxFocusedLinkedThemes = 2
	MaxFocusedSharedFiles  = 5
)

// IdealFileCount is the file count that scores full marks on coverage.
const IdealFileCount = 30

// EstimateMemory is a linear footprint estimate for r. It never decreases
// when files, themes, flows or description bytes are added.
func EstimateMemory(r *Result) int {
	descBytes := 0
	for _, d := range r.Descriptions {
		descBytes += len(d)
	}
	return len(r.Files)*BytesPerFile +
		descBytes*BytesPerDescriptionByte +
		len(r.Themes)*BytesPerTheme +
		len(r.Flows)*BytesPerFlow
}

// Recommend inspects a finished scope and returns actionable suggestions.
// ceiling is the memory budget in bytes.
func Recommend(r *Result, ceiling int) []string {
	var recs []string

	if ceiling > 0 && r.MemoryEstimate > ceiling {
		recs = append(recs, fmt.Sprintf(
			"Estimated scope size %s exceeds the %s budget: narrow the mode or split the task.",
			humanize.IBytes(uint64(r.MemoryEstimate)), humanize.IBytes(uint64(ceiling))))
	}

	if r.AutoEscalated {
		recs = append(recs, fmt.Sprintf(
			"Mode escalated from %s to %s: %s has %d linked themes and %d shared files. Pass force to keep the narrow mode.",
			r.RequestedMode, r.Mode, r.Primary, r.LinkedCount, r.PrimaryShared))
	}

	if r.Mode == ModeFocused && r.PrimaryShared > MaxFocusedSharedFiles {
		recs = append(recs, fmt.Sprintf(
			"%s shares %d files with other themes but the mode stayed %s: consider %s.",
			r.Primary, r.PrimaryShared, ModeFocused, ModeExpanded))
	}

	if n := len(r.Paths); n >= 3 {
		missing := 0
		for _, p := range r.Paths {
			if r.Descriptions[p] == "" {
				missing++
			}
		}
		if missing*2 > n {
			recs = append(recs, fmt.Sprintf(
				"%d of %d paths have no description: add them with ctx_describe_path or a README.md.",
				missing, n))
		}
	}

	for _, name := range r.MissingThemes {
		recs = append(recs, fmt.Sprintf("Linked theme %s has no definition: fix linked_themes in %s.", name, r.Primary))
	}
	return recs
}

// Coverage is a diagnostic score in [0, 1] blending the share of project
// themes loaded, the share of paths with a description, and how close the
// file count is to IdealFileCount. It never gates anything.
func Coverage(r *Result, totalThemes int) float64 {
	themeRatio := 1.0
	if totalThemes > 0 {
		themeRatio = math.Min(1, float64(len(r.Themes))/float64(totalThemes))
	}

	descRatio := 1.0
	if len(r.Paths) > 0 {
		described := 0
		for _, p := range r.Paths {
			if r.Descriptions[p] != "" {
				described++
			}
		}
		descRatio = float64(described) / float64(len(r.Paths))
	}

	dist := math.Abs(float64(len(r.Files)-IdealFileCount)) / IdealFileCount
	proximity := math.Max(0, 1-dist)

	score := 0.4*themeRatio + 0.3*descRatio + 0.3*proximity
	return math.Round(score*1000) / 1000
}
