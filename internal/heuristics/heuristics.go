// Package heuristics holds the declarative lookup tables behind directive
// escalation, theme inference, and relevance scoring.
//
// Tables are YAML. The defaults ship embedded in the binary; a project can
// override any section from a file without touching code.
package heuristics

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/HendryAvila/ctxkeeper/internal/ctxerr"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Tables is the full set of lookup tables.
type Tables struct {
	Directives DirectiveTables `yaml:"directives"`
	Themes     ThemeTables     `yaml:"themes"`
	Relevance  RelevanceTables `yaml:"relevance"`
}

// DirectiveTables drive the tiered directive resolver.
type DirectiveTables struct {
	AlwaysEscalate []string `yaml:"always_escalate"`
	MarkerKeys     []string `yaml:"marker_keys"`
	MarkerPrefixes []string `yaml:"marker_prefixes"`
	ForceStandard  []string `yaml:"force_standard"`
	ForceDetailed  []string `yaml:"force_detailed"`
}

// ThemeRule maps a task-description pattern to theme tags.
type ThemeRule struct {
	Pattern string   `yaml:"pattern"`
	Tags    []string `yaml:"tags"`

	re *regexp.Regexp
}

// ThemeTables drive theme inference.
type ThemeTables struct {
	Inference []ThemeRule `yaml:"inference"`
}

// RelevanceTables drive flow relevance scoring.
type RelevanceTables struct {
	BaseScore    float64            `yaml:"base_score"`
	KeywordBonus float64            `yaml:"keyword_bonus"`
	StatusBonus  map[string]float64 `yaml:"status_bonus"`
	PartialBonus float64            `yaml:"partial_bonus"`
	PartialMin   int                `yaml:"partial_min"`
	PartialMax   int                `yaml:"partial_max"`
	StopWords    []string           `yaml:"stop_words"`

	stop map[string]bool
}

// Default returns the embedded tables. It panics only if the embedded
// document itself is broken, which the package tests guard against.
func Default() *Tables {
	t, err := parse(defaultYAML, "embedded heuristics")
	if err != nil {
		panic(err)
	}
	return t
}

// Load reads tables from path. An empty path yields the defaults. Sections
// missing from the file keep their default values.
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ctxerr.NotFound(path, err)
		}
		return nil, fmt.Errorf("reading heuristics %s: %w", path, err)
	}
	override, err := parse(data, path)
	if err != nil {
		return nil, err
	}
	merged, err := merge(Default(), override)
	if err != nil {
		return nil, ctxerr.Malformed(path, err)
	}
	return merged, nil
}

func parse(data []byte, subject string) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, ctxerr.Malformed(subject, err)
	}
	if err := t.compile(); err != nil {
		return nil, ctxerr.Malformed(subject, err)
	}
	return &t, nil
}

func (t *Tables) compile() error {
	for i := range t.Themes.Inference {
		rule := &t.Themes.Inference[i]
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return fmt.Errorf("theme pattern %q: %w", rule.Pattern, err)
		}
		rule.re = re
	}
	t.Relevance.stop = make(map[string]bool, len(t.Relevance.StopWords))
	for _, w := range t.Relevance.StopWords {
		t.Relevance.stop[strings.ToLower(w)] = true
	}
	return nil
}

// merge overlays every non-empty field of o onto base.
func merge(base, o *Tables) (*Tables, error) {
	d := &base.Directives
	if len(o.Directives.AlwaysEscalate) > 0 {
		d.AlwaysEscalate = o.Directives.AlwaysEscalate
	}
	if len(o.Directives.MarkerKeys) > 0 {
		d.MarkerKeys = o.Directives.MarkerKeys
	}
	if len(o.Directives.MarkerPrefixes) > 0 {
		d.MarkerPrefixes = o.Directives.MarkerPrefixes
	}
	if len(o.Directives.ForceStandard) > 0 {
		d.ForceStandard = o.Directives.ForceStandard
	}
	if len(o.Directives.ForceDetailed) > 0 {
		d.ForceDetailed = o.Directives.ForceDetailed
	}
	if len(o.Themes.Inference) > 0 {
		base.Themes.Inference = o.Themes.Inference
	}

	r := &base.Relevance
	if o.Relevance.BaseScore > 0 {
		r.BaseScore = o.Relevance.BaseScore
	}
	if o.Relevance.KeywordBonus > 0 {
		r.KeywordBonus = o.Relevance.KeywordBonus
	}
	if len(o.Relevance.StatusBonus) > 0 {
		r.StatusBonus = o.Relevance.StatusBonus
	}
	if o.Relevance.PartialBonus > 0 {
		r.PartialBonus = o.Relevance.PartialBonus
	}
	if o.Relevance.PartialMax > 0 {
		r.PartialMin = o.Relevance.PartialMin
		r.PartialMax = o.Relevance.PartialMax
	}
	if len(o.Relevance.StopWords) > 0 {
		r.StopWords = o.Relevance.StopWords
	}
	// Regexes and the stop set are rebuilt from the merged values.
	if err := base.compile(); err != nil {
		return nil, err
	}
	return base, nil
}

// IsAlwaysEscalate reports whether key is on the always-escalate list.
func (d DirectiveTables) IsAlwaysEscalate(key string) bool {
	for _, k := range d.AlwaysEscalate {
		if k == key {
			return true
		}
	}
	return false
}

// IsMarkerKey reports whether name is a richer-content marker member.
func (d DirectiveTables) IsMarkerKey(name string) bool {
	for _, k := range d.MarkerKeys {
		if k == name {
			return true
		}
	}
	return false
}

// HasMarkerPrefix reports whether s starts with a marker prefix.
func (d DirectiveTables) HasMarkerPrefix(s string) bool {
	for _, p := range d.MarkerPrefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// FirstMatch returns the first phrase from phrases found in text
// (case-insensitive), or "".
func FirstMatch(text string, phrases []string) string {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return p
		}
	}
	return ""
}

// InferThemes returns the sorted, de-duplicated theme tags whose patterns
// match text.
func (t *Tables) InferThemes(text string) []string {
	seen := make(map[string]bool)
	for _, rule := range t.Themes.Inference {
		if rule.re == nil || !rule.re.MatchString(text) {
			continue
		}
		for _, tag := range rule.Tags {
			seen[tag] = true
		}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Keywords splits text into lowercase keywords, dropping punctuation,
// short words, and stop words.
func (t *Tables) Keywords(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}-")
		if len(w) < 3 || t.Relevance.stop[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
