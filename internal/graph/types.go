// Package graph loads the project's theme/flow definitions into memory.
//
// The file tree looks like:
//
//	<definitions>/themes/index.json    theme name -> document
//	<definitions>/themes/<name>.json   one Theme per file
//	<definitions>/flows/index.json     flow id -> file/themes/category, dependencies, settings
//	<definitions>/flows/<domain>.json  one domain document holding several flows
//
// Documents are read fresh on every call, so two identical requests against
// an unchanged tree see identical data.
package graph

import (
	"fmt"
	"sort"

	"github.com/HendryAvila/ctxkeeper/internal/ctxerr"
)

// --- Themes ---

// Theme is a named grouping of related project files and directories.
type Theme struct {
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	Files        []string            `json:"files"`
	Directories  []string            `json:"directories"`
	SharedFiles  map[string][]string `json:"shared_files"`
	LinkedThemes []string            `json:"linked_themes"`
}

// ThemeIndexEntry points at one theme document.
type ThemeIndexEntry struct {
	Name        string `json:"name"`
	File        string `json:"file"`
	Description string `json:"description,omitempty"`
}

// ThemeIndex lists every theme in the project.
type ThemeIndex struct {
	Themes []ThemeIndexEntry `json:"themes"`
}

// Names returns theme names in index order.
func (ti *ThemeIndex) Names() []string {
	names := make([]string, 0, len(ti.Themes))
	for _, e := range ti.Themes {
		names = append(names, e.Name)
	}
	return names
}

// Lookup finds the index entry for name.
func (ti *ThemeIndex) Lookup(name string) (ThemeIndexEntry, bool) {
	for _, e := range ti.Themes {
		if e.Name == name {
			return e, true
		}
	}
	return ThemeIndexEntry{}, false
}

// --- Flows ---

// Status is the lifecycle state of a flow or one of its steps.
type Status string

const (
	StatusPending     Status = "pending"
	StatusInProgress  Status = "in_progress"
	StatusNeedsReview Status = "needs_review"
	StatusCompleted   Status = "completed"
	StatusBlocked     Status = "blocked"
)

var validStatuses = map[Status]bool{
	StatusPending:     true,
	StatusInProgress:  true,
	StatusNeedsReview: true,
	StatusCompleted:   true,
	StatusBlocked:     true,
}

// ValidateStatus returns an error if s is not a recognized status.
func ValidateStatus(s Status) error {
	if !validStatuses[s] {
		return fmt.Errorf("invalid status %q: must be one of: pending, in_progress, needs_review, completed, blocked", s)
	}
	return nil
}

// Step is one ordered unit of work inside a flow.
type Step struct {
	ID       string   `json:"id"`
	Trigger  string   `json:"trigger,omitempty"`
	Outcomes []string `json:"outcomes,omitempty"`
	Status   Status   `json:"status"`
}

// Flow is a named, ordered workflow unit attached to one or more themes.
type Flow struct {
	ID              string   `json:"id"`
	Domain          string   `json:"domain"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	PrimaryThemes   []string `json:"primary_themes"`
	SecondaryThemes []string `json:"secondary_themes,omitempty"`
	Steps           []Step   `json:"steps"`
	Status          Status   `json:"status"`
	Completion      int      `json:"completion"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
}

// Themes returns primary then secondary themes.
func (f *Flow) Themes() []string {
	out := make([]string, 0, len(f.PrimaryThemes)+len(f.SecondaryThemes))
	out = append(out, f.PrimaryThemes...)
	return append(out, f.SecondaryThemes...)
}

// FlowDocument is one per-domain flow file.
type FlowDocument struct {
	Domain string `json:"domain"`
	Flows  []Flow `json:"flows"`
}

// FlowIndexEntry locates a flow and tags it.
type FlowIndexEntry struct {
	File     string   `json:"file"`
	Themes   []string `json:"themes"`
	Category string   `json:"category,omitempty"`
	// Priority orders flows within a theme; lower is more relevant.
	Priority int `json:"priority,omitempty"`
}

// Dependency is a cross-flow edge: From must load before To.
type Dependency struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// Settings are the index-wide flow settings.
type Settings struct {
	MaxConcurrentFlows int    `json:"max_concurrent_flows"`
	DefaultMode        string `json:"default_mode"`
}

// FlowIndex maps flow ids to their documents and records dependencies.
type FlowIndex struct {
	Flows        map[string]FlowIndexEntry `json:"flows"`
	Dependencies []Dependency              `json:"dependencies"`
	Settings     Settings                  `json:"settings"`
}

// IDs returns every flow id in sorted order.
func (fi *FlowIndex) IDs() []string {
	ids := make([]string, 0, len(fi.Flows))
	for id := range fi.Flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FlowsForTheme returns the ids attached to theme, most relevant first
// (ascending priority, then id).
func (fi *FlowIndex) FlowsForTheme(theme string) []string {
	var ids []string
	for id, e := range fi.Flows {
		for _, t := range e.Themes {
			if t == theme {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := fi.Flows[ids[i]].Priority, fi.Flows[ids[j]].Priority
		if pi != pj {
			return pi < pj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Known returns the set of indexed flow ids.
func (fi *FlowIndex) Known() map[string]bool {
	known := make(map[string]bool, len(fi.Flows))
	for id := range fi.Flows {
		known[id] = true
	}
	return known
}

// RequireFlows returns NotFound for the first id missing from the index.
func (fi *FlowIndex) RequireFlows(ids []string) error {
	for _, id := range ids {
		if _, ok := fi.Flows[id]; !ok {
			return ctxerr.NotFound("flow "+id, fmt.Errorf("not in flow index"))
		}
	}
	return nil
}

// Validate returns one message per dependency endpoint missing from the
// flow map. The index format does not enforce this, so callers decide
// whether dangling edges matter.
func (fi *FlowIndex) Validate() []string {
	var problems []string
	for _, d := range fi.Dependencies {
		if _, ok := fi.Flows[d.From]; !ok {
			problems = append(problems, fmt.Sprintf("dependency %s -> %s: unknown flow %q", d.From, d.To, d.From))
		}
		if _, ok := fi.Flows[d.To]; !ok {
			problems = append(problems, fmt.Sprintf("dependency %s -> %s: unknown flow %q", d.From, d.To, d.To))
		}
	}
	return problems
}
