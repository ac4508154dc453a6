// Package scope decides how much of the theme graph to load for a request
// and assembles the resulting file, path and flow set.
package scope

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/HendryAvila/ctxkeeper/internal/ctxerr"
	"github.com/HendryAvila/ctxkeeper/internal/graph"
	"github.com/HendryAvila/ctxkeeper/internal/meta"
	"go.uber.org/zap"
)

// Result is one assembled scope. It is built fresh per request.
type Result struct {
	Mode          Mode `json:"mode"`
	RequestedMode Mode `json:"requested_mode"`
	AutoEscalated bool `json:"auto_escalated"`

	Primary       string `json:"primary"`
	LinkedCount   int    `json:"linked_count"`
	PrimaryShared int    `json:"primary_shared_files"`

	Themes        []string            `json:"themes"`
	MissingThemes []string            `json:"missing_themes,omitempty"`
	Files         []string            `json:"files"`
	Paths         []string            `json:"paths"`
	Descriptions  map[string]string   `json:"descriptions,omitempty"`
	SharedFiles   map[string][]string `json:"shared_files,omitempty"`
	Flows         []string            `json:"flows"`

	Recommendations []string `json:"recommendations"`
	MemoryEstimate  int      `json:"memory_estimate"`
	Coverage        float64  `json:"coverage"`
}

// Options tune the selector.
type Options struct {
	ProjectRoot string
	// GlobalFiles and GlobalPaths are appended to every scope when they
	// exist under ProjectRoot.
	GlobalFiles []string
	GlobalPaths []string
	// DescriptionBudget caps each path description, in bytes.
	DescriptionBudget int
	// MemoryCeiling is the estimate above which a recommendation fires.
	MemoryCeiling int
}

// Selector builds scopes from the theme graph.
type Selector struct {
	loader *graph.Loader
	meta   meta.Store
	opts   Options
	logger *zap.Logger
}

// NewSelector creates a Selector. A nil store means no persisted metadata.
func NewSelector(loader *graph.Loader, store meta.Store, opts Options, logger *zap.Logger) *Selector {
	if store == nil {
		store = meta.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{loader: loader, meta: store, opts: opts, logger: logger}
}

// LoadScope loads primary and the themes its final mode implies. Unless
// force is set, a theme-focused request escalates to theme-expanded when
// the primary theme has more than two linked themes or more than five
// shared files.
func (s *Selector) LoadScope(ctx context.Context, primary string, requested Mode, force bool) (*Result, error) {
	requested, err := ParseMode(string(requested))
	if err != nil {
		return nil, err
	}
	theme, err := s.loader.Theme(ctx, primary)
	if err != nil {
		return nil, err
	}

	r := &Result{
		Mode:          requested,
		RequestedMode: requested,
		Primary:       theme.Name,
		LinkedCount:   len(theme.LinkedThemes),
		PrimaryShared: len(theme.SharedFiles),
		Descriptions:  map[string]string{},
		SharedFiles:   map[string][]string{},
	}

	if !force && requested == ModeFocused &&
		(r.LinkedCount > MaxFocusedLinkedThemes || r.PrimaryShared > MaxFocusedSharedFiles) {
		r.Mode = ModeExpanded
		r.AutoEscalated = true
		s.logger.Info("scope auto-escalated",
			zap.String("theme", primary),
			zap.Int("linked", r.LinkedCount),
			zap.Int("shared", r.PrimaryShared))
	}

	themes, totalThemes, err := s.themesFor(ctx, theme, r)
	if err != nil {
		return nil, err
	}

	files := newOrderedSet()
	paths := newOrderedSet()
	for _, t := range themes {
		r.Themes = append(r.Themes, t.Name)
		for _, f := range t.Files {
			if p, ok := s.inProject(f); ok {
				files.add(p)
			}
		}
		for _, d := range t.Directories {
			if p, ok := s.inProject(d); ok {
				paths.add(p)
			}
		}
		for f, owners := range t.SharedFiles {
			p, ok := s.inProject(f)
			if !ok {
				continue
			}
			r.SharedFiles[p] = mergeSorted(r.SharedFiles[p], owners)
		}
	}
	for _, f := range s.opts.GlobalFiles {
		if p, ok := s.existing(f, false); ok {
			files.add(p)
		}
	}
	for _, d := range s.opts.GlobalPaths {
		if p, ok := s.existing(d, true); ok {
			paths.add(p)
		}
	}
	r.Files = files.items
	r.Paths = paths.items

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, p := range r.Paths {
		if d := s.describe(ctx, p); d != "" {
			r.Descriptions[p] = d
		}
	}

	r.Flows = s.flowsFor(ctx, r.Themes)
	r.MemoryEstimate = EstimateMemory(r)
	r.Coverage = Coverage(r, totalThemes)
	r.Recommendations = Recommend(r, s.opts.MemoryCeiling)
	if r.Recommendations == nil {
		r.Recommendations = []string{}
	}
	return r, nil
}

// themesFor loads the themes r.Mode implies, primary first. Linked themes
// without a definition are recorded on r instead of failing the request.
func (s *Selector) themesFor(ctx context.Context, primary *graph.Theme, r *Result) ([]*graph.Theme, int, error) {
	themes := []*graph.Theme{primary}
	seen := map[string]bool{primary.Name: true}

	add := func(name string, optional bool) error {
		if seen[name] {
			return nil
		}
		seen[name] = true
		t, err := s.loader.Theme(ctx, name)
		if err != nil {
			if optional && ctxerr.Is(err, ctxerr.KindNotFound) {
				s.logger.Warn("linked theme not found", zap.String("theme", name), zap.String("from", primary.Name))
				r.MissingThemes = append(r.MissingThemes, name)
				return nil
			}
			return err
		}
		themes = append(themes, t)
		return nil
	}

	if r.Mode.Rank() >= ModeExpanded.Rank() {
		for _, name := range primary.LinkedThemes {
			if err := add(name, true); err != nil {
				return nil, 0, err
			}
		}
	}

	names, err := s.loader.ThemeNames(ctx)
	switch {
	case err == nil:
	case ctxerr.Is(err, ctxerr.KindNotFound) && r.Mode != ModeProject:
		names = nil
	default:
		return nil, 0, err
	}
	if r.Mode == ModeProject {
		for _, name := range names {
			if err := add(name, false); err != nil {
				return nil, 0, err
			}
		}
	}

	total := len(names)
	for _, t := range themes {
		if !contains(names, t.Name) {
			total++
		}
	}
	return themes, total, nil
}

// describe prefers the persisted description and falls back to the
// directory's README.
func (s *Selector) describe(ctx context.Context, p string) string {
	desc, err := s.meta.DirectoryDescription(ctx, p)
	if err != nil {
		switch ctxerr.KindOf(err) {
		case ctxerr.KindNotFound:
		case ctxerr.KindUnavailable:
			s.logger.Debug("metadata unavailable, using README", zap.String("path", p), zap.Error(err))
		default:
			s.logger.Info("description lookup failed, using README", zap.String("path", p), zap.Error(err))
		}
		desc = readmeSummary(filepath.Join(s.opts.ProjectRoot, filepath.FromSlash(p)))
	}
	return truncateBytes(desc, s.opts.DescriptionBudget)
}

// flowsFor lists the flows attached to themes, persisted links first and
// the flow index as fallback.
func (s *Selector) flowsFor(ctx context.Context, themes []string) []string {
	var idx *graph.FlowIndex
	out := newOrderedSet()
	for _, t := range themes {
		ids, err := s.meta.ThemeFlows(ctx, t)
		if err == nil && len(ids) > 0 {
			out.add(ids...)
			continue
		}
		if err != nil && !ctxerr.Is(err, ctxerr.KindUnavailable) {
			s.logger.Info("theme flow lookup failed, using flow index", zap.String("theme", t), zap.Error(err))
		}
		if idx == nil {
			loaded, err := s.loader.FlowIndex(ctx)
			if err != nil {
				s.logger.Debug("no flow index", zap.Error(err))
				return out.items
			}
			idx = loaded
		}
		out.add(idx.FlowsForTheme(t)...)
	}
	return out.items
}

// inProject normalizes p to a slash-separated project-relative path and
// rejects anything outside the project tree.
func (s *Selector) inProject(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(s.opts.ProjectRoot, p)
		if err != nil {
			return "", false
		}
		p = rel
	}
	clean := path.Clean(filepath.ToSlash(p))
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.HasPrefix(clean, "/") {
		return "", false
	}
	return clean, true
}

// existing is inProject plus an on-disk check of the right kind.
func (s *Selector) existing(p string, dir bool) (string, bool) {
	rel, ok := s.inProject(p)
	if !ok {
		return "", false
	}
	info, err := os.Stat(filepath.Join(s.opts.ProjectRoot, filepath.FromSlash(rel)))
	if err != nil || info.IsDir() != dir {
		return "", false
	}
	return rel, true
}

type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: map[string]bool{}, items: []string{}}
}

func (o *orderedSet) add(items ...string) {
	for _, it := range items {
		if !o.seen[it] {
			o.seen[it] = true
			o.items = append(o.items, it)
		}
	}
}

func mergeSorted(a, b []string) []string {
	set := newOrderedSet()
	set.add(a...)
	set.add(b...)
	sort.Strings(set.items)
	return set.items
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
