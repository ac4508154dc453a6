// Package relevance ranks flows for a task with keyword and status
// heuristics. Scores are recomputed on every call and never stored.
package relevance

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/HendryAvila/ctxkeeper/internal/ctxerr"
	"github.com/HendryAvila/ctxkeeper/internal/graph"
	"github.com/HendryAvila/ctxkeeper/internal/heuristics"
	"github.com/HendryAvila/ctxkeeper/internal/meta"
	"go.uber.org/zap"
)

// FlowSummary is one ranked flow.
type FlowSummary struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	Domain     string   `json:"domain,omitempty"`
	Themes     []string `json:"themes"`
	Status     string   `json:"status,omitempty"`
	Completion int      `json:"completion"`
	Score      float64  `json:"score"`
	Reasons    []string `json:"reasons"`
}

// Estimator ranks flows against a task description.
type Estimator struct {
	loader *graph.Loader
	meta   meta.Store
	tables heuristics.RelevanceTables
	infer  *heuristics.Tables
	logger *zap.Logger
}

// NewEstimator creates an Estimator. A nil store means no persisted metadata.
func NewEstimator(loader *graph.Loader, store meta.Store, tables *heuristics.Tables, logger *zap.Logger) *Estimator {
	if store == nil {
		store = meta.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{loader: loader, meta: store, tables: tables.Relevance, infer: tables, logger: logger}
}

// InferThemes maps task keywords to theme tags via the inference table.
func (e *Estimator) InferThemes(task string) []string {
	return e.infer.InferThemes(task)
}

type candidate struct {
	id       string
	position int
}

// SelectFlows ranks the flows attached to themes for task and keeps the
// best maxCount. With no themes they are inferred from task; when nothing
// is inferred every indexed flow is a candidate. A non-positive maxCount
// falls back to the index's max_concurrent_flows setting, then to no limit.
func (e *Estimator) SelectFlows(ctx context.Context, themes []string, task string, maxCount int) ([]FlowSummary, error) {
	idx, err := e.loader.FlowIndex(ctx)
	if err != nil {
		return nil, err
	}
	if len(themes) == 0 {
		themes = e.InferThemes(task)
		e.logger.Debug("themes inferred from task", zap.Strings("themes", themes))
	}

	candidates := e.candidates(ctx, idx, themes)
	keywords := e.infer.Keywords(task)

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.id)
	}
	flows, failed, err := e.loader.FlowsIn(ctx, idx, ids)
	if err != nil {
		return nil, err
	}
	for id, ferr := range failed {
		e.logger.Warn("flow document unreadable", zap.String("flow", id), zap.Error(ferr))
	}

	out := make([]FlowSummary, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, e.score(ctx, idx, c, flows[c.id], keywords))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})

	if maxCount <= 0 {
		maxCount = idx.Settings.MaxConcurrentFlows
	}
	if maxCount > 0 && len(out) > maxCount {
		out = out[:maxCount]
	}
	return out, nil
}

// candidates collects each flow once with its best position across themes.
// Persisted theme links take precedence over the index.
func (e *Estimator) candidates(ctx context.Context, idx *graph.FlowIndex, themes []string) []candidate {
	best := make(map[string]int)
	var order []string
	note := func(ids []string) {
		for pos, id := range ids {
			if _, known := idx.Flows[id]; !known {
				continue
			}
			if prev, seen := best[id]; !seen {
				best[id] = pos
				order = append(order, id)
			} else if pos < prev {
				best[id] = pos
			}
		}
	}

	if len(themes) == 0 {
		ids := idx.IDs()
		sort.SliceStable(ids, func(i, j int) bool {
			return idx.Flows[ids[i]].Priority < idx.Flows[ids[j]].Priority
		})
		note(ids)
	}
	for _, t := range themes {
		ids, err := e.meta.ThemeFlows(ctx, t)
		if err != nil || len(ids) == 0 {
			if err != nil && !ctxerr.Is(err, ctxerr.KindUnavailable) {
				e.logger.Info("theme flow lookup failed, using flow index", zap.String("theme", t), zap.Error(err))
			}
			ids = idx.FlowsForTheme(t)
		}
		note(ids)
	}

	out := make([]candidate, 0, len(order))
	for _, id := range order {
		out = append(out, candidate{id: id, position: best[id]})
	}
	return out
}

// score ranks one candidate. f is nil when its document could not be read.
func (e *Estimator) score(ctx context.Context, idx *graph.FlowIndex, c candidate, f *graph.Flow, keywords []string) FlowSummary {
	entry := idx.Flows[c.id]
	s := FlowSummary{ID: c.id, Themes: entry.Themes}
	if s.Themes == nil {
		s.Themes = []string{}
	}

	s.Score = e.tables.BaseScore / float64(1+c.position)
	s.Reasons = append(s.Reasons, fmt.Sprintf("position %d in theme", c.position+1))

	tokens := nameTokens(entry.File, c.id)
	for _, kw := range keywords {
		if matchesAny(kw, tokens) {
			s.Score += e.tables.KeywordBonus
			s.Reasons = append(s.Reasons, "keyword "+kw)
		}
	}

	if f != nil {
		s.Name, s.Domain = f.Name, f.Domain
		s.Status, s.Completion = string(f.Status), f.Completion
	}
	if st, err := e.meta.FlowStatus(ctx, c.id); err == nil {
		s.Status, s.Completion = st.Status, st.Completion
	}

	if bonus := e.tables.StatusBonus[s.Status]; bonus != 0 {
		s.Score += bonus
		s.Reasons = append(s.Reasons, "status "+s.Status)
	}
	if s.Completion >= e.tables.PartialMin && s.Completion <= e.tables.PartialMax && s.Status != "" {
		s.Score += e.tables.PartialBonus
		s.Reasons = append(s.Reasons, fmt.Sprintf("partially done (%d%%)", s.Completion))
	}
	return s
}

// nameTokens splits a flow's document filename and id into lowercase words.
func nameTokens(file, id string) []string {
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	split := func(r rune) bool { return r == '-' || r == '_' || r == '.' || r == ' ' || r == '/' }
	var out []string
	for _, part := range append(strings.FieldsFunc(base, split), strings.FieldsFunc(id, split)...) {
		out = append(out, strings.ToLower(part))
	}
	return out
}

// matchesAny is true when kw equals a token or one is a prefix of the
// other (login/logins). Short tokens must match exactly.
func matchesAny(kw string, tokens []string) bool {
	for _, tok := range tokens {
		if tok == kw {
			return true
		}
		if len(tok) >= 4 && len(kw) >= 4 && (strings.HasPrefix(kw, tok) || strings.HasPrefix(tok, kw)) {
			return true
		}
	}
	return false
}
