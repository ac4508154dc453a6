package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/HendryAvila/ctxkeeper/internal/ctxerr"
	"go.uber.org/zap"
)

// IndexFile is the index filename in both the themes and flows directories.
const IndexFile = "index.json"

// Loader reads theme and flow definitions from disk.
type Loader struct {
	themesDir string
	flowsDir  string
	logger    *zap.Logger
}

// NewLoader creates a Loader over the given theme and flow directories.
func NewLoader(themesDir, flowsDir string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{themesDir: themesDir, flowsDir: flowsDir, logger: logger}
}

// readJSON decodes path into v, classifying failures.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ctxerr.NotFound(path, err)
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return ctxerr.Malformed(path, err)
	}
	return nil
}

// safeJoin joins a document name under dir, refusing names that escape it.
func safeJoin(dir, name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || filepath.IsAbs(name) {
		return "", ctxerr.NotFound(name, fmt.Errorf("invalid document name"))
	}
	return filepath.Join(dir, name), nil
}

// --- Themes ---

// ThemeIndex reads the theme index.
func (l *Loader) ThemeIndex(ctx context.Context) (*ThemeIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var idx ThemeIndex
	if err := readJSON(filepath.Join(l.themesDir, IndexFile), &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

// ThemeNames lists every theme in index order.
func (l *Loader) ThemeNames(ctx context.Context) ([]string, error) {
	idx, err := l.ThemeIndex(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Names(), nil
}

// Theme loads one theme by name. Themes absent from the index are looked
// up as <name>.json before reporting NotFound.
func (l *Loader) Theme(ctx context.Context, name string) (*Theme, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file := name + ".json"
	description := ""
	if idx, err := l.ThemeIndex(ctx); err == nil {
		if entry, ok := idx.Lookup(name); ok {
			if entry.File != "" {
				file = entry.File
			}
			description = entry.Description
		}
	} else if !ctxerr.Is(err, ctxerr.KindNotFound) {
		return nil, err
	}

	path, err := safeJoin(l.themesDir, file)
	if err != nil {
		return nil, ctxerr.NotFound("theme "+name, err)
	}
	var theme Theme
	if err := readJSON(path, &theme); err != nil {
		if ctxerr.Is(err, ctxerr.KindNotFound) {
			return nil, ctxerr.NotFound("theme "+name, err)
		}
		return nil, err
	}
	if theme.Name == "" {
		theme.Name = name
	}
	if theme.Description == "" {
		theme.Description = description
	}
	return &theme, nil
}

// Themes loads several themes in order, failing on the first error.
func (l *Loader) Themes(ctx context.Context, names []string) ([]*Theme, error) {
	out := make([]*Theme, 0, len(names))
	for _, name := range names {
		theme, err := l.Theme(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, theme)
	}
	return out, nil
}

// --- Flows ---

// FlowIndex reads the flow index. Dangling dependency endpoints are logged,
// not rejected.
func (l *Loader) FlowIndex(ctx context.Context) (*FlowIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var idx FlowIndex
	if err := readJSON(filepath.Join(l.flowsDir, IndexFile), &idx); err != nil {
		return nil, err
	}
	if idx.Flows == nil {
		idx.Flows = map[string]FlowIndexEntry{}
	}
	for _, problem := range idx.Validate() {
		l.logger.Warn("flow index inconsistency", zap.String("problem", problem))
	}
	return &idx, nil
}

// Flow loads one flow by id.
func (l *Loader) Flow(ctx context.Context, id string) (*Flow, error) {
	flows, err := l.Flows(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return flows[0], nil
}

// Flows loads the given flows, reading each domain document once. The
// result follows the order of ids.
func (l *Loader) Flows(ctx context.Context, ids []string) ([]*Flow, error) {
	idx, err := l.FlowIndex(ctx)
	if err != nil {
		return nil, err
	}
	found, failed, err := l.FlowsIn(ctx, idx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*Flow, 0, len(ids))
	for _, id := range ids {
		if err := failed[id]; err != nil {
			return nil, err
		}
		out = append(out, found[id])
	}
	return out, nil
}

// FlowsIn loads ids against an index the caller already holds, reading
// each domain document once. A flow that cannot be loaded is reported in
// failed instead of failing the others; only cancellation returns an error.
func (l *Loader) FlowsIn(ctx context.Context, idx *FlowIndex, ids []string) (found map[string]*Flow, failed map[string]error, err error) {
	found = make(map[string]*Flow, len(ids))
	failed = make(map[string]error)

	byFile := make(map[string][]string)
	for _, id := range ids {
		entry, ok := idx.Flows[id]
		if !ok {
			failed[id] = ctxerr.NotFound("flow "+id, nil)
			continue
		}
		byFile[entry.File] = append(byFile[entry.File], id)
	}

	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		_, doc, err := l.readDocument(file)
		if err != nil {
			for _, id := range byFile[file] {
				failed[id] = err
			}
			continue
		}
		defined := make(map[string]*Flow, len(doc.Flows))
		for i := range doc.Flows {
			f := doc.Flows[i]
			if f.Domain == "" {
				f.Domain = doc.Domain
			}
			defined[f.ID] = &f
		}
		for _, id := range byFile[file] {
			if f, ok := defined[id]; ok {
				found[id] = f
			} else {
				failed[id] = ctxerr.NotFound("flow "+id, fmt.Errorf("not defined in %s", file))
			}
		}
	}
	return found, failed, nil
}

func (l *Loader) readDocument(file string) (string, *FlowDocument, error) {
	path, err := safeJoin(l.flowsDir, file)
	if err != nil {
		return "", nil, err
	}
	var doc FlowDocument
	if err := readJSON(path, &doc); err != nil {
		return "", nil, err
	}
	return path, &doc, nil
}

// UpdateStepStatus sets one step's status, recomputes the flow's overall
// status and completion, and rewrites its domain document. Flows are
// never removed from a document.
func (l *Loader) UpdateStepStatus(ctx context.Context, flowID, stepID string, status Status) (*Flow, error) {
	if err := ValidateStatus(status); err != nil {
		return nil, err
	}
	idx, err := l.FlowIndex(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := idx.Flows[flowID]
	if !ok {
		return nil, ctxerr.NotFound("flow "+flowID, nil)
	}
	path, doc, err := l.readDocument(entry.File)
	if err != nil {
		return nil, err
	}

	pos := -1
	for i := range doc.Flows {
		if doc.Flows[i].ID == flowID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, ctxerr.NotFound("flow "+flowID, fmt.Errorf("not defined in %s", entry.File))
	}
	flow := &doc.Flows[pos]
	if StepIndex(flow, stepID) < 0 {
		return nil, ctxerr.NotFound(fmt.Sprintf("step %s in flow %s", stepID, flowID), nil)
	}
	if err := SetStepStatus(flow, stepID, status); err != nil {
		return nil, err
	}
	if err := writeDocument(path, doc); err != nil {
		return nil, err
	}
	l.logger.Info("flow step updated",
		zap.String("flow", flowID), zap.String("step", stepID), zap.String("status", string(status)),
		zap.Int("completion", flow.Completion))

	updated := *flow
	if updated.Domain == "" {
		updated.Domain = doc.Domain
	}
	return &updated, nil
}

// writeDocument replaces path atomically via a temp file in the same dir.
func writeDocument(path string, doc *FlowDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling flow document: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".flow-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing flow document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing flow document: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
