package graph

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HendryAvila/ctxkeeper/internal/ctxerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testThemeIndex = `{"themes":[
  {"name":"auth","file":"auth.json","description":"Authentication"},
  {"name":"api","file":"api.json"}
]}`
	testAuthTheme = `{
  "name":"auth",
  "files":["internal/auth/login.go","internal/auth/token.go"],
  "directories":["internal/auth"],
  "shared_files":{"internal/api/middleware.go":["auth","api"]},
  "linked_themes":["api"]
}`
	testAPITheme = `{"files":["internal/api/router.go"],"directories":["internal/api"]}`

	testFlowIndex = `{
  "flows":{
    "login":{"file":"auth.json","themes":["auth"],"category":"feature","priority":2},
    "refresh":{"file":"auth.json","themes":["auth"],"priority":1},
    "routes":{"file":"api.json","themes":["api","auth"],"priority":1}
  },
  "dependencies":[
    {"from":"login","to":"refresh","type":"requires"},
    {"from":"routes","to":"ghost"}
  ],
  "settings":{"max_concurrent_flows":3,"default_mode":"theme-focused"}
}`
	testAuthFlows = `{"domain":"auth","flows":[
  {"id":"login","name":"Login","primary_themes":["auth"],"steps":[
    {"id":"form","status":"completed"},{"id":"submit","status":"pending"}],"status":"in_progress","completion":50},
  {"id":"refresh","name":"Refresh","primary_themes":["auth"],"steps":[]}
]}`
	testAPIFlows = `{"domain":"api","flows":[
  {"id":"routes","domain":"http","name":"Routes","primary_themes":["api"],"secondary_themes":["auth"],"steps":[{"id":"wire","status":"pending"}]}
]}`
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newTestLoader lays out a themes/ and flows/ tree in a temp dir.
func newTestLoader(t *testing.T) (*Loader, string) {
	t.Helper()
	root := t.TempDir()
	themes := filepath.Join(root, "themes")
	flows := filepath.Join(root, "flows")
	writeFile(t, filepath.Join(themes, IndexFile), testThemeIndex)
	writeFile(t, filepath.Join(themes, "auth.json"), testAuthTheme)
	writeFile(t, filepath.Join(themes, "api.json"), testAPITheme)
	writeFile(t, filepath.Join(themes, "orphan.json"), `{"files":["x.go"]}`)
	writeFile(t, filepath.Join(flows, IndexFile), testFlowIndex)
	writeFile(t, filepath.Join(flows, "auth.json"), testAuthFlows)
	writeFile(t, filepath.Join(flows, "api.json"), testAPIFlows)
	return NewLoader(themes, flows, zaptest.NewLogger(t)), root
}

func freezeTime(t *testing.T) {
	t.Helper()
	orig := timeNow
	timeNow = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { timeNow = orig })
}

// --- Themes ---

func TestLoader_Theme(t *testing.T) {
	l, _ := newTestLoader(t)
	ctx := context.Background()

	auth, err := l.Theme(ctx, "auth")
	require.NoError(t, err)
	assert.Equal(t, "Authentication", auth.Description)
	assert.Len(t, auth.Files, 2)
	assert.Equal(t, []string{"api"}, auth.LinkedThemes)
	assert.Equal(t, []string{"auth", "api"}, auth.SharedFiles["internal/api/middleware.go"])

	api, err := l.Theme(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, "api", api.Name, "name defaults to the requested theme")

	orphan, err := l.Theme(ctx, "orphan")
	require.NoError(t, err, "themes missing from the index fall back to <name>.json")
	assert.Equal(t, []string{"x.go"}, orphan.Files)
}

func TestLoader_Theme_Errors(t *testing.T) {
	l, root := newTestLoader(t)
	ctx := context.Background()

	_, err := l.Theme(ctx, "nope")
	assert.True(t, ctxerr.Is(err, ctxerr.KindNotFound))
	assert.Contains(t, err.Error(), "theme nope")

	_, err = l.Theme(ctx, "../secrets")
	assert.True(t, ctxerr.Is(err, ctxerr.KindNotFound))

	writeFile(t, filepath.Join(root, "themes", "auth.json"), `{"name":`)
	_, err = l.Theme(ctx, "auth")
	assert.True(t, ctxerr.Is(err, ctxerr.KindMalformed))
	assert.Contains(t, err.Error(), "auth.json")

	writeFile(t, filepath.Join(root, "themes", IndexFile), `[`)
	_, err = l.ThemeNames(ctx)
	assert.True(t, ctxerr.Is(err, ctxerr.KindMalformed))
}

func TestLoader_ThemeNamesAndThemes(t *testing.T) {
	l, _ := newTestLoader(t)
	ctx := context.Background()

	names, err := l.ThemeNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"auth", "api"}, names)

	themes, err := l.Themes(ctx, names)
	require.NoError(t, err)
	require.Len(t, themes, 2)
	assert.Equal(t, "api", themes[1].Name)

	_, err = l.Themes(ctx, []string{"auth", "missing"})
	assert.True(t, ctxerr.Is(err, ctxerr.KindNotFound))
}

func TestLoader_CancelledContext(t *testing.T) {
	l, _ := newTestLoader(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Theme(ctx, "auth")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = l.Flows(ctx, []string{"login"})
	assert.ErrorIs(t, err, context.Canceled)
}

// --- Flows ---

func TestLoader_FlowIndex(t *testing.T) {
	l, _ := newTestLoader(t)

	idx, err := l.FlowIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"login", "refresh", "routes"}, idx.IDs())
	assert.Equal(t, 3, idx.Settings.MaxConcurrentFlows)
	assert.Equal(t, []string{"refresh", "routes", "login"}, idx.FlowsForTheme("auth"))
	assert.Equal(t, []string{"routes"}, idx.FlowsForTheme("api"))
	assert.Empty(t, idx.FlowsForTheme("ui"))

	problems := idx.Validate()
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], `"ghost"`)
}

func TestFlowIndex_RequireFlows(t *testing.T) {
	l, _ := newTestLoader(t)
	idx, err := l.FlowIndex(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{"login": true, "refresh": true, "routes": true}, idx.Known())
	require.NoError(t, idx.RequireFlows([]string{"routes", "login"}))

	err = idx.RequireFlows([]string{"login", "ghost"})
	require.Error(t, err)
	assert.True(t, ctxerr.Is(err, ctxerr.KindNotFound))
	assert.Contains(t, err.Error(), "flow ghost")
}

func TestLoader_FlowsInReportsFailuresPerFlow(t *testing.T) {
	l, dir := newTestLoader(t)
	ctx := context.Background()
	idx, err := l.FlowIndex(ctx)
	require.NoError(t, err)

	idx.Flows["broken"] = FlowIndexEntry{File: "broken.json"}
	writeFile(t, filepath.Join(dir, "flows", "broken.json"), `{"flows":[`)

	found, failed, err := l.FlowsIn(ctx, idx, []string{"login", "broken", "nowhere"})
	require.NoError(t, err)
	require.Contains(t, found, "login")
	assert.Equal(t, "login", found["login"].ID)
	assert.True(t, ctxerr.Is(failed["broken"], ctxerr.KindMalformed))
	assert.True(t, ctxerr.Is(failed["nowhere"], ctxerr.KindNotFound))
	assert.Len(t, failed, 2)
}

func TestLoader_MissingFlowIndex(t *testing.T) {
	l := NewLoader(t.TempDir(), t.TempDir(), nil)
	_, err := l.FlowIndex(context.Background())
	assert.True(t, ctxerr.Is(err, ctxerr.KindNotFound))
}

func TestLoader_Flows(t *testing.T) {
	l, _ := newTestLoader(t)
	ctx := context.Background()

	flows, err := l.Flows(ctx, []string{"routes", "login"})
	require.NoError(t, err)
	require.Len(t, flows, 2)
	assert.Equal(t, "routes", flows[0].ID)
	assert.Equal(t, "http", flows[0].Domain, "explicit domain wins")
	assert.Equal(t, []string{"api", "auth"}, flows[0].Themes())
	assert.Equal(t, "auth", flows[1].Domain, "domain inherited from the document")
	assert.Equal(t, 50, flows[1].Completion)

	_, err = l.Flow(ctx, "ghost")
	assert.True(t, ctxerr.Is(err, ctxerr.KindNotFound))
}

func TestLoader_Flows_IndexedButUndefined(t *testing.T) {
	l, root := newTestLoader(t)
	writeFile(t, filepath.Join(root, "flows", "api.json"), `{"domain":"api","flows":[]}`)

	_, err := l.Flow(context.Background(), "routes")
	require.Error(t, err)
	assert.True(t, ctxerr.Is(err, ctxerr.KindNotFound))
	assert.Contains(t, err.Error(), "api.json")
}

func TestLoader_ReadsFresh(t *testing.T) {
	l, _ := newTestLoader(t)
	ctx := context.Background()

	a, err := l.Flow(ctx, "login")
	require.NoError(t, err)
	b, err := l.Flow(ctx, "login")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotSame(t, a, b)
}

// --- Status ---

func TestRecompute(t *testing.T) {
	tests := []struct {
		name       string
		steps      []Status
		wantStatus Status
		wantPct    int
	}{
		{"all pending", []Status{StatusPending, ""}, StatusPending, 0},
		{"one started", []Status{StatusInProgress, StatusPending}, StatusInProgress, 0},
		{"partly done", []Status{StatusCompleted, StatusPending, StatusPending}, StatusInProgress, 33},
		{"review wins over progress", []Status{StatusCompleted, StatusNeedsReview}, StatusNeedsReview, 50},
		{"blocked wins over review", []Status{StatusBlocked, StatusNeedsReview}, StatusBlocked, 0},
		{"all done", []Status{StatusCompleted, StatusCompleted}, StatusCompleted, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &Flow{ID: "f"}
			for i, s := range tt.steps {
				f.Steps = append(f.Steps, Step{ID: string(rune('a' + i)), Status: s})
			}
			Recompute(f)
			assert.Equal(t, tt.wantStatus, f.Status)
			assert.Equal(t, tt.wantPct, f.Completion)
		})
	}
}

func TestRecompute_NoSteps(t *testing.T) {
	f := &Flow{ID: "f"}
	Recompute(f)
	assert.Equal(t, StatusPending, f.Status)

	f = &Flow{ID: "f", Status: StatusNeedsReview, Completion: 40}
	Recompute(f)
	assert.Equal(t, StatusNeedsReview, f.Status)
	assert.Equal(t, 40, f.Completion)
}

func TestSetStepStatus(t *testing.T) {
	freezeTime(t)
	f := &Flow{ID: "f", Steps: []Step{{ID: "a"}, {ID: "b"}}}

	require.NoError(t, SetStepStatus(f, "a", StatusCompleted))
	assert.Equal(t, StatusInProgress, f.Status)
	assert.Equal(t, 50, f.Completion)
	assert.Equal(t, "2026-03-01T12:00:00Z", f.UpdatedAt)

	assert.Error(t, SetStepStatus(f, "zzz", StatusCompleted))
	assert.Error(t, SetStepStatus(f, "a", Status("done")))
}

func TestLoader_UpdateStepStatus(t *testing.T) {
	freezeTime(t)
	l, root := newTestLoader(t)
	ctx := context.Background()

	updated, err := l.UpdateStepStatus(ctx, "login", "submit", StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)
	assert.Equal(t, 100, updated.Completion)
	assert.Equal(t, "auth", updated.Domain)

	// Persisted, and the sibling flow survives the rewrite.
	data, err := os.ReadFile(filepath.Join(root, "flows", "auth.json"))
	require.NoError(t, err)
	var doc FlowDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Flows, 2)
	assert.Equal(t, StatusCompleted, doc.Flows[0].Steps[1].Status)
	assert.Equal(t, "2026-03-01T12:00:00Z", doc.Flows[0].UpdatedAt)
	assert.Equal(t, "refresh", doc.Flows[1].ID)

	reloaded, err := l.Flow(ctx, "login")
	require.NoError(t, err)
	assert.Equal(t, 100, reloaded.Completion)

	entries, err := os.ReadDir(filepath.Join(root, "flows"))
	require.NoError(t, err)
	assert.Len(t, entries, 3, "no temp files left behind")
}

func TestLoader_UpdateStepStatus_Errors(t *testing.T) {
	l, _ := newTestLoader(t)
	ctx := context.Background()

	_, err := l.UpdateStepStatus(ctx, "login", "submit", Status("finished"))
	assert.Error(t, err)

	_, err = l.UpdateStepStatus(ctx, "ghost", "submit", StatusCompleted)
	assert.True(t, ctxerr.Is(err, ctxerr.KindNotFound))

	_, err = l.UpdateStepStatus(ctx, "login", "nope", StatusCompleted)
	assert.True(t, ctxerr.Is(err, ctxerr.KindNotFound))
	assert.Contains(t, err.Error(), "step nope")
}
