package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HendryAvila/ctxkeeper/internal/directive"
	"github.com/HendryAvila/ctxkeeper/internal/graph"
	"github.com/HendryAvila/ctxkeeper/internal/heuristics"
	"github.com/HendryAvila/ctxkeeper/internal/meta"
	"github.com/HendryAvila/ctxkeeper/internal/relevance"
	"github.com/HendryAvila/ctxkeeper/internal/scope"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// makeReq builds a CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// decode parses the JSON part of a result, dropping the token footer.
func decode(t *testing.T, r *mcp.CallToolResult, v any) {
	t.Helper()
	text := resultText(r)
	if i := strings.LastIndex(text, "\n~"); i >= 0 {
		text = text[:i]
	}
	require.NoError(t, json.Unmarshal([]byte(text), v), text)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

type env struct {
	root     string
	store    *meta.SQLite
	usage    *Usage
	resolver *directive.Resolver
	loader   *graph.Loader
	selector *scope.Selector
	ranker   *relevance.Estimator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	defs := filepath.Join(root, ".ctxkeeper")
	dirs := filepath.Join(defs, "directives")

	writeFile(t, filepath.Join(dirs, directive.CompactFile), `{
  "commit-style": {"summary": "Conventional commits"},
  "release-checklist": {"summary": "Tag, build, publish"}
}`)
	writeFile(t, filepath.Join(dirs, "standard", "commit-style.json"), `{"title":"Commit style"}`)
	writeFile(t, filepath.Join(dirs, "detailed", "commit-style.md"), "# Commit style\n")
	writeFile(t, filepath.Join(dirs, "standard", "release-checklist.json"), `{"title":"Release"}`)

	writeFile(t, filepath.Join(defs, "themes", "index.json"), `{"themes":[{"name":"auth","file":"auth.json"}]}`)
	writeFile(t, filepath.Join(defs, "themes", "auth.json"),
		`{"name":"auth","files":["internal/auth/login.go"],"directories":["internal/auth"]}`)
	writeFile(t, filepath.Join(defs, "flows", "index.json"), `{
  "flows":{
    "A":{"file":"core.json","themes":["auth"],"priority":1},
    "B":{"file":"core.json","themes":["auth"],"priority":2},
    "C":{"file":"core.json","themes":["auth"],"priority":3},
    "X":{"file":"loop.json","themes":[]},
    "Y":{"file":"loop.json","themes":[]}
  },
  "dependencies":[
    {"from":"A","to":"B"},{"from":"B","to":"C"},
    {"from":"X","to":"Y"},{"from":"Y","to":"X"}
  ]
}`)
	writeFile(t, filepath.Join(defs, "flows", "core.json"), `{"domain":"core","flows":[
  {"id":"A","name":"Alpha","steps":[{"id":"s1","status":"pending"},{"id":"s2","status":"pending"}]},
  {"id":"B","name":"Beta","steps":[]},
  {"id":"C","name":"Gamma","steps":[]}
]}`)

	logger := zaptest.NewLogger(t)
	store, err := meta.Open(filepath.Join(root, "data"), time.Second, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tables := heuristics.Default()
	loader := graph.NewLoader(filepath.Join(defs, "themes"), filepath.Join(defs, "flows"), logger)
	return &env{
		root:     root,
		store:    store,
		usage:    NewUsage(store, logger),
		resolver: directive.NewResolver(directive.NewFileStore(dirs, time.Minute, logger), tables.Directives, logger),
		loader:   loader,
		selector: scope.NewSelector(loader, store, scope.Options{
			ProjectRoot:       root,
			DescriptionBudget: 200,
			MemoryCeiling:     512 * 1024,
		}, logger),
		ranker: relevance.NewEstimator(loader, store, tables, logger),
	}
}

func (e *env) operations(t *testing.T) []string {
	t.Helper()
	events, err := e.store.RecentUsage(context.Background(), 50)
	require.NoError(t, err)
	var ops []string
	for _, ev := range events {
		ops = append(ops, ev.Operation)
	}
	return ops
}

// --- Helpers ---

func TestStringSliceArg(t *testing.T) {
	req := makeReq(map[string]interface{}{
		"list":  []interface{}{"a", " b ", "", 3},
		"csv":   "x, y,,z",
		"other": 12.0,
	})
	assert.Equal(t, []string{"a", "b"}, stringSliceArg(req, "list"))
	assert.Equal(t, []string{"x", "y", "z"}, stringSliceArg(req, "csv"))
	assert.Nil(t, stringSliceArg(req, "other"))
	assert.Nil(t, stringSliceArg(req, "missing"))
}

func TestDetailHelpers(t *testing.T) {
	assert.Equal(t, DetailStandard, ParseDetailLevel(""))
	assert.Equal(t, DetailFull, ParseDetailLevel("full"))
	assert.Equal(t, DetailStandard, ParseDetailLevel("verbose"))
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("ab"))
	assert.Equal(t, "\n~12,345 tokens", TokenFooter(12345))
}

func TestUsage_NilSafe(t *testing.T) {
	var u *Usage
	u.Record(context.Background(), "op", "s", "")
	NewUsage(nil, nil).Record(context.Background(), "op", "s", "")
}

// --- Directives ---

func TestResolveDirectiveTool(t *testing.T) {
	e := newEnv(t)
	tool := NewResolveDirectiveTool(e.resolver, e.usage)
	assert.Equal(t, "ctx_resolve_directive", tool.Definition().Name)
	ctx := context.Background()

	res, err := tool.Handle(ctx, makeReq(map[string]interface{}{"key": "commit-style"}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))
	var got directive.Resolution
	decode(t, res, &got)
	assert.Equal(t, directive.TierCompact, got.Tier)

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{"key": "commit-style", "context": "walkthrough please"}))
	require.NoError(t, err)
	decode(t, res, &got)
	assert.Equal(t, directive.TierDetailed, got.Tier)

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{"key": "release-checklist"}))
	require.NoError(t, err)
	decode(t, res, &got)
	assert.Equal(t, directive.TierStandard, got.Tier)

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{"key": "commit-style", "force_tier": "standard"}))
	require.NoError(t, err)
	decode(t, res, &got)
	assert.Equal(t, directive.TierStandard, got.Tier)

	assert.Equal(t, []string{"resolve_directive", "resolve_directive", "resolve_directive", "resolve_directive"}, e.operations(t))
}

func TestResolveDirectiveTool_Errors(t *testing.T) {
	e := newEnv(t)
	tool := NewResolveDirectiveTool(e.resolver, e.usage)
	ctx := context.Background()

	res, err := tool.Handle(ctx, makeReq(map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{"key": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "not_found")

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{"key": "commit-style", "force_tier": "huge"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Empty(t, e.operations(t))
}

func TestEscalateDirectiveTool(t *testing.T) {
	e := newEnv(t)
	tool := NewEscalateDirectiveTool(e.resolver, e.usage)
	ctx := context.Background()

	var got directive.Resolution
	res, err := tool.Handle(ctx, makeReq(map[string]interface{}{"key": "commit-style"}))
	require.NoError(t, err)
	decode(t, res, &got)
	assert.Equal(t, directive.TierStandard, got.Tier)

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{"key": "commit-style", "from_tier": "standard"}))
	require.NoError(t, err)
	decode(t, res, &got)
	assert.Equal(t, directive.TierDetailed, got.Tier)

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{"key": "release-checklist", "from_tier": "standard"}))
	require.NoError(t, err)
	decode(t, res, &got)
	assert.Equal(t, directive.TierStandard, got.Tier, "missing detailed falls back to standard")
}

// --- Scope ---

func TestLoadScopeTool(t *testing.T) {
	e := newEnv(t)
	writeFile(t, filepath.Join(e.root, "internal", "auth", "README.md"), "Auth package.\n")
	tool := NewLoadScopeTool(e.selector, e.usage)
	ctx := context.Background()

	res, err := tool.Handle(ctx, makeReq(map[string]interface{}{"theme": "auth", "detail_level": "full"}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))
	var got scope.Result
	decode(t, res, &got)
	assert.Equal(t, scope.ModeFocused, got.Mode)
	assert.Equal(t, []string{"internal/auth/login.go"}, got.Files)
	assert.Equal(t, "Auth package.", got.Descriptions["internal/auth"])

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{"theme": "auth"}))
	require.NoError(t, err)
	assert.NotContains(t, resultText(res), `"descriptions"`)

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{"theme": "auth", "detail_level": "summary"}))
	require.NoError(t, err)
	text := resultText(res)
	assert.Contains(t, text, "# Scope: auth")
	assert.Contains(t, text, "**Mode**: theme-focused")
	assert.Contains(t, text, SummaryFooter)
}

func TestLoadScopeTool_Errors(t *testing.T) {
	e := newEnv(t)
	tool := NewLoadScopeTool(e.selector, e.usage)
	ctx := context.Background()

	res, err := tool.Handle(ctx, makeReq(map[string]interface{}{"theme": "ghost"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "theme ghost")

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{"theme": "auth", "mode": "cosmic"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

// --- Flows ---

func TestOrderFlowsTool(t *testing.T) {
	e := newEnv(t)
	tool := NewOrderFlowsTool(e.loader, e.usage)
	ctx := context.Background()

	res, err := tool.Handle(ctx, makeReq(map[string]interface{}{"flow_ids": []interface{}{"C", "A", "B"}}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))
	var got struct{ Order []string }
	decode(t, res, &got)
	assert.Equal(t, []string{"A", "B", "C"}, got.Order)

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{"flow_ids": "X,Y"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "cyclic: X, Y")

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, []string{"order_flows"}, e.operations(t))
}

func TestOrderFlowsTool_UnknownFlow(t *testing.T) {
	e := newEnv(t)
	tool := NewOrderFlowsTool(e.loader, e.usage)

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"flow_ids": []interface{}{"A", "ghost"}}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "not_found: flow ghost")
	assert.Empty(t, e.operations(t))
}

func TestAnalyzeDependenciesTool(t *testing.T) {
	e := newEnv(t)
	tool := NewAnalyzeDependenciesTool(e.loader, e.usage)

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"flow_ids": []interface{}{"C"}}))
	require.NoError(t, err)
	var got struct {
		Flows []struct {
			Flow      string   `json:"flow"`
			DependsOn []string `json:"depends_on"`
			Indirect  []string `json:"indirect"`
			Priority  string   `json:"priority"`
		} `json:"flows"`
	}
	decode(t, res, &got)
	require.Len(t, got.Flows, 1)
	assert.Equal(t, []string{"B"}, got.Flows[0].DependsOn)
	assert.Equal(t, []string{"A"}, got.Flows[0].Indirect)
	assert.Equal(t, "low", got.Flows[0].Priority)

	res, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{"flow_ids": []interface{}{"ghost"}}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "not_found: flow ghost")
	assert.Equal(t, []string{"analyze_dependencies"}, e.operations(t))
}

func TestSelectFlowsTool(t *testing.T) {
	e := newEnv(t)
	tool := NewSelectFlowsTool(e.ranker, e.usage)
	ctx := context.Background()

	res, err := tool.Handle(ctx, makeReq(map[string]interface{}{"themes": []interface{}{"auth"}, "max_count": 2.0}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))
	var got struct{ Flows []relevance.FlowSummary }
	decode(t, res, &got)
	require.Len(t, got.Flows, 2)
	assert.Equal(t, "A", got.Flows[0].ID)
	assert.Equal(t, "Alpha", got.Flows[0].Name)

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestUpdateFlowStepTool(t *testing.T) {
	e := newEnv(t)
	tool := NewUpdateFlowStepTool(e.loader, e.store, e.usage, zaptest.NewLogger(t))
	ctx := context.Background()

	res, err := tool.Handle(ctx, makeReq(map[string]interface{}{"flow_id": "A", "step_id": "s1", "status": "completed"}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))
	var flow graph.Flow
	decode(t, res, &flow)
	assert.Equal(t, graph.StatusInProgress, flow.Status)
	assert.Equal(t, 50, flow.Completion)

	mirrored, err := e.store.FlowStatus(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", mirrored.Status)
	assert.Equal(t, 50, mirrored.Completion)

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{"flow_id": "A", "step_id": "s1", "status": "done"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{"flow_id": "A", "step_id": "zz", "status": "completed"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "step zz")
}

func TestUpdateFlowStepTool_WithoutMetadata(t *testing.T) {
	e := newEnv(t)
	tool := NewUpdateFlowStepTool(e.loader, nil, nil, nil)

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"flow_id": "A", "step_id": "s2", "status": "blocked"}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))
}

// --- Describe ---

func TestDescribePathTool(t *testing.T) {
	e := newEnv(t)
	tool := NewDescribePathTool(e.store, e.usage)
	ctx := context.Background()

	res, err := tool.Handle(ctx, makeReq(map[string]interface{}{"path": "internal/auth/", "description": "Login and tokens"}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(res))
	assert.Contains(t, resultText(res), "internal/auth")

	desc, err := e.store.DirectoryDescription(ctx, "internal/auth")
	require.NoError(t, err)
	assert.Equal(t, "Login and tokens", desc)

	// The scope picks it up.
	r, err := e.selector.LoadScope(ctx, "auth", scope.ModeFocused, false)
	require.NoError(t, err)
	assert.Equal(t, "Login and tokens", r.Descriptions["internal/auth"])

	res, err = tool.Handle(ctx, makeReq(map[string]interface{}{"path": "../etc", "description": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestDescribePathTool_NoMetadata(t *testing.T) {
	tool := NewDescribePathTool(nil, nil)

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"path": "src", "description": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "unavailable")
}
