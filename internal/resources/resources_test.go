package resources

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HendryAvila/ctxkeeper/internal/directive"
	"github.com/HendryAvila/ctxkeeper/internal/graph"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newHandler(t *testing.T, root string) *Handler {
	t.Helper()
	logger := zaptest.NewLogger(t)
	loader := graph.NewLoader(filepath.Join(root, "themes"), filepath.Join(root, "flows"), logger)
	store := directive.NewFileStore(filepath.Join(root, "directives"), time.Minute, logger)
	return NewHandler(loader, store)
}

func readReq(uri string) mcp.ReadResourceRequest {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	return req
}

func text(t *testing.T, contents []mcp.ResourceContents) mcp.TextResourceContents {
	t.Helper()
	require.Len(t, contents, 1)
	tc, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	return tc
}

func TestHandler_Definitions(t *testing.T) {
	h := newHandler(t, t.TempDir())
	assert.Equal(t, ThemesURI, h.ThemesResource().URI)
	assert.Equal(t, FlowsURI, h.FlowsResource().URI)
	assert.Equal(t, DirectivesURI, h.DirectivesResource().URI)
}

func TestHandler_ServesIndexes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "themes", "index.json"),
		`{"themes":[{"name":"auth","file":"auth.json","description":"Login"}]}`)
	writeFile(t, filepath.Join(root, "flows", "index.json"),
		`{"flows":{"login":{"file":"auth.json","themes":["auth"]}},"dependencies":[]}`)
	writeFile(t, filepath.Join(root, "directives", directive.CompactFile),
		`{"zeta":{"summary":"z"},"alpha":{"summary":"a"}}`)
	h := newHandler(t, root)
	ctx := context.Background()

	contents, err := h.HandleThemes(ctx, readReq(ThemesURI))
	require.NoError(t, err)
	tc := text(t, contents)
	assert.Equal(t, "application/json", tc.MIMEType)
	assert.Contains(t, tc.Text, `"name": "auth"`)

	contents, err = h.HandleFlows(ctx, readReq(FlowsURI))
	require.NoError(t, err)
	assert.Contains(t, text(t, contents).Text, `"login"`)

	contents, err = h.HandleDirectives(ctx, readReq(DirectivesURI))
	require.NoError(t, err)
	assert.JSONEq(t, `{"keys":["alpha","zeta"]}`, text(t, contents).Text)
}

func TestHandler_MissingDefinitions(t *testing.T) {
	h := newHandler(t, t.TempDir())
	ctx := context.Background()

	for uri, handle := range map[string]func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error){
		ThemesURI:     h.HandleThemes,
		FlowsURI:      h.HandleFlows,
		DirectivesURI: h.HandleDirectives,
	} {
		contents, err := handle(ctx, readReq(uri))
		require.NoError(t, err, uri)
		tc := text(t, contents)
		assert.Equal(t, "text/plain", tc.MIMEType, uri)
		assert.Contains(t, tc.Text, "Error: not_found", uri)
	}
}
