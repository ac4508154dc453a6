package tools

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/HendryAvila/ctxkeeper/internal/meta"
	"github.com/mark3labs/mcp-go/mcp"
)

// DescribePathTool handles the ctx_describe_path MCP tool. Stored
// descriptions take precedence over README.md when scopes are built.
type DescribePathTool struct {
	meta  meta.Store
	usage *Usage
}

// NewDescribePathTool creates a DescribePathTool with its dependencies.
func NewDescribePathTool(m meta.Store, u *Usage) *DescribePathTool {
	if m == nil {
		m = meta.Noop{}
	}
	return &DescribePathTool{meta: m, usage: u}
}

// Definition returns the MCP tool definition for registration.
func (t *DescribePathTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_describe_path",
		mcp.WithDescription(
			"Store a one-line description of a project directory. ctx_load_scope shows it "+
				"next to the path instead of the directory's README. Requires the metadata store.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Directory path relative to the project root, e.g. 'internal/auth'."),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("What lives in the directory."),
		),
	)
}

// Handle processes the ctx_describe_path tool call.
func (t *DescribePathTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := strings.TrimSpace(req.GetString("path", ""))
	desc := strings.TrimSpace(req.GetString("description", ""))
	if p == "" || desc == "" {
		return mcp.NewToolResultError("'path' and 'description' are required"), nil
	}
	clean := path.Clean(filepath.ToSlash(p))
	if filepath.IsAbs(p) || clean == ".." || strings.HasPrefix(clean, "../") {
		return mcp.NewToolResultError(fmt.Sprintf("path %q must be relative to the project root", p)), nil
	}

	if err := t.meta.SetDirectoryDescription(ctx, clean, desc); err != nil {
		return errorResult("storing description", err), nil
	}
	t.usage.Record(ctx, "describe_path", clean, "")
	return mcp.NewToolResultText(fmt.Sprintf("Stored description for %s.", clean)), nil
}
