package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/ctxkeeper/internal/scope"
	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"
)

// LoadScopeTool handles the ctx_load_scope MCP tool.
type LoadScopeTool struct {
	selector *scope.Selector
	usage    *Usage
}

// NewLoadScopeTool creates a LoadScopeTool with its dependencies.
func NewLoadScopeTool(s *scope.Selector, u *Usage) *LoadScopeTool {
	return &LoadScopeTool{selector: s, usage: u}
}

// Definition returns the MCP tool definition for registration.
func (t *LoadScopeTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_load_scope",
		mcp.WithDescription(
			"Load the working scope for a theme: its files, directories with short "+
				"descriptions, related flows, a memory estimate and recommendations. "+
				"A theme-focused request widens to theme-expanded automatically when the "+
				"theme has more than 2 linked themes or more than 5 shared files, unless force is set.",
		),
		mcp.WithString("theme",
			mcp.Required(),
			mcp.Description("Primary theme name."),
		),
		mcp.WithString("mode",
			mcp.Description("Scope breadth. Default: theme-focused."),
			mcp.Enum(scope.ModeValues()...),
		),
		mcp.WithBoolean("force",
			mcp.Description("Keep the requested mode even when the theme is heavily linked."),
		),
		mcp.WithString("detail_level",
			mcp.Description(
				"'summary' (mode, themes and counts), 'standard' (default, files and paths "+
					"without descriptions or shared-file owners), 'full' (everything).",
			),
			mcp.Enum(DetailLevelValues()...),
		),
	)
}

// Handle processes the ctx_load_scope tool call.
func (t *LoadScopeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	theme := strings.TrimSpace(req.GetString("theme", ""))
	if theme == "" {
		return mcp.NewToolResultError("'theme' is required"), nil
	}
	mode, err := scope.ParseMode(req.GetString("mode", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail := ParseDetailLevel(req.GetString("detail_level", ""))

	r, err := t.selector.LoadScope(ctx, theme, mode, boolArg(req, "force", false))
	if err != nil {
		return errorResult("loading scope", err), nil
	}
	t.usage.Record(ctx, "load_scope", theme, string(r.Mode))

	switch detail {
	case DetailSummary:
		return mcp.NewToolResultText(formatScopeSummary(r) + SummaryFooter), nil
	case DetailStandard:
		trimmed := *r
		trimmed.Descriptions = nil
		trimmed.SharedFiles = nil
		return jsonResult(&trimmed)
	default:
		return jsonResult(r)
	}
}

func formatScopeSummary(r *scope.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Scope: %s\n\n", r.Primary)
	fmt.Fprintf(&sb, "- **Mode**: %s", r.Mode)
	if r.AutoEscalated {
		fmt.Fprintf(&sb, " (escalated from %s)", r.RequestedMode)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "- **Themes**: %s\n", strings.Join(r.Themes, ", "))
	fmt.Fprintf(&sb, "- **Files**: %d, **Paths**: %d, **Flows**: %d\n", len(r.Files), len(r.Paths), len(r.Flows))
	fmt.Fprintf(&sb, "- **Estimated size**: %s\n", humanize.IBytes(uint64(r.MemoryEstimate)))
	fmt.Fprintf(&sb, "- **Coverage**: %.2f\n", r.Coverage)
	if len(r.Recommendations) > 0 {
		sb.WriteString("\n## Recommendations\n\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&sb, "- %s\n", rec)
		}
	}
	return sb.String()
}
