package tools

import (
	"context"
	"strings"

	"github.com/HendryAvila/ctxkeeper/internal/directive"
	"github.com/mark3labs/mcp-go/mcp"
)

// ResolveDirectiveTool handles the ctx_resolve_directive MCP tool.
// It returns the cheapest tier of a directive that fits the situation.
type ResolveDirectiveTool struct {
	resolver *directive.Resolver
	usage    *Usage
}

// NewResolveDirectiveTool creates a ResolveDirectiveTool with its dependencies.
func NewResolveDirectiveTool(r *directive.Resolver, u *Usage) *ResolveDirectiveTool {
	return &ResolveDirectiveTool{resolver: r, usage: u}
}

// Definition returns the MCP tool definition for registration.
func (t *ResolveDirectiveTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_resolve_directive",
		mcp.WithDescription(
			"Resolve a project directive (coding guideline, checklist, protocol) at the "+
				"smallest tier that fits the current situation. Compact is returned unless the "+
				"directive is always escalated, its compact entry points at richer content, or "+
				"the context mentions work that needs more detail. Call ctx_escalate_directive "+
				"if the returned tier is not enough.",
		),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Directive identifier, e.g. 'commit-style'."),
		),
		mcp.WithString("context",
			mcp.Description("What you are about to do. Used for keyword escalation."),
		),
		mcp.WithString("force_tier",
			mcp.Description("Skip the decision and serve this tier."),
			mcp.Enum(directive.TierValues()...),
		),
	)
}

// Handle processes the ctx_resolve_directive tool call.
func (t *ResolveDirectiveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := strings.TrimSpace(req.GetString("key", ""))
	if key == "" {
		return mcp.NewToolResultError("'key' is required"), nil
	}
	force, err := directive.ParseTier(req.GetString("force_tier", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := t.resolver.Resolve(ctx, key, req.GetString("context", ""), force)
	if err != nil {
		return errorResult("resolving directive", err), nil
	}
	t.usage.Record(ctx, "resolve_directive", key, string(res.Tier))
	return jsonResult(res)
}

// EscalateDirectiveTool handles the ctx_escalate_directive MCP tool.
type EscalateDirectiveTool struct {
	resolver *directive.Resolver
	usage    *Usage
}

// NewEscalateDirectiveTool creates an EscalateDirectiveTool with its dependencies.
func NewEscalateDirectiveTool(r *directive.Resolver, u *Usage) *EscalateDirectiveTool {
	return &EscalateDirectiveTool{resolver: r, usage: u}
}

// Definition returns the MCP tool definition for registration.
func (t *EscalateDirectiveTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_escalate_directive",
		mcp.WithDescription(
			"Request the next richer tier of a directive after the one you already have "+
				"turned out to be insufficient. compact -> standard -> detailed; detailed is "+
				"the last tier. A missing richer document falls back one tier.",
		),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Directive identifier."),
		),
		mcp.WithString("from_tier",
			mcp.Description("The tier you already tried. Default: compact."),
			mcp.Enum(directive.TierValues()...),
		),
	)
}

// Handle processes the ctx_escalate_directive tool call.
func (t *EscalateDirectiveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := strings.TrimSpace(req.GetString("key", ""))
	if key == "" {
		return mcp.NewToolResultError("'key' is required"), nil
	}
	from, err := directive.ParseTier(req.GetString("from_tier", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := t.resolver.EscalateFrom(ctx, key, from)
	if err != nil {
		return errorResult("escalating directive", err), nil
	}
	t.usage.Record(ctx, "escalate_directive", key, string(res.Tier))
	return jsonResult(res)
}
