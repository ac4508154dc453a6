package tools

import (
	"context"
	"strings"

	"github.com/HendryAvila/ctxkeeper/internal/deps"
	"github.com/HendryAvila/ctxkeeper/internal/graph"
	"github.com/HendryAvila/ctxkeeper/internal/meta"
	"github.com/HendryAvila/ctxkeeper/internal/relevance"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// flowIDsParam is shared by every tool that takes a list of flows.
func flowIDsParam(description string) mcp.ToolOption {
	return mcp.WithArray("flow_ids",
		mcp.Required(),
		mcp.Description(description),
		mcp.WithStringItems(),
	)
}

// --- ctx_order_flows ---

// OrderFlowsTool handles the ctx_order_flows MCP tool.
type OrderFlowsTool struct {
	loader *graph.Loader
	usage  *Usage
}

// NewOrderFlowsTool creates an OrderFlowsTool with its dependencies.
func NewOrderFlowsTool(l *graph.Loader, u *Usage) *OrderFlowsTool {
	return &OrderFlowsTool{loader: l, usage: u}
}

// Definition returns the MCP tool definition for registration.
func (t *OrderFlowsTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_order_flows",
		mcp.WithDescription(
			"Order flows so every prerequisite loads before the flows that depend on it, "+
				"using the dependencies in the flow index. Fails with a cyclic error naming "+
				"the flows involved when the requested flows depend on each other in a loop.",
		),
		flowIDsParam("Flow ids to order."),
	)
}

// Handle processes the ctx_order_flows tool call.
func (t *OrderFlowsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := stringSliceArg(req, "flow_ids")
	if len(ids) == 0 {
		return mcp.NewToolResultError("'flow_ids' must list at least one flow"), nil
	}
	idx, err := t.loader.FlowIndex(ctx)
	if err != nil {
		return errorResult("reading flow index", err), nil
	}

	if err := idx.RequireFlows(ids); err != nil {
		return errorResult("ordering flows", err), nil
	}

	order, err := deps.OrderForLoading(ids, idx.Dependencies)
	if err != nil {
		return errorResult("ordering flows", err), nil
	}
	t.usage.Record(ctx, "order_flows", strings.Join(ids, ","), "")
	return jsonResult(map[string]any{"order": order})
}

// --- ctx_analyze_dependencies ---

// AnalyzeDependenciesTool handles the ctx_analyze_dependencies MCP tool.
type AnalyzeDependenciesTool struct {
	loader *graph.Loader
	usage  *Usage
}

// NewAnalyzeDependenciesTool creates an AnalyzeDependenciesTool with its dependencies.
func NewAnalyzeDependenciesTool(l *graph.Loader, u *Usage) *AnalyzeDependenciesTool {
	return &AnalyzeDependenciesTool{loader: l, usage: u}
}

// Definition returns the MCP tool definition for registration.
func (t *AnalyzeDependenciesTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_analyze_dependencies",
		mcp.WithDescription(
			"Report, for each flow, the flows it depends on, the flows depending on it, "+
				"its indirect prerequisites and a priority label (independent, low, moderate, high). "+
				"Dependency edges pointing at undefined flows are listed as dangling.",
		),
		flowIDsParam("Flow ids to analyze."),
	)
}

// Handle processes the ctx_analyze_dependencies tool call.
func (t *AnalyzeDependenciesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := stringSliceArg(req, "flow_ids")
	if len(ids) == 0 {
		return mcp.NewToolResultError("'flow_ids' must list at least one flow"), nil
	}
	idx, err := t.loader.FlowIndex(ctx)
	if err != nil {
		return errorResult("reading flow index", err), nil
	}

	if err := idx.RequireFlows(ids); err != nil {
		return errorResult("analyzing dependencies", err), nil
	}

	t.usage.Record(ctx, "analyze_dependencies", strings.Join(ids, ","), "")
	return jsonResult(deps.AnalyzeDependencies(ids, idx.Dependencies, idx.Known()))
}

// --- ctx_select_flows ---

// SelectFlowsTool handles the ctx_select_flows MCP tool.
type SelectFlowsTool struct {
	estimator *relevance.Estimator
	usage     *Usage
}

// NewSelectFlowsTool creates a SelectFlowsTool with its dependencies.
func NewSelectFlowsTool(e *relevance.Estimator, u *Usage) *SelectFlowsTool {
	return &SelectFlowsTool{estimator: e, usage: u}
}

// Definition returns the MCP tool definition for registration.
func (t *SelectFlowsTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_select_flows",
		mcp.WithDescription(
			"Rank the flows attached to some themes by relevance to a task and return the best few. "+
				"Scoring uses each flow's position in its theme, task keywords found in the flow's "+
				"file name or id, and progress (in progress, needs review, partially done). "+
				"Omit themes to infer them from the task.",
		),
		mcp.WithArray("themes",
			mcp.Description("Theme names. Optional."),
			mcp.WithStringItems(),
		),
		mcp.WithString("task",
			mcp.Description("What you are about to work on."),
		),
		mcp.WithNumber("max_count",
			mcp.Description("How many flows to return. Default: the index's max_concurrent_flows."),
		),
	)
}

// Handle processes the ctx_select_flows tool call.
func (t *SelectFlowsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	themes := stringSliceArg(req, "themes")
	task := req.GetString("task", "")
	if len(themes) == 0 && strings.TrimSpace(task) == "" {
		return mcp.NewToolResultError("provide 'themes', a 'task', or both"), nil
	}

	flows, err := t.estimator.SelectFlows(ctx, themes, task, intArg(req, "max_count", 0))
	if err != nil {
		return errorResult("selecting flows", err), nil
	}
	t.usage.Record(ctx, "select_flows", strings.Join(themes, ","), task)
	return jsonResult(map[string]any{"flows": flows})
}

// --- ctx_update_flow_step ---

// UpdateFlowStepTool handles the ctx_update_flow_step MCP tool.
type UpdateFlowStepTool struct {
	loader *graph.Loader
	meta   meta.Store
	usage  *Usage
	logger *zap.Logger
}

// NewUpdateFlowStepTool creates an UpdateFlowStepTool with its dependencies.
func NewUpdateFlowStepTool(l *graph.Loader, m meta.Store, u *Usage, logger *zap.Logger) *UpdateFlowStepTool {
	if m == nil {
		m = meta.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UpdateFlowStepTool{loader: l, meta: m, usage: u, logger: logger}
}

// Definition returns the MCP tool definition for registration.
func (t *UpdateFlowStepTool) Definition() mcp.Tool {
	return mcp.NewTool("ctx_update_flow_step",
		mcp.WithDescription(
			"Set the status of one step in a flow. The flow's overall status and completion "+
				"percentage are recomputed from its steps and written back to its definition file.",
		),
		mcp.WithString("flow_id",
			mcp.Required(),
			mcp.Description("Flow id."),
		),
		mcp.WithString("step_id",
			mcp.Required(),
			mcp.Description("Step id within the flow."),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("New step status."),
			mcp.Enum("pending", "in_progress", "needs_review", "completed", "blocked"),
		),
	)
}

// Handle processes the ctx_update_flow_step tool call.
func (t *UpdateFlowStepTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	flowID := strings.TrimSpace(req.GetString("flow_id", ""))
	stepID := strings.TrimSpace(req.GetString("step_id", ""))
	if flowID == "" || stepID == "" {
		return mcp.NewToolResultError("'flow_id' and 'step_id' are required"), nil
	}
	status := graph.Status(req.GetString("status", ""))
	if err := graph.ValidateStatus(status); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	flow, err := t.loader.UpdateStepStatus(ctx, flowID, stepID, status)
	if err != nil {
		return errorResult("updating flow step", err), nil
	}

	mirror := meta.FlowStatus{
		FlowID:     flow.ID,
		Status:     string(flow.Status),
		Completion: flow.Completion,
		UpdatedAt:  flow.UpdatedAt,
	}
	if err := t.meta.SetFlowStatus(ctx, mirror); err != nil {
		t.logger.Debug("flow status not mirrored", zap.String("flow", flow.ID), zap.Error(err))
	}
	t.usage.Record(ctx, "update_flow_step", flowID+"/"+stepID, string(status))
	return jsonResult(flow)
}
