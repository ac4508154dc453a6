package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the ctx-status MCP prompt.
// It instructs the AI to report flow progress for a theme.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("ctx-status",
		mcp.WithPromptDescription(
			"Check progress on a theme's flows: which are in progress, "+
				"which need review, and what should be picked up next.",
		),
		mcp.WithArgument("theme",
			mcp.ArgumentDescription("Theme to report on."),
			mcp.RequiredArgument(),
		),
	)
}

// Handle processes the ctx-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	theme := ""
	if args := req.Params.Arguments; args != nil {
		theme = strings.TrimSpace(args["theme"])
	}
	if theme == "" {
		return nil, fmt.Errorf("theme is required")
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Flow status: %s", theme),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Please run `ctx_select_flows` with themes=['%s'] and max_count=10.\n\n"+
						"Then:\n"+
						"1. Show each flow's status and completion in a compact table\n"+
						"2. Run `ctx_analyze_dependencies` on those flows and flag any dangling dependencies\n"+
						"3. Tell me which flow to pick up next, preferring high-priority flows whose prerequisites are completed\n"+
						"4. When I finish a step, record it with `ctx_update_flow_step`",
					theme,
				)),
			},
		},
	}, nil
}
