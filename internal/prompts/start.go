// Package prompts implements MCP prompt handlers for ctxkeeper.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the ctx-start MCP prompt.
// It walks the AI through loading context before it touches any code.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("ctx-start",
		mcp.WithPromptDescription(
			"Load just enough project context for a task: the theme's scope, "+
				"the most relevant flows in dependency order, and any directives that apply.",
		),
		mcp.WithArgument("theme",
			mcp.ArgumentDescription("Theme to work in. Leave empty to infer it from the task."),
		),
		mcp.WithArgument("task",
			mcp.ArgumentDescription("What you want to get done."),
		),
	)
}

// Handle processes the ctx-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	var theme, task string
	if args := req.Params.Arguments; args != nil {
		theme = strings.TrimSpace(args["theme"])
		task = strings.TrimSpace(args["task"])
	}

	var sb strings.Builder
	if task != "" {
		fmt.Fprintf(&sb, "I want to work on: %s\n\n", task)
	} else {
		sb.WriteString("I want to start working on this project.\n\n")
	}
	sb.WriteString("Before changing anything, please:\n")
	if theme != "" {
		fmt.Fprintf(&sb, "1. Run `ctx_load_scope` with theme='%s' (leave mode at its default)\n", theme)
		fmt.Fprintf(&sb, "2. Run `ctx_select_flows` with themes=['%s']", theme)
	} else {
		sb.WriteString("1. Read the `ctxkeeper://themes` resource and pick the theme that fits my task, then run `ctx_load_scope` with it\n")
		sb.WriteString("2. Run `ctx_select_flows`")
	}
	if task != "" {
		fmt.Fprintf(&sb, " and task='%s'", task)
	}
	sb.WriteString("\n")
	sb.WriteString("3. Run `ctx_order_flows` on the selected flow ids and read them in that order\n")
	sb.WriteString("4. If a directive applies, run `ctx_resolve_directive` and only escalate with `ctx_escalate_directive` when the compact form is not enough\n")
	sb.WriteString("5. Summarize the scope (files, paths, recommendations) before proposing changes")

	description := "Load context"
	if theme != "" {
		description = fmt.Sprintf("Load context for theme: %s", theme)
	}
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(sb.String()),
			},
		},
	}, nil
}
