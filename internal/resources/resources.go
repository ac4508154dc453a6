// Package resources implements MCP resource handlers for ctxkeeper.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (ctxkeeper://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HendryAvila/ctxkeeper/internal/directive"
	"github.com/HendryAvila/ctxkeeper/internal/graph"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	// ThemesURI serves the theme index.
	ThemesURI = "ctxkeeper://themes"
	// FlowsURI serves the flow index.
	FlowsURI = "ctxkeeper://flows"
	// DirectivesURI serves the list of directive keys.
	DirectivesURI = "ctxkeeper://directives"
)

// Handler manages ctxkeeper resource endpoints.
type Handler struct {
	loader     *graph.Loader
	directives directive.Store
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(loader *graph.Loader, directives directive.Store) *Handler {
	return &Handler{loader: loader, directives: directives}
}

// ThemesResource returns the MCP resource definition for the theme index.
func (h *Handler) ThemesResource() mcp.Resource {
	return mcp.NewResource(
		ThemesURI,
		"Theme Index",
		mcp.WithResourceDescription("Every theme defined for the project, with its document and description"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleThemes returns the theme index as JSON.
func (h *Handler) HandleThemes(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	idx, err := h.loader.ThemeIndex(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, idx)
}

// FlowsResource returns the MCP resource definition for the flow index.
func (h *Handler) FlowsResource() mcp.Resource {
	return mcp.NewResource(
		FlowsURI,
		"Flow Index",
		mcp.WithResourceDescription("Every flow with its themes and priority, plus the dependency edges between flows"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleFlows returns the flow index as JSON.
func (h *Handler) HandleFlows(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	idx, err := h.loader.FlowIndex(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, idx)
}

// DirectivesResource returns the MCP resource definition for directive keys.
func (h *Handler) DirectivesResource() mcp.Resource {
	return mcp.NewResource(
		DirectivesURI,
		"Directive Keys",
		mcp.WithResourceDescription("Keys accepted by ctx_resolve_directive"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleDirectives returns the sorted directive keys as JSON.
func (h *Handler) HandleDirectives(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	keys, err := h.directives.Keys(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, map[string]any{"keys": keys})
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
