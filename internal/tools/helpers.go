// Package tools implements the MCP tool handlers ctxkeeper exposes.
//
// Each tool is a struct that receives its dependencies through its
// constructor and offers:
//   - Definition() returning the mcp.Tool schema
//   - Handle() processing a CallToolRequest
//
// Domain failures (unknown key, malformed document, cycle) come back as
// tool error results, never as Go errors, so the host always gets
// something it can show.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/HendryAvila/ctxkeeper/internal/ctxerr"
	"github.com/mark3labs/mcp-go/mcp"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// stringSliceArg accepts either a JSON array of strings or a
// comma-separated string. Blank entries are dropped.
func stringSliceArg(req mcp.CallToolRequest, key string) []string {
	var raw []string
	switch v := req.GetArguments()[key].(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case []string:
		raw = v
	case string:
		raw = strings.Split(v, ",")
	}

	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// errorResult turns a domain failure into a tool error result. Classified
// errors keep their "kind: subject: cause" text.
func errorResult(action string, err error) *mcp.CallToolResult {
	if kind := ctxerr.KindOf(err); kind != "" {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", action, err))
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	text := string(data)
	return mcp.NewToolResultText(text + TokenFooter(EstimateTokens(text))), nil
}
