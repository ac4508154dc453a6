// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools, prompts and resources that depend on them.
// No business logic lives here, only wiring.
package server

import (
	"fmt"

	"github.com/HendryAvila/ctxkeeper/internal/config"
	"github.com/HendryAvila/ctxkeeper/internal/directive"
	"github.com/HendryAvila/ctxkeeper/internal/graph"
	"github.com/HendryAvila/ctxkeeper/internal/heuristics"
	"github.com/HendryAvila/ctxkeeper/internal/meta"
	"github.com/HendryAvila/ctxkeeper/internal/prompts"
	"github.com/HendryAvila/ctxkeeper/internal/relevance"
	"github.com/HendryAvila/ctxkeeper/internal/resources"
	"github.com/HendryAvila/ctxkeeper/internal/scope"
	"github.com/HendryAvila/ctxkeeper/internal/tools"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Components holds every long-lived dependency. The CLI subcommands use it
// directly; New wraps it in an MCP server.
type Components struct {
	Config     *config.Config
	Tables     *heuristics.Tables
	Directives *directive.FileStore
	Resolver   *directive.Resolver
	Loader     *graph.Loader
	Meta       meta.Store
	Selector   *scope.Selector
	Estimator  *relevance.Estimator
	Usage      *tools.Usage
}

// Build resolves every dependency from cfg. The metadata store is optional:
// if it is disabled or fails to open, a Noop store is used and everything
// else keeps working.
//
// The returned cleanup closes the metadata store and is always non-nil.
func Build(cfg *config.Config, logger *zap.Logger) (*Components, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tables, err := heuristics.Load(cfg.HeuristicsFile)
	if err != nil {
		return nil, noop, fmt.Errorf("loading heuristics: %w", err)
	}

	directives := directive.NewFileStore(cfg.DirectivesDir, cfg.TierCacheTTL, logger.Named("directive"))
	loader := graph.NewLoader(cfg.ThemesDir(), cfg.FlowsDir(), logger.Named("graph"))

	cleanup := noop
	var store meta.Store = meta.Noop{}
	if cfg.Metadata.Enabled {
		sqlite, err := meta.Open(cfg.DataDir, cfg.StoreTimeout, logger.Named("meta"))
		if err != nil {
			logger.Warn("metadata store disabled", zap.String("data_dir", cfg.DataDir), zap.Error(err))
		} else {
			store = sqlite
			cleanup = func() {
				if err := sqlite.Close(); err != nil {
					logger.Warn("metadata store close", zap.Error(err))
				}
			}
		}
	}

	c := &Components{
		Config:     cfg,
		Tables:     tables,
		Directives: directives,
		Resolver:   directive.NewResolver(directives, tables.Directives, logger.Named("directive")),
		Loader:     loader,
		Meta:       store,
		Selector: scope.NewSelector(loader, store, scope.Options{
			ProjectRoot:       cfg.ProjectRoot,
			GlobalFiles:       cfg.Scope.GlobalFiles,
			GlobalPaths:       cfg.Scope.GlobalPaths,
			DescriptionBudget: cfg.Scope.DescriptionBudget,
			MemoryCeiling:     cfg.Scope.MemoryCeiling,
		}, logger.Named("scope")),
		Estimator: relevance.NewEstimator(loader, store, tables, logger.Named("relevance")),
		Usage:     tools.NewUsage(store, logger.Named("usage")),
	}
	return c, cleanup, nil
}

// New creates and configures the MCP server with all tools, prompts,
// and resources registered.
//
// The returned cleanup function closes the metadata store and must be
// called on shutdown (typically via defer). It is always non-nil.
func New(cfg *config.Config, logger *zap.Logger) (*server.MCPServer, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, cleanup, err := Build(cfg, logger)
	if err != nil {
		return nil, cleanup, err
	}

	s := server.NewMCPServer(
		"ctxkeeper",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Directives ---

	resolveTool := tools.NewResolveDirectiveTool(c.Resolver, c.Usage)
	s.AddTool(resolveTool.Definition(), resolveTool.Handle)

	escalateTool := tools.NewEscalateDirectiveTool(c.Resolver, c.Usage)
	s.AddTool(escalateTool.Definition(), escalateTool.Handle)

	// --- Scope ---

	scopeTool := tools.NewLoadScopeTool(c.Selector, c.Usage)
	s.AddTool(scopeTool.Definition(), scopeTool.Handle)

	describeTool := tools.NewDescribePathTool(c.Meta, c.Usage)
	s.AddTool(describeTool.Definition(), describeTool.Handle)

	// --- Flows ---

	orderTool := tools.NewOrderFlowsTool(c.Loader, c.Usage)
	s.AddTool(orderTool.Definition(), orderTool.Handle)

	analyzeTool := tools.NewAnalyzeDependenciesTool(c.Loader, c.Usage)
	s.AddTool(analyzeTool.Definition(), analyzeTool.Handle)

	selectTool := tools.NewSelectFlowsTool(c.Estimator, c.Usage)
	s.AddTool(selectTool.Definition(), selectTool.Handle)

	stepTool := tools.NewUpdateFlowStepTool(c.Loader, c.Meta, c.Usage, logger.Named("tools"))
	s.AddTool(stepTool.Definition(), stepTool.Handle)

	// --- Prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Resources ---

	resourceHandler := resources.NewHandler(c.Loader, c.Directives)
	s.AddResource(resourceHandler.ThemesResource(), resourceHandler.HandleThemes)
	s.AddResource(resourceHandler.FlowsResource(), resourceHandler.HandleFlows)
	s.AddResource(resourceHandler.DirectivesResource(), resourceHandler.HandleDirectives)

	logger.Info("server ready",
		zap.String("version", Version),
		zap.String("project_root", cfg.ProjectRoot),
		zap.Bool("metadata", cfg.Metadata.Enabled))
	return s, cleanup, nil
}

// noop is the cleanup used when there is nothing to close.
func noop() {}

// serverInstructions tells the AI how to use ctxkeeper.
func serverInstructions() string {
	return `You have access to ctxkeeper, which decides how much project context to load for a task.

## START OF EVERY TASK

1. Pick the theme the task belongs to (read ctxkeeper://themes if unsure).
2. Call ctx_load_scope with that theme. Leave mode at its default; the server
   widens it when the theme is heavily linked. Read the files and paths it
   returns, not the whole repository.
3. Call ctx_select_flows with the theme and a one-line task description.
4. Call ctx_order_flows on the selected ids and read the flows in that order.

## DIRECTIVES

Call ctx_resolve_directive for any guideline you need to follow. You usually
get the compact form. Only call ctx_escalate_directive when the compact form
does not answer your question, passing the tier you already have.

## PROGRESS

When you finish a step of a flow, call ctx_update_flow_step. Use
ctx_analyze_dependencies before starting a flow to check its prerequisites.

## ERRORS

Errors start with their kind: not_found, malformed, unavailable or cyclic.
unavailable means the optional metadata store is off; retrying will not help.
cyclic lists the flows that depend on each other; ask the user how to break
the loop.`
}
