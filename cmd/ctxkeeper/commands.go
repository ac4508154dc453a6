package main

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/HendryAvila/ctxkeeper/internal/deps"
	"github.com/HendryAvila/ctxkeeper/internal/directive"
	"github.com/HendryAvila/ctxkeeper/internal/graph"
	"github.com/HendryAvila/ctxkeeper/internal/meta"
	"github.com/HendryAvila/ctxkeeper/internal/scope"
	ctxserver "github.com/HendryAvila/ctxkeeper/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// --- Directives ---

func newResolveCmd(a *app) *cobra.Command {
	var situational, force string
	cmd := &cobra.Command{
		Use:   "resolve <key>",
		Short: "Resolve a directive to the tier the situation calls for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := directive.ParseTier(force)
			if err != nil {
				return err
			}
			c, err := a.components()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			res, err := c.Resolver.Resolve(ctx, args[0], situational, tier)
			if err != nil {
				return err
			}
			c.Usage.Record(ctx, "resolve_directive", args[0], string(res.Tier))
			return outputJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&situational, "context", "", "Free-text description of the situation")
	cmd.Flags().StringVar(&force, "tier", "", "Force a tier: compact, standard or detailed")
	return cmd
}

func newEscalateCmd(a *app) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "escalate <key>",
		Short: "Load the next richer tier of a directive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := directive.ParseTier(from)
			if err != nil {
				return err
			}
			if tier == "" {
				tier = directive.TierCompact
			}
			c, err := a.components()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			res, err := c.Resolver.EscalateFrom(ctx, args[0], tier)
			if err != nil {
				return err
			}
			c.Usage.Record(ctx, "escalate_directive", args[0], string(res.Tier))
			return outputJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&from, "from", "compact", "Tier the caller already has")
	return cmd
}

// --- Scope ---

func newScopeCmd(a *app) *cobra.Command {
	var mode string
	var force bool
	cmd := &cobra.Command{
		Use:   "scope <theme>",
		Short: "Assemble the files, paths and flows to load for a theme",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := scope.ParseMode(mode)
			if err != nil {
				return err
			}
			c, err := a.components()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			r, err := c.Selector.LoadScope(ctx, args[0], m, force)
			if err != nil {
				return err
			}
			c.Usage.Record(ctx, "load_scope", args[0], string(r.Mode))
			return outputJSON(cmd.OutOrStdout(), r)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "theme-focused (default), theme-expanded or project-wide")
	cmd.Flags().BoolVar(&force, "force", false, "Keep the requested mode even for heavily linked themes")
	return cmd
}

func newDescribeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <path> <description>",
		Short: "Store a description for a project directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := path.Clean(filepath.ToSlash(args[0]))
			if filepath.IsAbs(args[0]) || p == ".." || strings.HasPrefix(p, "../") {
				return fmt.Errorf("path %q must be relative to the project root", args[0])
			}
			c, err := a.components()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			if err := c.Meta.SetDirectoryDescription(ctx, p, args[1]); err != nil {
				return err
			}
			c.Usage.Record(ctx, "describe_path", p, "")
			fmt.Fprintf(cmd.OutOrStdout(), "Stored description for %s.\n", p)
			return nil
		},
	}
}

// --- Flows ---

// requiredIndex loads the flow index and checks that every id is in it.
func requiredIndex(ctx context.Context, c *ctxserver.Components, ids []string) (*graph.FlowIndex, error) {
	idx, err := c.Loader.FlowIndex(ctx)
	if err != nil {
		return nil, err
	}
	if err := idx.RequireFlows(ids); err != nil {
		return nil, err
	}
	return idx, nil
}

func newOrderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "order <flow-id>...",
		Short: "Order flows so prerequisites load first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.components()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			idx, err := requiredIndex(ctx, c, args)
			if err != nil {
				return err
			}
			order, err := deps.OrderForLoading(args, idx.Dependencies)
			if err != nil {
				return err
			}
			c.Usage.Record(ctx, "order_flows", strings.Join(args, ","), "")
			return outputJSON(cmd.OutOrStdout(), map[string]any{"order": order})
		},
	}
}

func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <flow-id>...",
		Short: "Report dependencies, dependents and priority per flow",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.components()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			idx, err := requiredIndex(ctx, c, args)
			if err != nil {
				return err
			}
			c.Usage.Record(ctx, "analyze_dependencies", strings.Join(args, ","), "")
			return outputJSON(cmd.OutOrStdout(), deps.AnalyzeDependencies(args, idx.Dependencies, idx.Known()))
		},
	}
}

func newSelectCmd(a *app) *cobra.Command {
	var themes []string
	var task string
	var maxCount int
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Rank flows by relevance to a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(themes) == 0 && strings.TrimSpace(task) == "" {
				return fmt.Errorf("provide --theme, --task, or both")
			}
			c, err := a.components()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			flows, err := c.Estimator.SelectFlows(ctx, themes, task, maxCount)
			if err != nil {
				return err
			}
			c.Usage.Record(ctx, "select_flows", strings.Join(themes, ","), task)
			return outputJSON(cmd.OutOrStdout(), map[string]any{"flows": flows})
		},
	}
	cmd.Flags().StringSliceVar(&themes, "theme", nil, "Theme name (repeatable)")
	cmd.Flags().StringVar(&task, "task", "", "What you are about to work on")
	cmd.Flags().IntVar(&maxCount, "max", 0, "How many flows to return (default: index setting)")
	return cmd
}

func newStepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "step <flow-id> <step-id> <status>",
		Short: "Set the status of a flow step",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := graph.Status(args[2])
			if err := graph.ValidateStatus(status); err != nil {
				return err
			}
			c, err := a.components()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			flow, err := c.Loader.UpdateStepStatus(ctx, args[0], args[1], status)
			if err != nil {
				return err
			}
			mirror := meta.FlowStatus{
				FlowID:     flow.ID,
				Status:     string(flow.Status),
				Completion: flow.Completion,
				UpdatedAt:  flow.UpdatedAt,
			}
			if err := c.Meta.SetFlowStatus(ctx, mirror); err != nil {
				a.logger.Debug("flow status not mirrored", zap.String("flow", flow.ID), zap.Error(err))
			}
			c.Usage.Record(ctx, "update_flow_step", args[0]+"/"+args[1], args[2])
			return outputJSON(cmd.OutOrStdout(), flow)
		},
	}
}

// --- Usage ---

// usageLister is the part of the SQLite store the usage command needs.
type usageLister interface {
	RecentUsage(ctx context.Context, limit int) ([]meta.UsageEvent, error)
}

func newUsageCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show recently recorded operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.components()
			if err != nil {
				return err
			}
			lister, ok := c.Meta.(usageLister)
			if !ok {
				return fmt.Errorf("usage log requires the metadata store (metadata.enabled)")
			}
			ctx, cancel := signalContext()
			defer cancel()

			events, err := lister.RecentUsage(ctx, limit)
			if err != nil {
				return err
			}
			return outputJSON(cmd.OutOrStdout(), map[string]any{"events": events})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of events")
	return cmd
}
