// ctxkeeper: context and directive resolution for AI coding agents.
//
// It decides how much of a project an agent should load for a task (a
// theme's scope, the relevant flows in dependency order) and how much of
// each guideline to show (compact, standard or detailed tier).
//
// Usage:
//
//	ctxkeeper serve                        # Start MCP server (stdio transport)
//	ctxkeeper scope auth                   # Print the scope for a theme
//	ctxkeeper resolve commit-style         # Resolve a directive
//	ctxkeeper order login refresh routes   # Order flows for loading
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/HendryAvila/ctxkeeper/internal/config"
	"github.com/HendryAvila/ctxkeeper/internal/logging"
	ctxserver "github.com/HendryAvila/ctxkeeper/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries what PersistentPreRunE resolved for the running command.
type app struct {
	projectFlag string
	levelFlag   string

	cfg     *config.Config
	logger  *zap.Logger
	closers []func()
}

// components builds the shared dependencies on first use.
func (a *app) components() (*ctxserver.Components, error) {
	c, cleanup, err := ctxserver.Build(a.cfg, a.logger)
	a.closers = append(a.closers, cleanup)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// newRootCmd builds the command tree. Callers must close the returned app
// after Execute.
func newRootCmd() (*cobra.Command, *app) {
	a := &app{}
	root := &cobra.Command{
		Use:           "ctxkeeper",
		Short:         "ctxkeeper - context and directive resolution for AI coding agents",
		Long:          `Decides how much project context and guideline detail an agent should load for a task.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.projectFlag, "project", "",
		"Project root (default: nearest ancestor with a .ctxkeeper directory)")
	root.PersistentFlags().StringVar(&a.levelFlag, "log-level", "",
		"Override log.level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(a),
		newResolveCmd(a),
		newEscalateCmd(a),
		newScopeCmd(a),
		newDescribeCmd(a),
		newOrderCmd(a),
		newAnalyzeCmd(a),
		newSelectCmd(a),
		newStepCmd(a),
		newUsageCmd(a),
		newVersionCmd(),
	)
	return root, a
}

func (a *app) setup() error {
	root := a.projectFlag
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
		root = config.FindProjectRoot(wd)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	if a.levelFlag != "" {
		cfg.Log.Level = a.levelFlag
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, cleanup, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.closers = append(a.closers, cleanup)
	return nil
}

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	root, a := newRootCmd()
	err := root.Execute()
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
