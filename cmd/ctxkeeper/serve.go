package main

import (
	"fmt"

	ctxserver "github.com/HendryAvila/ctxkeeper/internal/server"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cleanup, err := ctxserver.New(a.cfg, a.logger)
			a.closers = append(a.closers, cleanup)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			stdio := server.NewStdioServer(s)
			a.logger.Info("serving on stdio", zap.String("project_root", a.cfg.ProjectRoot))
			if err := stdio.Listen(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
