package main

import (
	"fmt"

	ctxserver "github.com/HendryAvila/ctxkeeper/internal/server"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ctxkeeper v%s\n", ctxserver.Version)
		},
	}
}
