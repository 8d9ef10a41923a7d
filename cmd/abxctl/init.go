package main

import (
	"context"
	"fmt"

	"github.com/Guizzs26/abx-sheet-sync/internal/app"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the header row into an empty table, or verify an existing one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Client.EnsureHeader(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Table header is in place.")
				return nil
			})
		},
	}
}
