package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Guizzs26/abx-sheet-sync/internal/app"
	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <row>",
		Short: "Remove a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rowID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid row %q", args[0])
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out, err := a.View.Delete(ctx, rowID)
				printOutcome(cmd, out.Message, out.Remote)
				return err
			})
		},
	}
}
