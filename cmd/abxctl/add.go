package main

import (
	"context"
	"fmt"

	"github.com/Guizzs26/abx-sheet-sync/internal/app"
	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/spf13/cobra"
)

func newAddCmd() *cobra.Command {
	var ff fieldFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an antibiotic administration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fields, err := ff.apply(cmd, models.Fields{})
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out, err := a.View.Create(ctx, fields)
				printOutcome(cmd, out.Message, out.Remote)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "row %d, entry %s\n", out.Record.RowID, out.Record.EntryID)
				return nil
			})
		},
	}

	ff.register(cmd)
	return cmd
}

// printOutcome shows the user-facing summary and, for conflicts, what the table holds now
func printOutcome(cmd *cobra.Command, message string, remote *models.Record) {
	fmt.Fprintln(cmd.OutOrStdout(), message)
	if remote == nil {
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Current values in the table:")
	renderTable(cmd.OutOrStdout(), []models.Record{*remote})
}
