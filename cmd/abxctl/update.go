package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Guizzs26/abx-sheet-sync/internal/app"
	"github.com/spf13/cobra"
)

func newUpdateCmd() *cobra.Command {
	var ff fieldFlags

	cmd := &cobra.Command{
		Use:   "update <row>",
		Short: "Change fields of an existing record",
		Long:  "Only the fields given as flags (or in --from-file) change; the rest keep the values last read from the table.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rowID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid row %q", args[0])
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				snap, err := a.Cache.Get(ctx, a.Config.ViewMaxAge)
				if err != nil {
					return err
				}
				current, ok := snap.Row(rowID)
				if !ok {
					return fmt.Errorf("row %d not found (table has %d rows)", rowID, snap.Len())
				}

				fields, err := ff.apply(cmd, current.Fields)
				if err != nil {
					return err
				}

				out, err := a.View.Update(ctx, rowID, fields)
				printOutcome(cmd, out.Message, out.Remote)
				return err
			})
		},
	}

	ff.register(cmd)
	return cmd
}
