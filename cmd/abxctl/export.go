package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Guizzs26/abx-sheet-sync/internal/app"
	"github.com/Guizzs26/abx-sheet-sync/internal/export"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var (
		output   string
		encoding string
		comma    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the table as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len([]rune(comma)) != 1 {
				return fmt.Errorf("--comma must be a single character")
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				snap := a.Cache.Peek()
				if snap == nil {
					var err error
					if snap, err = a.Cache.Get(ctx, a.Config.ViewMaxAge); err != nil {
						return err
					}
				}

				enc := encoding
				if enc == "" {
					enc = a.Config.ExportEncoding
				}

				var w io.Writer = cmd.OutOrStdout()
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("failed to create %s: %w", output, err)
					}
					defer f.Close()
					w = f
				}

				if err := export.WriteCSV(w, snap, export.Options{Encoding: enc, Comma: []rune(comma)[0]}); err != nil {
					return err
				}
				a.Logger.Info("Export finished", "rows", snap.Len(), "encoding", enc, "output", output)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&encoding, "encoding", "", "utf-8 or windows-1252 (default EXPORT_ENCODING)")
	cmd.Flags().StringVar(&comma, "comma", ",", "Field separator")

	return cmd
}
