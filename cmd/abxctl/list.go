package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Guizzs26/abx-sheet-sync/internal/app"
	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/Guizzs26/abx-sheet-sync/internal/service"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var (
		filter service.Filter
		order  service.SortOrder
		format string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List antibiotic administrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				records, err := a.View.List(ctx, filter, order)
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), service.UserMessage(err))
					return err
				}

				if format == "json" {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(records)
				}
				renderTable(cmd.OutOrStdout(), records)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filter.PatientID, "patient", "", "Only this patient")
	cmd.Flags().StringVar(&filter.Antibiotic, "antibiotic", "", "Only this antibiotic")
	cmd.Flags().StringVar(&filter.Route, "route", "", "Only this route")
	cmd.Flags().StringVar(&filter.AdministeredBy, "by", "", "Only doses given by this person")
	cmd.Flags().StringVarP(&filter.Query, "query", "q", "", "Free-text search over every column")
	cmd.Flags().StringVar(&filter.DateFrom, "from", "", "First date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&filter.DateTo, "to", "", "Last date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&order.Column, "sort", "", "Sort column (default: row order)")
	cmd.Flags().BoolVar(&order.Desc, "desc", false, "Sort descending")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")

	return cmd
}

func renderTable(w io.Writer, records []models.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Row", "Patient", "Name", "Antibiotic", "Dosage", "Route", "Date", "Time", "By", "Notes"})

	for _, r := range records {
		t.AppendRow(table.Row{r.RowID, r.PatientID, r.Name, r.Antibiotic, r.Dosage, r.Route, r.Date, r.Time, r.AdministeredBy, r.Notes})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "", "Total", len(records)})
	t.Render()
}
