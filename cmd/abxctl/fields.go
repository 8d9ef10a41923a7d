package main

import (
	"fmt"
	"os"

	"github.com/Guizzs26/abx-sheet-sync/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fieldFlags binds the editable record columns to command flags
type fieldFlags struct {
	values models.Fields
	file   string
}

func (ff *fieldFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ff.values.PatientID, "patient", "", "Patient identifier")
	cmd.Flags().StringVar(&ff.values.Name, "name", "", "Patient name")
	cmd.Flags().StringVar(&ff.values.Antibiotic, "antibiotic", "", "Antibiotic given")
	cmd.Flags().StringVar(&ff.values.Dosage, "dosage", "", "Dosage, e.g. 1g")
	cmd.Flags().StringVar(&ff.values.Route, "route", "", "Route: IV, IM, PO...")
	cmd.Flags().StringVar(&ff.values.Date, "date", "", "Administration date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&ff.values.Time, "time", "", "Administration time (HH:MM)")
	cmd.Flags().StringVar(&ff.values.AdministeredBy, "by", "", "Who administered the dose")
	cmd.Flags().StringVar(&ff.values.Notes, "notes", "", "Free-text notes")
	cmd.Flags().StringVarP(&ff.file, "from-file", "f", "", "Read fields from a YAML file; flags override it")
}

// apply layers the YAML file (if any) and then every flag the user set over base
func (ff *fieldFlags) apply(cmd *cobra.Command, base models.Fields) (models.Fields, error) {
	out := base
	if ff.file != "" {
		data, err := os.ReadFile(ff.file)
		if err != nil {
			return out, fmt.Errorf("failed to read %s: %w", ff.file, err)
		}
		if err := yaml.Unmarshal(data, &out); err != nil {
			return out, fmt.Errorf("failed to parse %s: %w", ff.file, err)
		}
	}

	changed := cmd.Flags().Changed
	if changed("patient") {
		out.PatientID = ff.values.PatientID
	}
	if changed("name") {
		out.Name = ff.values.Name
	}
	if changed("antibiotic") {
		out.Antibiotic = ff.values.Antibiotic
	}
	if changed("dosage") {
		out.Dosage = ff.values.Dosage
	}
	if changed("route") {
		out.Route = ff.values.Route
	}
	if changed("date") {
		out.Date = ff.values.Date
	}
	if changed("time") {
		out.Time = ff.values.Time
	}
	if changed("by") {
		out.AdministeredBy = ff.values.AdministeredBy
	}
	if changed("notes") {
		out.Notes = ff.values.Notes
	}
	return out, nil
}
