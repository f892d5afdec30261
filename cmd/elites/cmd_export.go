package main

import (
	"github.com/spf13/cobra"

	"elites/internal/config"
	"elites/internal/redaction"
)

var exportCmd = &cobra.Command{
	Use:   "export-telemetry",
	Short: "Export recent sessions, events, and mastery items as JSON",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().Int("limit-sessions", 100, "Most recent sessions to export")
	exportCmd.Flags().String("redaction", "", "Redaction level: none, minimal, strict")
}

func runExport(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit-sessions")
	level := config.Load(settingsPath).RedactionLevel
	if cmd.Flags().Changed("redaction") {
		level, _ = cmd.Flags().GetString("redaction")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	export, err := store.ExportTelemetry(limit, redaction.ParseLevel(level))
	if err != nil {
		return err
	}
	return printJSON(export)
}
