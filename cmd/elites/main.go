// elites is the conversation practice CLI: scripted sessions against a
// JSON deck file, with SQLite telemetry and a pluggable LLM provider.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	deckFilePath  string
	telemetryPath string
	settingsPath  string
	apiKeyFile    string
	verbose       bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "elites",
	Short: "Constrained Korean conversation practice",
	Long: `elites runs vocabulary-constrained conversation practice sessions
against a deck of Korean flashcards.

Each turn is planned from the deck's scheduler state, generated by an
LLM provider under a closed word envelope, validated against the
response contract, and recorded to a local SQLite telemetry store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&deckFilePath, "deck-file", "deck.json", "Deck file path")
	rootCmd.PersistentFlags().StringVar(&telemetryPath, "telemetry", "telemetry.db", "Telemetry SQLite path")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "elites.yaml", "Settings YAML path")
	rootCmd.PersistentFlags().StringVar(&apiKeyFile, "api-key-file", "", "OpenAI API key file (or set OPENAI_API_KEY)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(planReplyCmd)
	rootCmd.AddCommand(glossCmd)
	rootCmd.AddCommand(rebuildGlossaryCmd)
	rootCmd.AddCommand(importGlossaryCmd)
	rootCmd.AddCommand(applySuggestionsCmd)
	rootCmd.AddCommand(settingsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
