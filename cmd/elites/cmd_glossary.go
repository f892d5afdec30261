package main

import (
	"github.com/spf13/cobra"
)

var glossCmd = &cobra.Command{
	Use:   "gloss [lexeme]",
	Short: "Look up a lexeme in the persistent glossary",
	Args:  cobra.ExactArgs(1),
	RunE:  runGloss,
}

var rebuildGlossaryCmd = &cobra.Command{
	Use:   "rebuild-glossary",
	Short: "Rebuild the glossary from deck note glosses",
	RunE:  runRebuildGlossary,
}

var importGlossaryCmd = &cobra.Command{
	Use:   "import-glossary [path]",
	Short: "Import glossary entries from a TSV, CSV, or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportGlossary,
}

func init() {
	rebuildGlossaryCmd.Flags().StringSlice("decks", nil, "Deck names to read glosses from (required)")
	envelopeFlags(rebuildGlossaryCmd)
	_ = rebuildGlossaryCmd.MarkFlagRequired("decks")

	importGlossaryCmd.Flags().String("format", "tsv", "File format: tsv, csv, or json")
}

func runGloss(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	entry, err := store.LookupGloss(args[0])
	if err != nil {
		return err
	}
	if entry == nil {
		return printJSON(map[string]any{"found": false})
	}
	return printJSON(map[string]any{
		"found":  true,
		"lexeme": entry.Lexeme,
		"gloss":  entry.Gloss,
	})
}

func runRebuildGlossary(cmd *cobra.Command, args []string) error {
	settings := mergedSettings(cmd)
	deckNames, _ := cmd.Flags().GetStringSlice("decks")

	deck, err := loadDeck()
	if err != nil {
		return err
	}
	snap, _, err := buildSnapshot(deck, deckNames, settings)
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	updated, err := store.RebuildGlossary(snap)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"updated": updated})
}

func runImportGlossary(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	imported, err := store.ImportGlossaryFile(args[0], format)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"imported": imported})
}
