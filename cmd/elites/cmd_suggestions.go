package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"elites/internal/redaction"
	"elites/internal/suggest"
	"elites/internal/telemetry"
)

var applySuggestionsCmd = &cobra.Command{
	Use:   "apply-suggestions",
	Short: "Add reinforced words from the latest session wrap as deck cards",
	RunE:  runApplySuggestions,
}

func init() {
	applySuggestionsCmd.Flags().String("deck", "", "Deck to add cards to (required)")
	applySuggestionsCmd.Flags().Int("limit-sessions", 5, "How many recent sessions to search for a wrap")
	_ = applySuggestionsCmd.MarkFlagRequired("deck")
}

func runApplySuggestions(cmd *cobra.Command, args []string) error {
	deckName, _ := cmd.Flags().GetString("deck")
	limit, _ := cmd.Flags().GetInt("limit-sessions")

	deck, err := loadDeck()
	if err != nil {
		return err
	}
	deckID, ok := deck.DeckIDByName(deckName)
	if !ok {
		return fmt.Errorf("deck not found: %s", deckName)
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	export, err := store.ExportTelemetry(limit, redaction.None)
	if err != nil {
		return err
	}
	wrap := latestWrap(export.Sessions)
	if wrap == nil {
		return fmt.Errorf("no session wrap found")
	}

	created, err := suggest.Apply(deck, suggest.FromWrap(wrap, deckID))
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"created_note_ids": created})
}

// latestWrap returns the wrap of the most recent session whose summary
// carries one. Exported sessions are ordered newest first.
func latestWrap(sessions []telemetry.ExportedSession) map[string]any {
	for _, s := range sessions {
		if s.SummaryJSON == nil || *s.SummaryJSON == "" {
			continue
		}
		var summary map[string]any
		if err := json.Unmarshal([]byte(*s.SummaryJSON), &summary); err != nil {
			continue
		}
		if wrap, ok := summary["wrap"].(map[string]any); ok {
			return wrap
		}
	}
	return nil
}
