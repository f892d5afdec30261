package main

import (
	"github.com/spf13/cobra"

	"elites/internal/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the deterministic deck snapshot as JSON",
	RunE:  runSnapshot,
}

func init() {
	snapshotCmd.Flags().StringSlice("decks", nil, "Deck names to include (required)")
	envelopeFlags(snapshotCmd)
	_ = snapshotCmd.MarkFlagRequired("decks")
}

func snapshotItemJSON(item *snapshot.Item) map[string]any {
	return map[string]any{
		"item_id":        string(item.ItemID),
		"lexeme":         item.Lexeme,
		"gloss":          item.Gloss,
		"source_note_id": item.SourceNoteID,
		"source_card_id": item.SourceCardID,
		"due":            item.Due,
		"ivl":            item.Ivl,
		"reps":           item.Reps,
		"lapses":         item.Lapses,
		"stability":      item.Stability,
		"difficulty":     item.Difficulty,
	}
}

func runSnapshot(cmd *cobra.Command, args []string) error {
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
	items := make([]map[string]any, 0, len(snap.Items))
	for i := range snap.Items {
		items = append(items, snapshotItemJSON(&snap.Items[i]))
	}
	return printJSON(map[string]any{
		"deck_ids": snap.DeckIDs,
		"today":    snap.Today,
		"items":    items,
	})
}
