package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"elites/internal/session"
	"elites/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scripted conversation session",
	Long: `Runs a full practice session from a JSON turn script and prints the
transcript and wrap summary.

The script is a JSON list of turns:
  [{"text_ko": "...", "confidence": "unsure", "events": [{...}]}]

Example:
  elites run --decks Korean --script turns.json --provider local`,
	RunE: runSession,
}

func init() {
	runCmd.Flags().StringSlice("decks", nil, "Deck names to practice (required)")
	runCmd.Flags().String("script", "", "Turn script JSON path (required)")
	runCmd.Flags().String("topic", "", "Topic id folded into the session summary")
	runCmd.Flags().String("provider-script", "", "Scripted outputs for the fake provider")
	envelopeFlags(runCmd)
	_ = runCmd.MarkFlagRequired("decks")
	_ = runCmd.MarkFlagRequired("script")
}

// scriptTurn is one entry of the turn script.
type scriptTurn struct {
	TextKo     string           `json:"text_ko"`
	Confidence string           `json:"confidence"`
	Events     []map[string]any `json:"events"`
}

func loadScript(path string) ([]scriptTurn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var turns []scriptTurn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("script has no turns")
	}
	return turns, nil
}

func runSession(cmd *cobra.Command, args []string) error {
	settings := mergedSettings(cmd)
	deckNames, _ := cmd.Flags().GetStringSlice("decks")
	scriptPath, _ := cmd.Flags().GetString("script")
	topicID, _ := cmd.Flags().GetString("topic")
	providerScript, _ := cmd.Flags().GetString("provider-script")

	deck, err := loadDeck()
	if err != nil {
		return err
	}
	turns, err := loadScript(scriptPath)
	if err != nil {
		return err
	}
	prov, err := buildProvider(settings, providerScript)
	if err != nil {
		return err
	}
	deckIDs, err := deck.ResolveDeckIDs(deckNames)
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := session.Start(session.StartOptions{
		Backend:   deck,
		DeckIDs:   deckIDs,
		Settings:  settings,
		Provider:  prov,
		Telemetry: store,
		TopicID:   topicID,
		Log:       logger,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	transcript := make([]map[string]any, 0, len(turns))
	for i, turn := range turns {
		result, err := sess.RunTurn(ctx, turn.TextKo, types.ParseConfidence(turn.Confidence))
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		turnIndex := sess.State.TurnIndex
		for _, event := range turn.Events {
			if err := sess.LogEvent(event, turnIndex); err != nil {
				logger.Warn("event dropped", zap.Error(err))
			}
		}
		transcript = append(transcript, map[string]any{
			"turn_index": turnIndex,
			"user_input": result.UserInput.TextKo,
			"assistant":  result.Response,
		})
	}

	wrap, err := sess.End(map[string]any{"turns": len(turns)})
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"session_id": sess.SessionID,
		"transcript": transcript,
		"wrap":       wrap,
	})
}
