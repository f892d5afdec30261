package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"elites/internal/planner"
	"elites/internal/planreply"
	"elites/internal/types"
)

var planReplyCmd = &cobra.Command{
	Use:   "plan-reply",
	Short: "Generate 2-3 Korean reply options inside the word envelope",
	Long: `Plans a turn against the deck to derive the current word envelope,
then asks the provider for natural Korean reply options.

Give the learner's rough Korean with --draft-ko, or their English
intent with --intent-en.`,
	RunE: runPlanReply,
}

func init() {
	planReplyCmd.Flags().StringSlice("decks", nil, "Deck names to plan against (required)")
	planReplyCmd.Flags().String("draft-ko", "", "Learner's rough Korean draft")
	planReplyCmd.Flags().String("intent-en", "", "Learner's intent in English")
	planReplyCmd.Flags().String("provider-script", "", "Scripted outputs for the fake provider")
	envelopeFlags(planReplyCmd)
	_ = planReplyCmd.MarkFlagRequired("decks")
}

func runPlanReply(cmd *cobra.Command, args []string) error {
	settings := mergedSettings(cmd)
	deckNames, _ := cmd.Flags().GetStringSlice("decks")
	draftKo, _ := cmd.Flags().GetString("draft-ko")
	intentEn, _ := cmd.Flags().GetString("intent-en")
	providerScript, _ := cmd.Flags().GetString("provider-script")
	if draftKo == "" && intentEn == "" {
		return fmt.Errorf("one of --draft-ko or --intent-en is required")
	}
	draft := draftKo
	if draft == "" {
		draft = intentEn
	}

	deck, err := loadDeck()
	if err != nil {
		return err
	}
	snap, _, err := buildSnapshot(deck, deckNames, settings)
	if err != nil {
		return err
	}
	p := planner.New(snap, settings)
	state := p.InitialState("Conversation practice", "")
	convState, constraints, instructions := p.PlanTurn(state, types.UserInput{}, planner.PlanOptions{})
	instructions.SafeMode = settings.SafeMode

	var prov planreply.Provider
	switch settings.Provider {
	case "fake", "local":
		scripted, err := loadPlanReplyScript(providerScript)
		if err != nil {
			return err
		}
		prov = planreply.NewFake(scripted...)
	case "openai":
		client, err := requireOpenAIClient(settings)
		if err != nil {
			return err
		}
		prov = &planreply.OpenAIProvider{Client: client}
	default:
		return fmt.Errorf("unknown provider: %s", settings.Provider)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	gw := planreply.NewGateway(prov, settings.MaxRewrites)
	resp, err := gw.Run(ctx, &planreply.Request{
		SystemRole:             types.PlanReplySystemRole,
		ConversationState:      convState,
		DraftKo:                draft,
		LanguageConstraints:    constraints,
		GenerationInstructions: instructions,
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"options_ko":        resp.OptionsKo,
		"notes_en":          resp.NotesEn,
		"unexpected_tokens": resp.UnexpectedTokens,
	})
}

func loadPlanReplyScript(path string) ([]map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider script: %w", err)
	}
	var scripted []map[string]any
	if err := json.Unmarshal(data, &scripted); err != nil {
		return nil, fmt.Errorf("--provider-script must be a JSON list of objects: %w", err)
	}
	return scripted, nil
}
