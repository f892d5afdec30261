package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"elites/internal/config"
	"elites/internal/deckfile"
	"elites/internal/gateway"
	"elites/internal/provider"
	"elites/internal/snapshot"
	"elites/internal/telemetry"
)

// mergedSettings layers command flags over the persisted settings file.
// Only flags the user actually set override the file.
func mergedSettings(cmd *cobra.Command) config.Settings {
	s := config.Load(settingsPath)
	flags := cmd.Flags()
	if flags.Changed("provider") {
		s.Provider, _ = flags.GetString("provider")
	}
	if flags.Changed("model") {
		s.Model, _ = flags.GetString("model")
	}
	if flags.Changed("safe-mode") {
		s.SafeMode, _ = flags.GetBool("safe-mode")
	}
	if flags.Changed("redaction") {
		s.RedactionLevel, _ = flags.GetString("redaction")
	}
	if flags.Changed("max-rewrites") {
		s.MaxRewrites, _ = flags.GetInt("max-rewrites")
	}
	if flags.Changed("lexeme-field-index") {
		s.LexemeFieldIndex, _ = flags.GetInt("lexeme-field-index")
	}
	if flags.Changed("gloss-field-index") {
		idx, _ := flags.GetInt("gloss-field-index")
		s.GlossFieldIndex = &idx
	}
	if v, err := flags.GetBool("no-gloss-field"); err == nil && v {
		s.GlossFieldIndex = nil
	}
	if flags.Changed("snapshot-max-items") {
		s.SnapshotMaxItems, _ = flags.GetInt("snapshot-max-items")
	}
	if flags.Changed("allow-new-words") {
		s.AllowNewWords, _ = flags.GetBool("allow-new-words")
	}
	return config.Sanitize(s)
}

// envelopeFlags registers the flags mergedSettings consults. Commands
// that plan or generate share this set.
func envelopeFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", "", "Provider: fake, local, or openai")
	cmd.Flags().String("model", "", "OpenAI model name")
	cmd.Flags().Bool("safe-mode", true, "Enforce the closed word envelope")
	cmd.Flags().String("redaction", "", "Redaction level: none, minimal, strict")
	cmd.Flags().Int("max-rewrites", 2, "Bounded rewrite attempts per turn")
	cmd.Flags().Int("lexeme-field-index", 0, "Note field holding the lexeme")
	cmd.Flags().Int("gloss-field-index", 1, "Note field holding the gloss")
	cmd.Flags().Bool("no-gloss-field", false, "Disable gloss extraction")
	cmd.Flags().Int("snapshot-max-items", 5000, "Snapshot size cap")
	cmd.Flags().Bool("allow-new-words", false, "Admit glossed new words into the session")
}

func loadDeck() (*deckfile.File, error) {
	return deckfile.Load(deckFilePath)
}

func openStore() (*telemetry.Store, error) {
	return telemetry.Open(telemetryPath, logger)
}

// buildSnapshot resolves deck names and builds the planner's deck view.
func buildSnapshot(deck *deckfile.File, deckNames []string, s config.Settings) (*snapshot.Snapshot, []int64, error) {
	deckIDs, err := deck.ResolveDeckIDs(deckNames)
	if err != nil {
		return nil, nil, err
	}
	snap, err := snapshot.Build(deck, deckIDs, snapshot.Options{
		LexemeFieldIndex: s.LexemeFieldIndex,
		GlossFieldIndex:  s.GlossFieldIndex,
		MaxItems:         s.SnapshotMaxItems,
	})
	if err != nil {
		return nil, nil, err
	}
	return snap, deckIDs, nil
}

// buildProvider constructs the conversation provider selected by the
// merged settings. The fake provider replays a JSON script of raw
// outputs.
func buildProvider(s config.Settings, providerScript string) (gateway.Provider, error) {
	switch s.Provider {
	case "fake":
		outputs, err := loadProviderScript(providerScript)
		if err != nil {
			return nil, err
		}
		return provider.NewFake(outputs...), nil
	case "local":
		return provider.Local{}, nil
	case "openai":
		key := config.ResolveOpenAIAPIKey(apiKeyFile)
		if key == "" {
			return nil, fmt.Errorf("OpenAI API key missing; set OPENAI_API_KEY or provide --api-key-file")
		}
		return provider.NewOpenAI(key, s.Model, logger), nil
	}
	return nil, fmt.Errorf("unknown provider: %s", s.Provider)
}

func loadProviderScript(path string) ([]provider.FakeOutput, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider script: %w", err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("--provider-script must be a JSON list of objects: %w", err)
	}
	outputs := make([]provider.FakeOutput, 0, len(raw))
	for _, r := range raw {
		outputs = append(outputs, provider.FakeOutput{Raw: r})
	}
	return outputs, nil
}

func requireOpenAIClient(s config.Settings) (*provider.OpenAI, error) {
	key := config.ResolveOpenAIAPIKey(apiKeyFile)
	if key == "" {
		return nil, fmt.Errorf("OpenAI API key missing; set OPENAI_API_KEY or provide --api-key-file")
	}
	return provider.NewOpenAI(key, s.Model, logger), nil
}

func printJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
