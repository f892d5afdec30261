package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"elites/internal/config"
	"elites/internal/translate"
	"elites/internal/types"
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate Korean text to English",
	Long: `Translates the assistant's Korean through the configured provider.
The local provider returns an offline placeholder.`,
	RunE: runTranslate,
}

func init() {
	translateCmd.Flags().String("text-ko", "", "Korean text to translate (required)")
	translateCmd.Flags().String("provider", "", "Provider: local or openai")
	translateCmd.Flags().String("model", "", "OpenAI model name")
	_ = translateCmd.MarkFlagRequired("text-ko")
}

func runTranslate(cmd *cobra.Command, args []string) error {
	textKo, _ := cmd.Flags().GetString("text-ko")
	settings := config.Load(settingsPath)
	if cmd.Flags().Changed("provider") {
		settings.Provider, _ = cmd.Flags().GetString("provider")
	}
	if cmd.Flags().Changed("model") {
		settings.Model, _ = cmd.Flags().GetString("model")
	}

	var prov translate.Provider
	switch settings.Provider {
	case "openai":
		client, err := requireOpenAIClient(settings)
		if err != nil {
			return err
		}
		prov = &translate.OpenAIProvider{Client: client}
	case "local", "fake":
		prov = &translate.LocalProvider{}
	default:
		return fmt.Errorf("unknown provider: %s", settings.Provider)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	gw := &translate.Gateway{Provider: prov}
	resp, err := gw.Run(ctx, &translate.Request{
		SystemRole: types.TranslateSystemRole,
		TextKo:     textKo,
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"translation_en": resp.TranslationEn})
}
