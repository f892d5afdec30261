package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"elites/internal/config"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect or change persisted engine settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the effective settings as YAML",
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update settings fields and persist them",
	RunE:  runSettingsSet,
}

func init() {
	settingsSetCmd.Flags().String("provider", "", "Provider: fake, local, or openai")
	settingsSetCmd.Flags().String("model", "", "OpenAI model name")
	settingsSetCmd.Flags().Bool("safe-mode", true, "Enforce the closed word envelope")
	settingsSetCmd.Flags().String("redaction", "", "Redaction level: none, minimal, strict")
	settingsSetCmd.Flags().Int("max-rewrites", 2, "Bounded rewrite attempts per turn")
	settingsSetCmd.Flags().Int("lexeme-field-index", 0, "Note field holding the lexeme")
	settingsSetCmd.Flags().Int("gloss-field-index", 1, "Note field holding the gloss")
	settingsSetCmd.Flags().Bool("no-gloss-field", false, "Disable gloss extraction")
	settingsSetCmd.Flags().Int("snapshot-max-items", 5000, "Snapshot size cap")
	settingsSetCmd.Flags().Bool("allow-new-words", false, "Admit glossed new words into sessions")
	settingsSetCmd.Flags().Int("max-new-words-per-session", 5, "New-word budget per session")

	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

func printSettings(s config.Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	return printSettings(config.Load(settingsPath))
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
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
	if v, _ := flags.GetBool("no-gloss-field"); v {
		s.GlossFieldIndex = nil
	}
	if flags.Changed("snapshot-max-items") {
		s.SnapshotMaxItems, _ = flags.GetInt("snapshot-max-items")
	}
	if flags.Changed("allow-new-words") {
		s.AllowNewWords, _ = flags.GetBool("allow-new-words")
	}
	if flags.Changed("max-new-words-per-session") {
		s.MaxNewWordsPerSession, _ = flags.GetInt("max-new-words-per-session")
	}
	s = config.Sanitize(s)
	if err := config.Save(settingsPath, s); err != nil {
		return err
	}
	return printSettings(s)
}
