// Package config loads engine settings from YAML. Every invalid field falls
// back to its default silently; a missing or unreadable file yields the
// defaults wholesale, so a session can always start.
package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings is the full tunable surface of the engine.
type Settings struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	SafeMode       bool   `yaml:"safe_mode"`
	RedactionLevel string `yaml:"redaction_level"`
	MaxRewrites    int    `yaml:"max_rewrites"`

	LexemeFieldIndex int  `yaml:"lexeme_field_index"`
	GlossFieldIndex  *int `yaml:"gloss_field_index"`
	SnapshotMaxItems int  `yaml:"snapshot_max_items"`

	BandColdThreshold    float64 `yaml:"band_cold_threshold"`
	BandFragileThreshold float64 `yaml:"band_fragile_threshold"`
	BandStretchThreshold float64 `yaml:"band_stretch_threshold"`

	AllowNewWords                 bool `yaml:"allow_new_words"`
	MaxNewWordsPerSession         int  `yaml:"max_new_words_per_session"`
	ForceNewWordEveryNTurns       int  `yaml:"force_new_word_every_n_turns"`
	TreatUnseenDeckWordsAsSupport bool `yaml:"treat_unseen_deck_words_as_support"`

	LexicalSimilarityMax  float64 `yaml:"lexical_similarity_max"`
	SemanticSimilarityMax float64 `yaml:"semantic_similarity_max"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	glossIdx := 1
	return Settings{
		Provider:                "openai",
		Model:                   "gpt-4o-mini",
		SafeMode:                true,
		RedactionLevel:          "minimal",
		MaxRewrites:             2,
		LexemeFieldIndex:        0,
		GlossFieldIndex:         &glossIdx,
		SnapshotMaxItems:        5000,
		BandColdThreshold:       0.4,
		BandFragileThreshold:    0.6,
		BandStretchThreshold:    0.85,
		AllowNewWords:           false,
		MaxNewWordsPerSession:   5,
		ForceNewWordEveryNTurns: 3,
		LexicalSimilarityMax:    0.7,
		SemanticSimilarityMax:   0.6,
	}
}

// Load reads settings from path. A missing file or parse failure yields the
// defaults; individual out-of-range fields are reset per field.
func Load(path string) Settings {
	defaults := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return defaults
	}
	loaded := defaults
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return defaults
	}
	return Sanitize(loaded)
}

// Save writes settings as YAML.
func Save(path string, s Settings) error {
	data, err := yaml.Marshal(Sanitize(s))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Sanitize replaces every invalid field with its default.
func Sanitize(s Settings) Settings {
	d := Defaults()
	switch s.Provider {
	case "openai", "local", "fake":
	default:
		s.Provider = d.Provider
	}
	if strings.TrimSpace(s.Model) == "" {
		s.Model = d.Model
	}
	switch s.RedactionLevel {
	case "none", "minimal", "strict":
	default:
		s.RedactionLevel = d.RedactionLevel
	}
	if s.MaxRewrites < 0 || s.MaxRewrites > 10 {
		s.MaxRewrites = 0
	}
	if s.LexemeFieldIndex < 0 || s.LexemeFieldIndex > 50 {
		s.LexemeFieldIndex = d.LexemeFieldIndex
	}
	if s.GlossFieldIndex != nil && (*s.GlossFieldIndex < 0 || *s.GlossFieldIndex > 50) {
		s.GlossFieldIndex = d.GlossFieldIndex
	}
	if s.SnapshotMaxItems <= 0 || s.SnapshotMaxItems > 50000 {
		s.SnapshotMaxItems = d.SnapshotMaxItems
	}
	if s.BandColdThreshold <= 0 || s.BandColdThreshold >= 1 {
		s.BandColdThreshold = d.BandColdThreshold
	}
	if s.BandFragileThreshold <= 0 || s.BandFragileThreshold >= 1 {
		s.BandFragileThreshold = d.BandFragileThreshold
	}
	if s.BandStretchThreshold <= 0 || s.BandStretchThreshold >= 1 {
		s.BandStretchThreshold = d.BandStretchThreshold
	}
	if !(s.BandColdThreshold < s.BandFragileThreshold && s.BandFragileThreshold < s.BandStretchThreshold) {
		s.BandColdThreshold = d.BandColdThreshold
		s.BandFragileThreshold = d.BandFragileThreshold
		s.BandStretchThreshold = d.BandStretchThreshold
	}
	if s.MaxNewWordsPerSession < 0 || s.MaxNewWordsPerSession > 50 {
		s.MaxNewWordsPerSession = d.MaxNewWordsPerSession
	}
	if s.ForceNewWordEveryNTurns < 1 || s.ForceNewWordEveryNTurns > 10 {
		s.ForceNewWordEveryNTurns = d.ForceNewWordEveryNTurns
	}
	if s.LexicalSimilarityMax <= 0 || s.LexicalSimilarityMax >= 1 {
		s.LexicalSimilarityMax = d.LexicalSimilarityMax
	}
	if s.SemanticSimilarityMax <= 0 || s.SemanticSimilarityMax >= 1 {
		s.SemanticSimilarityMax = d.SemanticSimilarityMax
	}
	return s
}
