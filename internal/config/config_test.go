package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	got := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	want := Defaults()
	if got.Provider != want.Provider || got.MaxRewrites != want.MaxRewrites {
		t.Fatalf("missing file should yield defaults, got %+v", got)
	}
}

func TestLoadUnparseableFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("provider: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := Load(path)
	if got.Provider != "openai" {
		t.Fatalf("provider = %q, want openai", got.Provider)
	}
}

func TestLoadValidOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	body := "provider: fake\nmax_rewrites: 1\nallow_new_words: true\nband_cold_threshold: 0.3\nband_fragile_threshold: 0.5\nband_stretch_threshold: 0.8\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	got := Load(path)
	require.Equal(t, "fake", got.Provider)
	require.Equal(t, 1, got.MaxRewrites)
	require.True(t, got.AllowNewWords)
	require.Equal(t, 0.3, got.BandColdThreshold)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	want := Defaults()
	want.Provider = "local"
	want.MaxRewrites = 1
	want.GlossFieldIndex = nil
	require.NoError(t, Save(path, want))
	require.Equal(t, Sanitize(want), Load(path))
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		check  func(Settings) bool
	}{
		{
			"unknown provider",
			func(s *Settings) { s.Provider = "gemini" },
			func(s Settings) bool { return s.Provider == "openai" },
		},
		{
			"rewrites out of range fall to zero",
			func(s *Settings) { s.MaxRewrites = 99 },
			func(s Settings) bool { return s.MaxRewrites == 0 },
		},
		{
			"negative rewrites fall to zero",
			func(s *Settings) { s.MaxRewrites = -1 },
			func(s Settings) bool { return s.MaxRewrites == 0 },
		},
		{
			"non-increasing thresholds reset as a group",
			func(s *Settings) { s.BandColdThreshold = 0.9 },
			func(s Settings) bool {
				return s.BandColdThreshold == 0.4 && s.BandFragileThreshold == 0.6 && s.BandStretchThreshold == 0.85
			},
		},
		{
			"cadence clamp",
			func(s *Settings) { s.ForceNewWordEveryNTurns = 0 },
			func(s Settings) bool { return s.ForceNewWordEveryNTurns == 3 },
		},
		{
			"similarity bounds",
			func(s *Settings) { s.LexicalSimilarityMax = 1.5 },
			func(s Settings) bool { return s.LexicalSimilarityMax == 0.7 },
		},
		{
			"bad redaction level",
			func(s *Settings) { s.RedactionLevel = "all" },
			func(s Settings) bool { return s.RedactionLevel == "minimal" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(&s)
			if got := Sanitize(s); !tt.check(got) {
				t.Fatalf("sanitize result: %+v", got)
			}
		})
	}
}

func TestResolveOpenAIAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ELITES_OPENAI_API_KEY", "  from-env  ")
	if got := ResolveOpenAIAPIKey(""); got != "from-env" {
		t.Fatalf("env key = %q", got)
	}

	t.Setenv("ELITES_OPENAI_API_KEY", "")
	path := filepath.Join(t.TempDir(), "gpt-api.txt")
	if err := os.WriteFile(path, []byte("from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := ResolveOpenAIAPIKey(path); got != "from-file" {
		t.Fatalf("file key = %q", got)
	}

	if got := ResolveOpenAIAPIKey(filepath.Join(t.TempDir(), "absent.txt")); got != "" {
		t.Fatalf("missing key should be empty, got %q", got)
	}
}
