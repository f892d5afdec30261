package redaction

import (
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		level    Level
		want     string
		redacted bool
	}{
		{"none passes through", "a@b.com http://x.io 12345678", None, "a@b.com http://x.io 12345678", false},
		{"minimal email", "contact me at kim.lee@example.com please", Minimal,
			"contact me at [REDACTED_EMAIL] please", true},
		{"minimal url", "see https://example.com/page now", Minimal,
			"see [REDACTED_URL] now", true},
		{"minimal keeps digits", "call 01012345678", Minimal, "call 01012345678", false},
		{"strict digits", "call 01012345678", Strict, "call [REDACTED_NUMBER]", true},
		{"strict keeps short digits", "3개 있어요", Strict, "3개 있어요", false},
		{"clean text untouched", "의자 있어요.", Strict, "의자 있어요.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Redact(tt.text, tt.level)
			if got.Text != tt.want {
				t.Fatalf("text = %q, want %q", got.Text, tt.want)
			}
			if got.Redacted != tt.redacted {
				t.Fatalf("redacted = %v, want %v", got.Redacted, tt.redacted)
			}
		})
	}
}

func TestRedactJSON(t *testing.T) {
	in := map[string]any{
		"user":  "mail a@b.com",
		"turns": []any{"https://x.io ok", 3.0},
		"nested": map[string]any{
			"note": "fine",
		},
	}
	out, ok := RedactJSON(in, Minimal).(map[string]any)
	if !ok {
		t.Fatal("map shape lost")
	}
	if !strings.Contains(out["user"].(string), "[REDACTED_EMAIL]") {
		t.Fatalf("email survived: %v", out["user"])
	}
	turns := out["turns"].([]any)
	if !strings.Contains(turns[0].(string), "[REDACTED_URL]") {
		t.Fatalf("url survived: %v", turns[0])
	}
	if turns[1] != 3.0 {
		t.Fatal("non-string values must pass through")
	}
	if out["nested"].(map[string]any)["note"] != "fine" {
		t.Fatal("clean nested string changed")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("strict") != Strict {
		t.Fatal("strict rejected")
	}
	if ParseLevel("paranoid") != Minimal {
		t.Fatal("unknown level should fall back to minimal")
	}
}
