package planreply

import (
	"context"
	"strings"
	"testing"

	"elites/internal/types"
)

func draftRequest() *Request {
	return &Request{
		SystemRole: types.PlanReplySystemRole,
		DraftKo:    "의자 잇어요",
		LanguageConstraints: types.LanguageConstraints{
			MustTarget: []types.MustTarget{{
				ID: "lexeme:의자", Type: types.TargetVocab,
				SurfaceForms: []string{"의자"}, Priority: 1,
			}},
			AllowedSupport: []string{"있어요"},
			Forbidden:      types.Forbidden{IntroduceNewVocab: true, SentenceLengthMax: 12},
		},
		GenerationInstructions: types.DefaultInstructions(),
	}
}

func TestParseResponseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{"nil", nil, "must be a JSON object"},
		{"empty options", map[string]any{"options_ko": []any{}}, "non-empty list"},
		{"blank option", map[string]any{"options_ko": []any{" "}}, "non-empty list"},
		{"too long", map[string]any{"options_ko": []any{"a", "b", "c", "d", "e", "f"}}, "too long"},
		{"bad notes", map[string]any{"options_ko": []any{"네."}, "notes_en": 3}, "notes_en"},
		{"bad unexpected", map[string]any{"options_ko": []any{"네."}, "unexpected_tokens": "x"}, "unexpected_tokens"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.raw)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestParseResponseValid(t *testing.T) {
	resp, err := ParseResponse(map[string]any{
		"options_ko": []any{"의자 있어요.", "네, 의자 있어요."},
		"notes_en":   "two options",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.OptionsKo) != 2 || resp.NotesEn == nil || *resp.NotesEn != "two options" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestRunRewritesUnexpectedTokens(t *testing.T) {
	f := NewFake(
		map[string]any{"options_ko": []any{"고양이 있어요."}},
		map[string]any{"options_ko": []any{"의자 있어요."}},
	)
	g := NewGateway(f, 2)
	resp, err := g.Run(context.Background(), draftRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.UnexpectedTokens) != 0 || resp.OptionsKo[0] != "의자 있어요." {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestRunEnvelopeExhaustionDegrades(t *testing.T) {
	f := NewFake(
		map[string]any{"options_ko": []any{"고양이 있어요."}},
		map[string]any{"options_ko": []any{"고양이 있어요."}},
	)
	g := NewGateway(f, 1)
	resp, err := g.Run(context.Background(), draftRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.UnexpectedTokens) != 1 || resp.UnexpectedTokens[0] != "고양이" {
		t.Fatalf("unexpected = %v", resp.UnexpectedTokens)
	}
}

func TestRunRejectsQuestions(t *testing.T) {
	f := NewFake(map[string]any{"options_ko": []any{"의자 있어요?"}})
	g := NewGateway(f, 0)
	_, err := g.Run(context.Background(), draftRequest())
	if err == nil || !strings.Contains(err.Error(), "options_must_not_be_questions") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunEnforcesSentenceLength(t *testing.T) {
	req := draftRequest()
	req.LanguageConstraints.Forbidden.SentenceLengthMax = 1
	f := NewFake(map[string]any{"options_ko": []any{"의자 있어요."}})
	g := NewGateway(f, 0)
	_, err := g.Run(context.Background(), req)
	if err == nil || !strings.Contains(err.Error(), "sentence_length_max") {
		t.Fatalf("err = %v", err)
	}
}

func TestFakeDefaultsAfterScript(t *testing.T) {
	req := draftRequest()
	req.LanguageConstraints.AllowedSupport = append(req.LanguageConstraints.AllowedSupport, "알겠어요")
	g := NewGateway(NewFake(), 0)
	resp, err := g.Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.OptionsKo) != 1 || resp.OptionsKo[0] != "네, 알겠어요." {
		t.Fatalf("options = %v", resp.OptionsKo)
	}
}

func TestPromptTextMentionsDraftAndEnvelope(t *testing.T) {
	text := draftRequest().PromptText()
	for _, want := range []string{
		"User draft (KO): 의자 잇어요",
		"use ONLY these Korean words: {있어요, 의자}",
		"Target words (prefer at least one if natural): {의자}",
		"New vocab allowed: false",
		"- lexeme:의자: {의자}",
		"Return ONLY the JSON object.",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("prompt missing %q:\n%s", want, text)
		}
	}
}

func TestRewriteMarkerReplaced(t *testing.T) {
	req := draftRequest()
	r1 := rewriteRequest(req, "first")
	r2 := rewriteRequest(r1, "second")
	if strings.Count(r2.SystemRole, rewriteMarker) != 1 {
		t.Fatalf("role = %q", r2.SystemRole)
	}
	if strings.Contains(r2.SystemRole, "(first)") || !strings.Contains(r2.SystemRole, "(second)") {
		t.Fatalf("role = %q", r2.SystemRole)
	}
}
