package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"elites/internal/types"
)

// scripted returns each queued outcome in order and records the system
// role of every request it sees.
type scripted struct {
	outputs []any // map[string]any, or error
	roles   []string
}

func (s *scripted) Generate(_ context.Context, req *types.ConversationRequest) (map[string]any, error) {
	s.roles = append(s.roles, req.SystemRole)
	if len(s.outputs) == 0 {
		return nil, errors.New("script exhausted")
	}
	next := s.outputs[0]
	s.outputs = s.outputs[1:]
	if err, ok := next.(error); ok {
		return nil, err
	}
	return next.(map[string]any), nil
}

func chairRequest() *types.ConversationRequest {
	return &types.ConversationRequest{
		SystemRole: "You are a tutor.",
		UserInput:  types.UserInput{TextKo: "응"},
		LanguageConstraints: types.LanguageConstraints{
			MustTarget: []types.MustTarget{{
				ID: "lexeme:의자", Type: types.TargetVocab,
				SurfaceForms: []string{"의자"}, Priority: 1,
			}},
			AllowedSupport: []string{"있어요"},
			Forbidden:      types.Forbidden{IntroduceNewVocab: true, SentenceLengthMax: 20},
		},
		GenerationInstructions: types.DefaultInstructions(),
	}
}

func chairOutput(reply string) map[string]any {
	return map[string]any{
		"assistant_reply_ko": reply,
		"word_glosses":       map[string]any{"의자": "chair", "있어요": "there is"},
		"micro_feedback":     map[string]any{"type": "praise", "content_en": "Nice."},
		"suggested_user_reply_ko": "네, 의자 있어요.",
		"suggested_user_reply_en": "Yes, there is a chair.",
		"targets_used":            []any{"lexeme:의자"},
	}
}

func TestRunTurnRewritesUnexpectedToken(t *testing.T) {
	p := &scripted{outputs: []any{chairOutput("고양이 있어요."), chairOutput("의자 있어요.")}}
	g := New(p, 2, nil)

	resp, err := g.RunTurn(context.Background(), chairRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.UnexpectedTokens) != 0 {
		t.Fatalf("unexpected tokens: %v", resp.UnexpectedTokens)
	}
	if len(p.roles) != 2 {
		t.Fatalf("calls = %d, want 2", len(p.roles))
	}
	if !strings.Contains(p.roles[1], "Rewrite required:") {
		t.Fatalf("second request lacks rewrite marker: %q", p.roles[1])
	}
	if got := resp.TargetsUsed; len(got) != 1 || got[0] != "lexeme:의자" {
		t.Fatalf("targets_used = %v", got)
	}
}

func TestRunTurnSentenceLengthHardError(t *testing.T) {
	req := chairRequest()
	req.LanguageConstraints.Forbidden.SentenceLengthMax = 2
	p := &scripted{outputs: []any{chairOutput("의자 있어요. 의자 있어요.")}}
	g := New(p, 0, nil)

	_, err := g.RunTurn(context.Background(), req)
	if err == nil || !strings.Contains(err.Error(), "sentence_length_max") {
		t.Fatalf("err = %v, want sentence_length_max", err)
	}
}

func TestRunTurnMissingGlossRewriteReason(t *testing.T) {
	bad := chairOutput("의자 있어요.")
	bad["word_glosses"] = map[string]any{"있어요": "there is"}
	p := &scripted{outputs: []any{bad, chairOutput("의자 있어요.")}}
	g := New(p, 2, nil)

	if _, err := g.RunTurn(context.Background(), chairRequest()); err != nil {
		t.Fatal(err)
	}
	if len(p.roles) != 2 {
		t.Fatalf("calls = %d, want 2", len(p.roles))
	}
	if !strings.Contains(p.roles[1], "contract:missing_word_glosses:의자") {
		t.Fatalf("rewrite reason missing from role: %q", p.roles[1])
	}
}

func TestRunTurnParseErrorRecovery(t *testing.T) {
	p := &scripted{outputs: []any{
		&ParseError{Reason: "no json object found"},
		chairOutput("의자 있어요."),
	}}
	g := New(p, 1, nil)

	if _, err := g.RunTurn(context.Background(), chairRequest()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p.roles[1], "invalid_json:no json object found") {
		t.Fatalf("role = %q", p.roles[1])
	}

	// Exhausted budget propagates the parse error.
	p = &scripted{outputs: []any{&ParseError{Reason: "bad"}}}
	g = New(p, 0, nil)
	_, err := g.RunTurn(context.Background(), chairRequest())
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ParseError", err)
	}
}

func TestRunTurnTransportErrorPropagates(t *testing.T) {
	sentinel := errors.New("connection refused")
	p := &scripted{outputs: []any{sentinel}}
	g := New(p, 3, nil)

	_, err := g.RunTurn(context.Background(), chairRequest())
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v", err)
	}
	if len(p.roles) != 1 {
		t.Fatalf("transport errors must not be rewritten, calls = %d", len(p.roles))
	}
}

func TestRunTurnEnvelopeExhaustionDegrades(t *testing.T) {
	p := &scripted{outputs: []any{
		chairOutput("의자 고양이 있어요."),
		chairOutput("의자 고양이 있어요."),
	}}
	g := New(p, 1, nil)

	resp, err := g.RunTurn(context.Background(), chairRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.UnexpectedTokens) != 1 || resp.UnexpectedTokens[0] != "고양이" {
		t.Fatalf("unexpected = %v", resp.UnexpectedTokens)
	}
}

func TestRunTurnRequiresNewWord(t *testing.T) {
	req := chairRequest()
	req.LanguageConstraints.Forbidden.IntroduceNewVocab = false
	req.LanguageConstraints.RequireNewVocab = true

	clean := chairOutput("의자 있어요.")
	withNew := chairOutput("의자 고양이 있어요.")
	withNew["word_glosses"] = map[string]any{"의자": "chair", "있어요": "there is", "고양이": "cat"}
	p := &scripted{outputs: []any{clean, withNew}}
	g := New(p, 2, nil)

	resp, err := g.RunTurn(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p.roles[1], "missing_new_word") {
		t.Fatalf("role = %q", p.roles[1])
	}
	if len(resp.UnexpectedTokens) != 0 {
		t.Fatalf("unexpected = %v", resp.UnexpectedTokens)
	}
}

func TestRunTurnUnglossedNewWordRewrite(t *testing.T) {
	req := chairRequest()
	req.LanguageConstraints.Forbidden.IntroduceNewVocab = false

	bare := chairOutput("의자 고양이 있어요.")
	glossed := chairOutput("의자 고양이 있어요.")
	glossed["word_glosses"] = map[string]any{"의자": "chair", "있어요": "there is", "고양이": "cat"}
	p := &scripted{outputs: []any{bare, glossed}}
	g := New(p, 2, nil)

	if _, err := g.RunTurn(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p.roles[1], "missing_unexpected_glosses:고양이") {
		t.Fatalf("role = %q", p.roles[1])
	}
}

func TestRunTurnRepeatedSuggestionFallback(t *testing.T) {
	req := chairRequest()
	req.ConversationState.LastSuggestedUserReplyKo = "네, 의자 있어요."
	p := &scripted{outputs: []any{
		chairOutput("의자 있어요."),
		chairOutput("의자 있어요."),
		chairOutput("의자 있어요."),
	}}
	g := New(p, 2, nil)

	resp, err := g.RunTurn(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.SuggestedUserReplyKo != fallbackSuggestions[0].ko {
		t.Fatalf("suggested = %q", resp.SuggestedUserReplyKo)
	}
	if resp.SuggestedUserReplyEn != fallbackSuggestions[0].en {
		t.Fatalf("suggested en = %q", resp.SuggestedUserReplyEn)
	}
}

func TestRewriteMarkerDoesNotAccumulate(t *testing.T) {
	role := withRewriteDirective("base", "a", "Fix it.")
	role = withRewriteDirective(role, "b", "Fix it.")
	if strings.Count(role, rewriteMarker) != 1 {
		t.Fatalf("role = %q", role)
	}
	if !strings.HasPrefix(role, "base") || !strings.Contains(role, "(b)") {
		t.Fatalf("role = %q", role)
	}
	if strings.Contains(role, "(a)") {
		t.Fatalf("old reason retained: %q", role)
	}
}

func TestRecomputeTargetsCollocation(t *testing.T) {
	req := chairRequest()
	req.LanguageConstraints.MustTarget = append(req.LanguageConstraints.MustTarget, types.MustTarget{
		ID: "colloc:밥을 먹다", Type: types.TargetCollocation,
		SurfaceForms: []string{"밥을", "먹어요"}, Priority: 0.5,
	})
	resp := &types.ConversationResponse{AssistantReplyKo: "의자 밥을 먹어요", TargetsUsed: []string{"colloc:밥을 먹다"}}
	got := recomputeTargetsUsed(req, resp)
	want := map[string]bool{"lexeme:의자": true, "colloc:밥을 먹다": true}
	if len(got) != 2 || !want[got[0]] || !want[got[1]] {
		t.Fatalf("targets = %v", got)
	}

	resp = &types.ConversationResponse{AssistantReplyKo: "의자 밥을 있어요"}
	got = recomputeTargetsUsed(req, resp)
	if len(got) != 1 || got[0] != "lexeme:의자" {
		t.Fatalf("partial collocation counted: %v", got)
	}
}
