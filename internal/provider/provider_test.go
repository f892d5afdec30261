package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"elites/internal/gateway"
	"elites/internal/types"
	"elites/internal/validate"
)

func chairRequest() *types.ConversationRequest {
	return &types.ConversationRequest{
		SystemRole: types.SystemRole,
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

func TestLocalProviderPassesGateway(t *testing.T) {
	g := gateway.New(Local{}, 2, nil)
	resp, err := g.RunTurn(context.Background(), chairRequest())
	if err != nil {
		t.Fatal(err)
	}
	if resp.AssistantReplyKo != "의자 있어요." {
		t.Fatalf("reply = %q", resp.AssistantReplyKo)
	}
	if len(resp.UnexpectedTokens) != 0 {
		t.Fatalf("unexpected = %v", resp.UnexpectedTokens)
	}
	if len(resp.TargetsUsed) != 1 || resp.TargetsUsed[0] != "lexeme:의자" {
		t.Fatalf("targets = %v", resp.TargetsUsed)
	}
	if resp.WordGlosses["의자"] == "" || resp.WordGlosses["있어요"] == "" {
		t.Fatalf("glosses = %v", resp.WordGlosses)
	}
}

func TestLocalProviderIntroducesNewWord(t *testing.T) {
	req := chairRequest()
	req.LanguageConstraints.Forbidden.IntroduceNewVocab = false
	req.LanguageConstraints.RequireNewVocab = true

	raw, err := Local{}.Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	reply := raw["assistant_reply_ko"].(string)
	if !strings.Contains(reply, "고양이") {
		t.Fatalf("reply = %q", reply)
	}
	glosses := raw["word_glosses"].(map[string]any)
	if glosses["고양이"] != "cat" {
		t.Fatalf("glosses = %v", glosses)
	}

	// The same request must pass the gateway in safe mode.
	g := gateway.New(Local{}, 2, nil)
	resp, err := g.RunTurn(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.UnexpectedTokens) != 0 {
		t.Fatalf("unexpected = %v", resp.UnexpectedTokens)
	}
}

func TestLocalProviderAvoidsRepeatedSuggestion(t *testing.T) {
	req := chairRequest()
	first, _ := Local{}.Generate(context.Background(), req)
	req.ConversationState.LastSuggestedUserReplyKo = first["suggested_user_reply_ko"].(string)
	second, _ := Local{}.Generate(context.Background(), req)

	a := validate.NormalizeReply(first["suggested_user_reply_ko"].(string))
	b := validate.NormalizeReply(second["suggested_user_reply_ko"].(string))
	if a == b {
		t.Fatalf("suggestion repeated: %q", a)
	}
}

func TestFakeScriptOrderAndExhaustion(t *testing.T) {
	f := NewFake(
		FakeOutput{Raw: map[string]any{"assistant_reply_ko": "하나."}},
		FakeOutput{Err: fmt.Errorf("boom")},
	)
	raw, err := f.Generate(context.Background(), chairRequest())
	if err != nil || raw["assistant_reply_ko"] != "하나." {
		t.Fatalf("first = %v, %v", raw, err)
	}
	if _, err := f.Generate(context.Background(), chairRequest()); err == nil || err.Error() != "boom" {
		t.Fatalf("second err = %v", err)
	}
	if _, err := f.Generate(context.Background(), chairRequest()); err == nil ||
		!strings.Contains(err.Error(), "script exhausted") {
		t.Fatalf("third err = %v", err)
	}
	if len(f.Calls) != 3 {
		t.Fatalf("calls = %d", len(f.Calls))
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 409, 425, 429, 500, 502, 503, 504} {
		if !RetryableStatus(code) {
			t.Errorf("status %d should be retryable", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if RetryableStatus(code) {
			t.Errorf("status %d should not be retryable", code)
		}
	}
}

func TestBackoffBounds(t *testing.T) {
	p := DefaultRetryPolicy()
	for retry := 0; retry < 8; retry++ {
		d := p.Backoff(retry)
		if d <= 0 || d > p.Cap {
			t.Fatalf("backoff(%d) = %v", retry, d)
		}
	}
	// Past the doubling range the delay pins to the cap's jitter window.
	if d := p.Backoff(30); d < p.Cap/2 || d > p.Cap {
		t.Fatalf("capped backoff = %v", d)
	}
}

func testClient(url string) *OpenAI {
	c := NewOpenAI("test-key", "test-model", nil)
	c.APIURL = url
	c.Retry = RetryPolicy{MaxRetries: 2, Base: time.Millisecond, Cap: 4 * time.Millisecond}
	return c
}

func apiBody(outputText string) string {
	b, _ := json.Marshal(map[string]any{
		"status":      "completed",
		"output_text": outputText,
	})
	return string(b)
}

func TestOpenAIRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, apiBody(`{"assistant_reply_ko":"의자 있어요."}`))
	}))
	defer srv.Close()

	raw, err := testClient(srv.URL).Generate(context.Background(), chairRequest())
	if err != nil {
		t.Fatal(err)
	}
	if raw["assistant_reply_ko"] != "의자 있어요." {
		t.Fatalf("raw = %v", raw)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestOpenAIDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Generate(context.Background(), chairRequest())
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestOpenAIIncompleteRetryRaisesBudget(t *testing.T) {
	var budgets []float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		budgets = append(budgets, payload["max_output_tokens"].(float64))
		if len(budgets) == 1 {
			fmt.Fprint(w, `{"status":"incomplete","incomplete_details":{"reason":"max_output_tokens"}}`)
			return
		}
		fmt.Fprint(w, apiBody(`{"assistant_reply_ko":"네."}`))
	}))
	defer srv.Close()

	raw, err := testClient(srv.URL).Generate(context.Background(), chairRequest())
	if err != nil {
		t.Fatal(err)
	}
	if raw["assistant_reply_ko"] != "네." {
		t.Fatalf("raw = %v", raw)
	}
	if len(budgets) != 2 || budgets[1] != budgets[0]*4 {
		t.Fatalf("budgets = %v", budgets)
	}
}

func TestOpenAIParseErrorOnBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, apiBody("not json at all"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Generate(context.Background(), chairRequest())
	var pe *gateway.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ParseError", err)
	}
}

func TestOpenAIOutputTextFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"completed","output":[{"content":[
			{"type":"reasoning","text":"..."},
			{"type":"output_text","text":"{\"assistant_reply_ko\":\"네.\"}"}]}]}`)
	}))
	defer srv.Close()

	raw, err := testClient(srv.URL).Generate(context.Background(), chairRequest())
	if err != nil {
		t.Fatal(err)
	}
	if raw["assistant_reply_ko"] != "네." {
		t.Fatalf("raw = %v", raw)
	}
}
