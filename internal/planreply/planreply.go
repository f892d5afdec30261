// Package planreply turns a learner's rough Korean draft into a few
// natural reply options, kept inside the session's word envelope.
package planreply

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"elites/internal/gateway"
	"elites/internal/types"
	"elites/internal/validate"
)

type Request struct {
	SystemRole             string
	ConversationState      types.ConversationState
	DraftKo                string
	LanguageConstraints    types.LanguageConstraints
	GenerationInstructions types.GenerationInstructions
}

// PromptText renders the user message for one plan-reply call.
func (r *Request) PromptText() string {
	lc := &r.LanguageConstraints

	var targetWords []string
	for _, t := range lc.MustTarget {
		if t.Type == types.TargetVocab {
			targetWords = append(targetWords, t.SurfaceForms...)
		}
	}
	allowed := dedupe(append(append(append(
		append([]string(nil), lc.AllowedSupport...),
		lc.AllowedStretch...),
		lc.ReinforcedWords...),
		targetWords...))

	var targetLines []string
	for _, t := range lc.MustTarget {
		targetLines = append(targetLines,
			fmt.Sprintf("- %s: {%s}", t.ID, strings.Join(t.SurfaceForms, ", ")))
	}
	targetsBlock := "- (none)"
	if len(targetLines) > 0 {
		targetsBlock = strings.Join(targetLines, "\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Last assistant (KO): %s\n", strings.TrimSpace(r.ConversationState.LastAssistantTurnKo))
	fmt.Fprintf(&b, "User draft (KO): %s\n\n", strings.TrimSpace(r.DraftKo))
	b.WriteString("Task: Rewrite the user draft into a natural Korean reply that fits the conversation.\n")
	b.WriteString("- Preserve the user's intended meaning as much as possible.\n")
	b.WriteString("- If the draft is already good, return improved/natural variants.\n")
	b.WriteString("- Keep replies short and natural, and do NOT ask a question.\n\n")
	fmt.Fprintf(&b, "For content words, use ONLY these Korean words: {%s}\n", strings.Join(allowed, ", "))
	fmt.Fprintf(&b, "Target words (prefer at least one if natural): {%s}\n", strings.Join(dedupe(targetWords), ", "))
	fmt.Fprintf(&b, "Reinforced words (use if they fit naturally): {%s}\n", strings.Join(dedupe(lc.ReinforcedWords), ", "))
	fmt.Fprintf(&b, "Stretch words: {%s}\n", strings.Join(dedupe(lc.AllowedStretch), ", "))
	fmt.Fprintf(&b, "Support words: {%s}\n", strings.Join(dedupe(lc.AllowedSupport), ", "))
	fmt.Fprintf(&b, "New vocab allowed: %t\n", !lc.Forbidden.IntroduceNewVocab)
	fmt.Fprintf(&b, "Max tokens (approx): %d\n\n", lc.Forbidden.SentenceLengthMax)
	b.WriteString("Targets (use IDs in notes if relevant):\n")
	b.WriteString(targetsBlock)
	b.WriteString("\n\nReturn ONLY the JSON object.")
	return b.String()
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

type Response struct {
	OptionsKo        []string
	NotesEn          *string
	UnexpectedTokens []string
}

// ParseResponse validates the provider's raw JSON object.
func ParseResponse(raw map[string]any) (*Response, error) {
	if raw == nil {
		return nil, fmt.Errorf("plan-reply response must be a JSON object")
	}
	optsRaw, ok := raw["options_ko"].([]any)
	if !ok || len(optsRaw) == 0 {
		return nil, fmt.Errorf("options_ko must be a non-empty list of strings")
	}
	if len(optsRaw) > 5 {
		return nil, fmt.Errorf("options_ko too long")
	}
	resp := &Response{}
	for _, v := range optsRaw {
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("options_ko must be a non-empty list of strings")
		}
		resp.OptionsKo = append(resp.OptionsKo, s)
	}
	if v, present := raw["notes_en"]; present && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("notes_en must be a string or null")
		}
		resp.NotesEn = &s
	}
	if v, present := raw["unexpected_tokens"]; present && v != nil {
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("unexpected_tokens must be a list of strings")
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected_tokens must be a list of strings")
			}
			resp.UnexpectedTokens = append(resp.UnexpectedTokens, s)
		}
	}
	return resp, nil
}

type Provider interface {
	Generate(ctx context.Context, req *Request) (map[string]any, error)
}

type Gateway struct {
	provider    Provider
	maxRewrites int
}

func NewGateway(p Provider, maxRewrites int) *Gateway {
	if maxRewrites < 0 {
		maxRewrites = 0
	}
	return &Gateway{provider: p, maxRewrites: maxRewrites}
}

// Run drives the provider with the same bounded rewrite discipline as the
// turn gateway: envelope breaches degrade gracefully on the final
// attempt, question and length breaches surface as errors.
func (g *Gateway) Run(ctx context.Context, req *Request) (*Response, error) {
	cur := req
	for attempt := 0; ; attempt++ {
		last := attempt >= g.maxRewrites

		raw, err := g.provider.Generate(ctx, cur)
		if err != nil {
			var pe *gateway.ParseError
			if !errors.As(err, &pe) {
				return nil, err
			}
			if last {
				return nil, err
			}
			cur = rewriteRequest(cur, "invalid_json:"+pe.Reason)
			continue
		}
		resp, err := ParseResponse(raw)
		if err != nil {
			if last {
				return nil, err
			}
			cur = rewriteRequest(cur, "invalid_json:"+err.Error())
			continue
		}

		if cur.GenerationInstructions.SafeMode {
			var unexpected []string
			seen := map[string]struct{}{}
			for _, opt := range resp.OptionsKo {
				for _, token := range validate.ValidateTokens(opt, &cur.LanguageConstraints).UnexpectedTokens {
					if _, dup := seen[token]; dup {
						continue
					}
					seen[token] = struct{}{}
					unexpected = append(unexpected, token)
				}
			}
			if len(unexpected) > 0 {
				if last {
					resp.UnexpectedTokens = unexpected
					return resp, nil
				}
				cur = rewriteRequest(cur, "unexpected_tokens:"+strings.Join(unexpected, ","))
				continue
			}
		}

		if hasQuestion(resp.OptionsKo) {
			if last {
				return nil, fmt.Errorf("contract violation: options_must_not_be_questions")
			}
			cur = rewriteRequest(cur, "options_must_not_be_questions")
			continue
		}

		if maxTokens := cur.LanguageConstraints.Forbidden.SentenceLengthMax; maxTokens > 0 {
			if tooLong(resp.OptionsKo, maxTokens) {
				if last {
					return nil, fmt.Errorf("contract violation: sentence_length_max")
				}
				cur = rewriteRequest(cur, "sentence_length_max")
				continue
			}
		}
		return resp, nil
	}
}

func hasQuestion(options []string) bool {
	for _, opt := range options {
		if strings.Contains(opt, "?") {
			return true
		}
	}
	return false
}

func tooLong(options []string, maxTokens int) bool {
	for _, opt := range options {
		if len(strings.Fields(opt)) > maxTokens {
			return true
		}
	}
	return false
}

const rewriteMarker = "\n\nRewrite required:"

func rewriteRequest(req *Request, reason string) *Request {
	next := *req
	role := req.SystemRole
	if i := strings.Index(role, rewriteMarker); i >= 0 {
		role = role[:i]
	}
	next.SystemRole = role + rewriteMarker +
		" your previous output violated the contract (" + reason + "). " +
		"Return ONLY a valid JSON object with keys: options_ko (list[str]), notes_en (string|null), unexpected_tokens (list[str]). " +
		"Do not introduce unexpected tokens."
	return &next
}
