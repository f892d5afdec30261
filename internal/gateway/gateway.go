// Package gateway drives the rewrite-until-valid loop around an LLM
// provider: generate, parse, recompute targets, enforce the token
// envelope and the contract, and issue bounded corrective rewrites.
package gateway

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"elites/internal/tokenize"
	"elites/internal/types"
	"elites/internal/validate"
)

// Provider produces a raw JSON object for a conversation request. A
// *ParseError return signals unusable model output and is recoverable by
// rewrite; any other error is a transport failure and propagates.
type Provider interface {
	Generate(ctx context.Context, req *types.ConversationRequest) (map[string]any, error)
}

// ParseError marks provider output that could not be decoded into the
// expected JSON shape.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "provider output parse error: " + e.Reason
}

// Gateway wraps a Provider with contract enforcement.
type Gateway struct {
	provider    Provider
	maxRewrites int
	log         *zap.Logger
}

func New(provider Provider, maxRewrites int, log *zap.Logger) *Gateway {
	if maxRewrites < 0 {
		maxRewrites = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{provider: provider, maxRewrites: maxRewrites, log: log}
}

// Replacement suggestions used when the model keeps repeating the same
// suggested user reply on the final attempt.
var fallbackSuggestions = []struct{ ko, en string }{
	{"네, 좋아요.", "Okay, sounds good."},
	{"조금 더 말해 주세요.", "Please tell me a bit more."},
	{"저도 그렇게 생각해요.", "I think so too."},
	{"다음에 또 이야기해요.", "Let's talk again next time."},
}

// RunTurn runs the provider up to maxRewrites+1 times until a response
// passes the envelope and the contract. Envelope, gloss, and similarity
// failures degrade gracefully on the last attempt: the response is
// returned with UnexpectedTokens populated. Parse failures and the
// remaining contract rules surface as errors.
func (g *Gateway) RunTurn(ctx context.Context, req *types.ConversationRequest) (*types.ConversationResponse, error) {
	cur := req
	for attempt := 0; ; attempt++ {
		last := attempt >= g.maxRewrites

		raw, err := g.provider.Generate(ctx, cur)
		if err != nil {
			var pe *ParseError
			if !errors.As(err, &pe) {
				return nil, err
			}
			if last {
				return nil, err
			}
			cur = rewriteRequest(cur, "invalid_json:"+pe.Reason)
			continue
		}
		resp, err := types.ParseConversationResponse(raw)
		if err != nil {
			if last {
				return nil, err
			}
			cur = rewriteRequest(cur, "invalid_json:"+err.Error())
			continue
		}

		resp.TargetsUsed = recomputeTargetsUsed(cur, resp)

		if cur.GenerationInstructions.SafeMode {
			reason, unexpected := envelopeReason(cur, resp)
			if reason != "" {
				if last {
					resp.UnexpectedTokens = unexpected
					g.log.Debug("rewrite budget exhausted",
						zap.String("reason", reason),
						zap.Strings("unexpected_tokens", unexpected))
					return resp, nil
				}
				cur = rewriteRequest(cur, reason)
				continue
			}
		}

		if v := validate.CheckResponse(cur, resp); v != nil {
			if last {
				if v.Reason == "repeated_suggested_user_reply" {
					substituteSuggestion(cur, resp)
					return resp, nil
				}
				if degradable(v.Reason) {
					return resp, nil
				}
				return nil, v
			}
			cur = rewriteRequest(cur, "contract:"+v.Reason)
			continue
		}
		return resp, nil
	}
}

// Gloss and similarity rules keep the reply usable even when violated;
// everything else in the contract is structural.
func degradable(reason string) bool {
	return strings.HasPrefix(reason, "missing_word_glosses:") ||
		reason == "lexical_similarity" ||
		reason == "semantic_similarity"
}

// envelopeReason applies the safe-mode token policy and returns the
// rewrite reason for the first breach, plus the deduplicated unexpected
// tokens for graceful degradation.
func envelopeReason(req *types.ConversationRequest, resp *types.ConversationResponse) (string, []string) {
	lc := &req.LanguageConstraints

	hasVocab := false
	for _, mt := range lc.MustTarget {
		if mt.Type == types.TargetVocab || mt.Type == types.TargetNewWord {
			hasVocab = true
			break
		}
	}
	if hasVocab && len(resp.TargetsUsed) == 0 {
		return "missing_targets", nil
	}

	assistant := validate.ValidateTokens(resp.AssistantReplyKo, lc).UnexpectedTokens
	var suggested []string
	if strings.TrimSpace(resp.SuggestedUserReplyKo) != "" {
		suggested = validate.ValidateTokens(resp.SuggestedUserReplyKo, lc).UnexpectedTokens
	}

	inAssistant := map[string]struct{}{}
	for _, t := range assistant {
		inAssistant[t] = struct{}{}
	}
	var extra []string
	for _, t := range suggested {
		if _, ok := inAssistant[t]; !ok {
			extra = append(extra, t)
		}
	}
	unique := append(append([]string(nil), assistant...), extra...)
	if len(extra) > 0 {
		return "unexpected_tokens_suggested_reply:" + strings.Join(extra, ","), unique
	}

	if len(unique) == 0 {
		if lc.RequireNewVocab {
			return "missing_new_word", nil
		}
		return "", nil
	}

	if lc.Forbidden.IntroduceNewVocab {
		return "unexpected_tokens:" + strings.Join(unique, ","), unique
	}
	tooMany := len(unique) > 1
	if lc.RequireNewVocab && len(unique) != 1 {
		tooMany = true
	}
	if tooMany {
		return "unexpected_tokens_limit:" + strings.Join(unique, ","), unique
	}
	var unglossed []string
	for _, t := range unique {
		if strings.TrimSpace(resp.WordGlosses[t]) == "" {
			unglossed = append(unglossed, t)
		}
	}
	if len(unglossed) > 0 {
		return "missing_unexpected_glosses:" + strings.Join(unglossed, ","), unique
	}
	return "", nil
}

// recomputeTargetsUsed ignores the model's claims for word targets and
// rechecks them against the reply's surface forms. Vocab and new-word
// targets need any form present; collocations need every form. Grammar
// usage cannot be detected from tokens, so the model's claim stands when
// the id is declared.
func recomputeTargetsUsed(req *types.ConversationRequest, resp *types.ConversationResponse) []string {
	tokens := tokenize.Words(resp.AssistantReplyKo)
	claimed := map[string]struct{}{}
	for _, id := range resp.TargetsUsed {
		claimed[id] = struct{}{}
	}

	formUsed := func(form string) bool {
		for _, token := range tokens {
			if tokenize.MatchesForm(token, form) {
				return true
			}
		}
		return false
	}

	var used []string
	for _, mt := range req.LanguageConstraints.MustTarget {
		switch mt.Type {
		case types.TargetGrammar:
			if _, ok := claimed[string(mt.ID)]; ok {
				used = append(used, string(mt.ID))
			}
		case types.TargetCollocation:
			all := len(mt.SurfaceForms) > 0
			for _, form := range mt.SurfaceForms {
				if !formUsed(form) {
					all = false
					break
				}
			}
			if all {
				used = append(used, string(mt.ID))
			}
		default:
			for _, form := range mt.SurfaceForms {
				if formUsed(form) {
					used = append(used, string(mt.ID))
					break
				}
			}
		}
	}
	return used
}

// substituteSuggestion replaces a stale suggested reply with the first
// canned pair differing from both the previous and the current one.
func substituteSuggestion(req *types.ConversationRequest, resp *types.ConversationResponse) {
	prev := validate.NormalizeReply(req.ConversationState.LastSuggestedUserReplyKo)
	cur := validate.NormalizeReply(resp.SuggestedUserReplyKo)
	for _, cand := range fallbackSuggestions {
		norm := validate.NormalizeReply(cand.ko)
		if norm != prev && norm != cur {
			resp.SuggestedUserReplyKo = cand.ko
			resp.SuggestedUserReplyEn = cand.en
			return
		}
	}
}

func rewriteRequest(req *types.ConversationRequest, reason string) *types.ConversationRequest {
	next := *req
	next.SystemRole = withRewriteDirective(req.SystemRole, reason, rewriteDirective(&req.LanguageConstraints))
	return &next
}

func rewriteDirective(lc *types.LanguageConstraints) string {
	switch {
	case lc.RequireNewVocab:
		return "Return ONLY a valid JSON object matching the schema. Introduce exactly one new Korean word outside the allowed list and include its gloss in word_glosses."
	case !lc.Forbidden.IntroduceNewVocab:
		return "Return ONLY a valid JSON object matching the schema. You may introduce at most one new Korean word, and every introduced word needs a word_glosses entry."
	default:
		return "Return ONLY a valid JSON object matching the schema, and do not introduce unexpected tokens."
	}
}

// A single marker keeps the prompt from growing across repeated
// rewrites; later directives replace earlier ones.
const rewriteMarker = "\n\nRewrite required:"

func withRewriteDirective(systemRole, reason, directive string) string {
	if i := strings.Index(systemRole, rewriteMarker); i >= 0 {
		systemRole = systemRole[:i]
	}
	return systemRole + rewriteMarker + " your previous output violated the contract (" + reason + "). " + directive
}
