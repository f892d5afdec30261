package validate

import (
	"sort"
	"strings"

	"elites/internal/tokenize"
	"elites/internal/types"
)

// Violation names the first broken contract rule.
type Violation struct {
	Reason string
}

func (v *Violation) Error() string {
	return "contract violation: " + v.Reason
}

// NormalizeReply trims trailing sentence punctuation (ASCII and full-width)
// and collapses whitespace, so "네" and "네." compare equal in repeat
// checks.
func NormalizeReply(text string) string {
	t := strings.TrimSpace(text)
	t = strings.TrimRight(t, ".!?。！？")
	return strings.Join(strings.Fields(t), " ")
}

// CheckResponse validates a parsed response against the request's contract.
// Rules are checked in a fixed order; the first violation is returned, nil
// when the response is clean.
func CheckResponse(req *types.ConversationRequest, resp *types.ConversationResponse) *Violation {
	lc := &req.LanguageConstraints
	inst := &req.GenerationInstructions

	if inst.ProvideMicroFeedback {
		if resp.MicroFeedback == nil || strings.TrimSpace(resp.MicroFeedback.ContentEn) == "" {
			return &Violation{Reason: "missing_micro_feedback_en"}
		}
	}

	if strings.TrimSpace(resp.SuggestedUserReplyKo) == "" {
		return &Violation{Reason: "missing_suggested_user_reply_ko"}
	}
	if strings.TrimSpace(resp.SuggestedUserReplyEn) == "" {
		return &Violation{Reason: "missing_suggested_user_reply_en"}
	}
	if strings.Contains(resp.SuggestedUserReplyKo, "?") {
		return &Violation{Reason: "suggested_user_reply_must_not_be_question"}
	}
	prevSuggested := strings.TrimSpace(req.ConversationState.LastSuggestedUserReplyKo)
	if prevSuggested != "" &&
		NormalizeReply(resp.SuggestedUserReplyKo) == NormalizeReply(prevSuggested) {
		return &Violation{Reason: "repeated_suggested_user_reply"}
	}

	if lc.Forbidden.SentenceLengthMax > 0 {
		if len(tokenize.Words(resp.AssistantReplyKo)) > lc.Forbidden.SentenceLengthMax {
			return &Violation{Reason: "sentence_length_max"}
		}
	}

	allowedIDs := map[string]struct{}{}
	for _, mt := range lc.MustTarget {
		allowedIDs[string(mt.ID)] = struct{}{}
	}
	if len(resp.TargetsUsed) > 0 {
		var invalid []string
		for _, tid := range resp.TargetsUsed {
			if _, ok := allowedIDs[tid]; !ok {
				invalid = append(invalid, tid)
			}
		}
		if len(invalid) > 0 {
			if len(invalid) > 8 {
				invalid = invalid[:8]
			}
			return &Violation{Reason: "invalid_targets_used:" + strings.Join(invalid, ",")}
		}
	}

	vocabIDs := map[string]struct{}{}
	for _, mt := range lc.MustTarget {
		if mt.Type == types.TargetVocab {
			vocabIDs[string(mt.ID)] = struct{}{}
		}
	}
	if len(vocabIDs) > 0 {
		usedVocab := false
		for _, tid := range resp.TargetsUsed {
			if _, ok := vocabIDs[tid]; ok {
				usedVocab = true
				break
			}
		}
		if !usedVocab {
			return &Violation{Reason: "missing_target_word"}
		}
	}

	if inst.MaxCorrections == 0 && resp.MicroFeedback != nil &&
		resp.MicroFeedback.Type == types.FeedbackCorrection {
		return &Violation{Reason: "max_corrections"}
	}

	if missing := missingGlossTokens(req, resp); len(missing) > 0 {
		if len(missing) > 8 {
			missing = missing[:8]
		}
		return &Violation{Reason: "missing_word_glosses:" + strings.Join(missing, ",")}
	}

	prev := strings.TrimSpace(req.ConversationState.LastAssistantTurnKo)
	cur := strings.TrimSpace(resp.AssistantReplyKo)
	if prev != "" && cur != "" {
		prevTokens := tokenize.Words(prev)
		curTokens := tokenize.Words(cur)
		if len(prevTokens) >= 4 && len(curTokens) >= 4 {
			sim := jaccard(tokenize.Set(prevTokens), tokenize.Set(curTokens))
			if sim >= inst.LexicalSimilarityMax {
				return &Violation{Reason: "lexical_similarity"}
			}
		}
		prevContent := contentTokens(prevTokens)
		curContent := contentTokens(curTokens)
		if len(prevContent) >= 2 && len(curContent) >= 2 {
			if jaccard(prevContent, curContent) >= inst.SemanticSimilarityMax {
				return &Violation{Reason: "semantic_similarity"}
			}
		}
	}
	return nil
}

// missingGlossTokens returns the deck-supported reply tokens lacking a
// gloss, sorted. Supported = in a pool or a surface form, directly or with
// one particle attached.
func missingGlossTokens(req *types.ConversationRequest, resp *types.ConversationResponse) []string {
	lc := &req.LanguageConstraints
	stems := tokenize.Set(lc.AllowedSupport, lc.AllowedStretch, lc.ReinforcedWords)
	for _, mt := range lc.MustTarget {
		for _, sf := range mt.SurfaceForms {
			stems[sf] = struct{}{}
		}
	}

	required := map[string]struct{}{}
	for _, token := range tokenize.Words(resp.AssistantReplyKo) {
		if tokenize.IsDigits(token) {
			continue
		}
		if _, ok := stems[token]; ok {
			required[token] = struct{}{}
			continue
		}
		for _, suffix := range tokenize.ParticleSuffixes {
			if len(token) > len(suffix) && strings.HasSuffix(token, suffix) {
				if _, ok := stems[token[:len(token)-len(suffix)]]; ok {
					required[token] = struct{}{}
					break
				}
			}
		}
	}

	var missing []string
	for token := range required {
		if resp.WordGlosses[token] == "" {
			missing = append(missing, token)
		}
	}
	sort.Strings(missing)
	return missing
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func contentTokens(tokens []string) map[string]struct{} {
	base := tokenize.Set(tokenize.BaseSupport)
	out := map[string]struct{}{}
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, ok := base[t]; ok {
			continue
		}
		out[t] = struct{}{}
	}
	return out
}
