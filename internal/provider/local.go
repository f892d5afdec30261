package provider

import (
	"context"
	"strings"

	"elites/internal/tokenize"
	"elites/internal/types"
	"elites/internal/validate"
)

// Local is a deterministic, offline provider. It exists for automated
// testing and a no-network fallback mode: replies are assembled from the
// request's own envelope, so they pass validation without an LLM.
type Local struct{}

var localGlosses = map[string]string{
	"네":   "yes",
	"있어요": "there is",
	"있어":  "there is",
	"좋아요": "good",
}

// Canned new words for turns that demand fresh vocabulary.
var localNewWords = []struct{ word, gloss string }{
	{"고양이", "cat"},
	{"하늘", "sky"},
	{"시간", "time"},
	{"물", "water"},
}

func (Local) Generate(_ context.Context, req *types.ConversationRequest) (map[string]any, error) {
	lc := &req.LanguageConstraints
	support := tokenize.Set(lc.AllowedSupport)

	pickSupport := func(preferred ...string) string {
		for _, token := range preferred {
			if _, ok := support[token]; ok {
				return token
			}
		}
		return ""
	}

	var vocabForm, newWordForm string
	for _, mt := range lc.MustTarget {
		if len(mt.SurfaceForms) == 0 {
			continue
		}
		switch mt.Type {
		case types.TargetVocab:
			if vocabForm == "" {
				vocabForm = mt.SurfaceForms[0]
			}
		case types.TargetNewWord:
			if newWordForm == "" {
				newWordForm = mt.SurfaceForms[0]
			}
		}
	}

	var tokens []string
	if vocabForm != "" {
		tokens = append(tokens, vocabForm)
	}
	if tail := pickSupport("있어요", "있어"); tail != "" && len(tokens) > 0 {
		tokens = append(tokens, tail)
	}
	if newWordForm != "" && newWordForm != vocabForm {
		tokens = append(tokens, newWordForm)
	}
	if len(tokens) == 0 {
		tokens = []string{"네"}
	}

	glosses := map[string]any{}
	if lc.RequireNewVocab {
		envelope := tokenize.Set(
			lc.AllowedSupport, lc.AllowedStretch, lc.ReinforcedWords,
			tokenize.BaseSupport, tokenize.AlwaysAllowed,
		)
		for _, mt := range lc.MustTarget {
			for _, sf := range mt.SurfaceForms {
				envelope[sf] = struct{}{}
			}
		}
		for _, cand := range localNewWords {
			if _, ok := envelope[cand.word]; !ok {
				tokens = append(tokens, cand.word)
				glosses[cand.word] = cand.gloss
				break
			}
		}
	}

	reply := strings.Join(tokens, " ") + "."
	for _, token := range tokens {
		if _, ok := glosses[token]; ok {
			continue
		}
		if g, ok := localGlosses[token]; ok {
			glosses[token] = g
		} else {
			glosses[token] = "deck word"
		}
	}

	suggested := suggestedReply(tokens, req.ConversationState.LastSuggestedUserReplyKo)

	used := tokenize.Set(tokens)
	var targetsUsed []any
	for _, mt := range lc.MustTarget {
		if mt.Type == types.TargetGrammar {
			targetsUsed = append(targetsUsed, string(mt.ID))
			continue
		}
		all := len(mt.SurfaceForms) > 0
		for _, sf := range mt.SurfaceForms {
			if _, ok := used[sf]; !ok {
				all = false
				break
			}
		}
		if all {
			targetsUsed = append(targetsUsed, string(mt.ID))
		}
	}

	return map[string]any{
		"assistant_reply_ko": reply,
		"word_glosses":       glosses,
		"micro_feedback": map[string]any{
			"type":       "praise",
			"content_ko": "좋아요!",
			"content_en": "Nice work, keep going.",
		},
		"suggested_user_reply_ko": suggested,
		"suggested_user_reply_en": "Keep the conversation going.",
		"targets_used":            targetsUsed,
		"unexpected_tokens":       []any{},
	}, nil
}

// suggestedReply picks the first envelope-only candidate differing from
// the previous suggestion.
func suggestedReply(tokens []string, lastSuggested string) string {
	candidates := []string{
		"네, " + strings.Join(tokens, " ") + ".",
		strings.Join(tokens, " ") + ".",
		"네.",
	}
	prev := validate.NormalizeReply(lastSuggested)
	for _, cand := range candidates {
		if validate.NormalizeReply(cand) != prev {
			return cand
		}
	}
	return candidates[0]
}
