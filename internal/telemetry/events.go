package telemetry

import (
	"fmt"
	"strings"

	"elites/internal/tokenize"
	"elites/internal/types"
)

// BumpUserUsed credits deck lexemes the learner produced this turn, plus a
// confidence counter when they flagged the turn unsure/guessing.
func (s *Store) BumpUserUsed(cache MasteryCache, lexemes map[string]struct{}, input types.UserInput) error {
	for _, token := range tokenize.Words(input.TextKo) {
		if _, ok := lexemes[token]; !ok {
			continue
		}
		id := string(types.LexemeID(token))
		if err := s.BumpItemCached(cache, id, "lexeme", token, map[string]int{"user_used": 1}); err != nil {
			return err
		}
		switch input.Confidence {
		case types.ConfidenceUnsure:
			if err := s.BumpItemCached(cache, id, "lexeme", token, map[string]int{"used_unsure": 1}); err != nil {
				return err
			}
		case types.ConfidenceGuessing:
			if err := s.BumpItemCached(cache, id, "lexeme", token, map[string]int{"used_guessing": 1}); err != nil {
				return err
			}
		}
	}
	return nil
}

// BumpAssistantUsed credits deck lexemes the assistant's reply exposed.
func (s *Store) BumpAssistantUsed(cache MasteryCache, lexemes map[string]struct{}, resp *types.ConversationResponse) error {
	for _, token := range tokenize.Words(resp.AssistantReplyKo) {
		if _, ok := lexemes[token]; !ok {
			continue
		}
		err := s.BumpItemCached(cache, string(types.LexemeID(token)), "lexeme", token,
			map[string]int{"assistant_used": 1})
		if err != nil {
			return err
		}
	}
	return nil
}

// RecordTurnEvent logs the completed turn transcript.
func (s *Store) RecordTurnEvent(sessionID int64, turnIndex int, input types.UserInput, resp *types.ConversationResponse) error {
	assistant := map[string]any{
		"assistant_reply_ko":      resp.AssistantReplyKo,
		"word_glosses":            resp.WordGlosses,
		"suggested_user_reply_ko": resp.SuggestedUserReplyKo,
		"suggested_user_reply_en": resp.SuggestedUserReplyEn,
		"targets_used":            resp.TargetsUsed,
		"unexpected_tokens":       resp.UnexpectedTokens,
	}
	if resp.MicroFeedback != nil {
		assistant["micro_feedback"] = map[string]any{
			"type":       string(resp.MicroFeedback.Type),
			"content_ko": resp.MicroFeedback.ContentKo,
			"content_en": resp.MicroFeedback.ContentEn,
		}
	}
	return s.LogEvent(sessionID, turnIndex, "turn", map[string]any{
		"user":      input.TextKo,
		"assistant": assistant,
	})
}

// RecordEventFromPayload logs a learner interaction event verbatim and
// applies its mastery side effects. Unknown event types are logged without
// side effects.
func (s *Store) RecordEventFromPayload(cache MasteryCache, sessionID int64, turnIndex int, payload map[string]any) error {
	etype, _ := payload["type"].(string)
	if etype == "" {
		return fmt.Errorf("event.type must be a non-empty string")
	}
	if err := s.LogEvent(sessionID, turnIndex, etype, payload); err != nil {
		return err
	}

	token, _ := payload["token"].(string)
	switch etype {
	case "dont_know", "practice_again", "mark_confusing":
		if token != "" {
			return s.BumpItemCached(cache, string(types.LexemeID(token)), "lexeme", token,
				map[string]int{etype: 1})
		}
	case "lookup":
		ms, ok := intField(payload, "ms")
		if ok && ms >= 0 && token != "" {
			return s.BumpItemCached(cache, string(types.LexemeID(token)), "lexeme", token,
				map[string]int{"lookup_count": 1, "lookup_ms_total": ms})
		}
	case "repair_move":
		move, _ := payload["move"].(string)
		if move != "" {
			return s.BumpItemCached(cache, "repair:"+move, "repair", move,
				map[string]int{"used": 1})
		}
	case "words_known":
		for _, tok := range stringTokens(payload["tokens"]) {
			err := s.BumpItemCached(cache, string(types.LexemeID(tok)), "lexeme", tok,
				map[string]int{"user_understood": 1, "conv_success_count": 1})
			if err != nil {
				return err
			}
		}
	case "sentence_translated":
		for _, tok := range stringTokens(payload["tokens"]) {
			err := s.BumpItemCached(cache, string(types.LexemeID(tok)), "lexeme", tok,
				map[string]int{"dont_know": 1})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// ApplyMissedTargets bumps missed_target for each item the assistant was
// required to use but did not. Malformed ids are skipped.
func (s *Store) ApplyMissedTargets(cache MasteryCache, missedItemIDs []string) error {
	for _, itemID := range missedItemIDs {
		var kind, value string
		switch {
		case strings.HasPrefix(itemID, "lexeme:"):
			kind, value = "lexeme", strings.TrimPrefix(itemID, "lexeme:")
		case strings.HasPrefix(itemID, "gram:"):
			kind, value = "grammar", itemID
		case strings.HasPrefix(itemID, "colloc:"):
			kind, value = "collocation", itemID
		case strings.HasPrefix(itemID, "repair:"):
			kind, value = "repair", strings.TrimPrefix(itemID, "repair:")
		}
		if kind == "" || value == "" {
			continue
		}
		if err := s.BumpItemCached(cache, itemID, kind, value, map[string]int{"missed_target": 1}); err != nil {
			return err
		}
	}
	return nil
}

func intField(payload map[string]any, key string) (int, bool) {
	switch v := payload[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		// json decoding yields float64 for numbers
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

func stringTokens(v any) []string {
	var out []string
	switch list := v.(type) {
	case []any:
		for _, entry := range list {
			if s, ok := entry.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range list {
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
