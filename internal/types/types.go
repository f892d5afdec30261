// Package types defines the request/response/state records exchanged between
// the planner, the generation gateway, and LLM providers. All wire types
// round-trip through JSON; enums are closed string types validated at the
// parse boundary.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ItemID is an opaque identifier of the form "kind:value", with
// kind one of lexeme, gram, colloc, repair.
type ItemID string

// Kind returns the prefix before the first colon, or "" if malformed.
func (id ItemID) Kind() string {
	if i := strings.IndexByte(string(id), ':'); i > 0 {
		return string(id)[:i]
	}
	return ""
}

// Value returns the part after the first colon.
func (id ItemID) Value() string {
	if i := strings.IndexByte(string(id), ':'); i >= 0 {
		return string(id)[i+1:]
	}
	return string(id)
}

// LexemeID builds the canonical id for a deck lexeme.
func LexemeID(lexeme string) ItemID {
	return ItemID("lexeme:" + lexeme)
}

// TargetType classifies a must-target.
type TargetType string

const (
	TargetVocab       TargetType = "vocab"
	TargetGrammar     TargetType = "grammar"
	TargetCollocation TargetType = "collocation"
	TargetRepair      TargetType = "repair"
	TargetNewWord     TargetType = "new_word"
)

// MustTarget is an item the assistant is contractually required to use
// this turn. SurfaceForms is never empty.
type MustTarget struct {
	ID                  ItemID     `json:"id"`
	Type                TargetType `json:"type"`
	SurfaceForms        []string   `json:"surface_forms"`
	Priority            float64    `json:"priority"`
	ScaffoldingRequired bool       `json:"scaffolding_required,omitempty"`
	ExposureStage       int        `json:"exposure_stage,omitempty"`
	Gloss               string     `json:"gloss,omitempty"`
}

// GrammarPattern is an allowed grammar frame keyed by its catalog id.
type GrammarPattern struct {
	ID      ItemID `json:"id"`
	Pattern string `json:"pattern"`
}

// Forbidden holds the hard generation limits.
type Forbidden struct {
	IntroduceNewVocab bool `json:"introduce_new_vocab"`
	SentenceLengthMax int  `json:"sentence_length_max"`
}

// LanguageConstraints is the per-turn vocabulary envelope. Surface forms of
// must_target vocab items are implicitly permitted during validation;
// RequireNewVocab implies !Forbidden.IntroduceNewVocab.
type LanguageConstraints struct {
	MustTarget      []MustTarget     `json:"must_target"`
	AllowedSupport  []string         `json:"allowed_support"`
	AllowedStretch  []string         `json:"allowed_stretch"`
	ReinforcedWords []string         `json:"reinforced_words"`
	AllowedGrammar  []GrammarPattern `json:"allowed_grammar"`
	Forbidden       Forbidden        `json:"forbidden"`
	RequireNewVocab bool             `json:"require_new_vocab"`
}

// GenerationInstructions carries the tone/register knobs and the validation
// thresholds the contract checker enforces.
type GenerationInstructions struct {
	ConversationGoal              string  `json:"conversation_goal"`
	Tone                          string  `json:"tone"`
	Register                      string  `json:"register"`
	SafeMode                      bool    `json:"safe_mode"`
	ProvideMicroFeedback          bool    `json:"provide_micro_feedback"`
	ProvideSuggestedEnglishIntent bool    `json:"provide_suggested_english_intent"`
	MaxCorrections                int     `json:"max_corrections"`
	LexicalSimilarityMax          float64 `json:"lexical_similarity_max"`
	SemanticSimilarityMax         float64 `json:"semantic_similarity_max"`
}

// DefaultInstructions mirrors the planner's standing choices.
func DefaultInstructions() GenerationInstructions {
	return GenerationInstructions{
		ConversationGoal:              "Continue the conversation naturally and keep it going.",
		Tone:                          "friendly",
		Register:                      "해요체",
		SafeMode:                      true,
		ProvideMicroFeedback:          true,
		ProvideSuggestedEnglishIntent: true,
		MaxCorrections:                1,
		LexicalSimilarityMax:          0.7,
		SemanticSimilarityMax:         0.6,
	}
}

// ConversationState is the read-only slice of planner state handed to the
// provider with each request.
type ConversationState struct {
	Summary                  string `json:"summary"`
	LastAssistantTurnKo      string `json:"last_assistant_turn_ko"`
	LastUserTurnKo           string `json:"last_user_turn_ko"`
	LastSuggestedUserReplyKo string `json:"last_suggested_user_reply_ko"`
}

// Confidence is the learner's self-reported certainty for a turn.
type Confidence string

const (
	ConfidenceNone      Confidence = ""
	ConfidenceConfident Confidence = "confident"
	ConfidenceUnsure    Confidence = "unsure"
	ConfidenceGuessing  Confidence = "guessing"
)

// ParseConfidence maps arbitrary input to a valid Confidence, defaulting
// to none.
func ParseConfidence(s string) Confidence {
	switch Confidence(s) {
	case ConfidenceConfident, ConfidenceUnsure, ConfidenceGuessing:
		return Confidence(s)
	}
	return ConfidenceNone
}

// UserInput is one learner turn after redaction.
type UserInput struct {
	TextKo     string     `json:"text_ko"`
	Confidence Confidence `json:"confidence,omitempty"`
}

// FeedbackType classifies micro feedback.
type FeedbackType string

const (
	FeedbackNone       FeedbackType = "none"
	FeedbackCorrection FeedbackType = "correction"
	FeedbackPraise     FeedbackType = "praise"
)

// MicroFeedback is short per-turn feedback on the learner's Korean.
type MicroFeedback struct {
	Type      FeedbackType `json:"type"`
	ContentKo string       `json:"content_ko"`
	ContentEn string       `json:"content_en"`
}

// ConversationRequest pairs the immutable prompt parts with the per-turn
// envelope. SystemRole may carry a single rewrite marker appended by the
// gateway.
type ConversationRequest struct {
	SystemRole             string                 `json:"system_role"`
	ConversationState      ConversationState      `json:"conversation_state"`
	UserInput              UserInput              `json:"user_input"`
	LanguageConstraints    LanguageConstraints    `json:"language_constraints"`
	GenerationInstructions GenerationInstructions `json:"generation_instructions"`
}

// ConversationResponse is the structured assistant turn.
type ConversationResponse struct {
	AssistantReplyKo      string         `json:"assistant_reply_ko"`
	WordGlosses           WordGlosses    `json:"word_glosses"`
	MicroFeedback         *MicroFeedback `json:"micro_feedback"`
	SuggestedUserReplyKo  string         `json:"suggested_user_reply_ko,omitempty"`
	SuggestedUserReplyEn  string         `json:"suggested_user_reply_en,omitempty"`
	SuggestedUserIntentEn *string        `json:"suggested_user_intent_en"`
	TargetsUsed           []string       `json:"targets_used"`
	UnexpectedTokens      []string       `json:"unexpected_tokens"`
}

// WordGlosses maps reply tokens to English glosses. The LLM may emit either
// a JSON object or a list of [token, gloss] pairs; both decode to the map
// form, and the map form is what we re-serialize.
type WordGlosses map[string]string

// UnmarshalJSON accepts {"tok":"gloss"} or [["tok","gloss"], ...]. Entries
// with non-string members are dropped rather than rejected.
func (w *WordGlosses) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*w = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var pairs [][]json.RawMessage
		if err := json.Unmarshal(data, &pairs); err != nil {
			return err
		}
		out := make(WordGlosses, len(pairs))
		for _, pair := range pairs {
			if len(pair) != 2 {
				continue
			}
			var tok, gloss string
			if json.Unmarshal(pair[0], &tok) != nil {
				continue
			}
			if json.Unmarshal(pair[1], &gloss) != nil {
				continue
			}
			out[tok] = gloss
		}
		*w = out
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		// Tolerate non-string gloss values the same way pair entries are
		// tolerated: keep the string ones.
		var loose map[string]any
		if err2 := json.Unmarshal(data, &loose); err2 != nil {
			return err
		}
		m = make(map[string]string, len(loose))
		for k, v := range loose {
			if s, ok := v.(string); ok {
				m[k] = s
			}
		}
	}
	*w = m
	return nil
}

// Clone returns a deep copy of the response.
func (r *ConversationResponse) Clone() *ConversationResponse {
	out := *r
	if r.WordGlosses != nil {
		out.WordGlosses = make(WordGlosses, len(r.WordGlosses))
		for k, v := range r.WordGlosses {
			out.WordGlosses[k] = v
		}
	}
	if r.MicroFeedback != nil {
		fb := *r.MicroFeedback
		out.MicroFeedback = &fb
	}
	if r.SuggestedUserIntentEn != nil {
		s := *r.SuggestedUserIntentEn
		out.SuggestedUserIntentEn = &s
	}
	out.TargetsUsed = append([]string(nil), r.TargetsUsed...)
	out.UnexpectedTokens = append([]string(nil), r.UnexpectedTokens...)
	return &out
}

// ParseConversationResponse validates a provider's raw JSON object into a
// response. Structural failures carry the offending key in the error so the
// gateway can embed it into a rewrite directive.
func ParseConversationResponse(raw map[string]any) (*ConversationResponse, error) {
	if raw == nil {
		return nil, fmt.Errorf("response must be a JSON object")
	}
	reply, ok := raw["assistant_reply_ko"].(string)
	if !ok || reply == "" {
		return nil, fmt.Errorf("assistant_reply_ko must be a non-empty string")
	}
	resp := &ConversationResponse{AssistantReplyKo: reply}

	if fbRaw, present := raw["micro_feedback"]; present && fbRaw != nil {
		fbMap, ok := fbRaw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("micro_feedback must be an object or null")
		}
		fbType, _ := fbMap["type"].(string)
		switch FeedbackType(fbType) {
		case FeedbackNone, FeedbackCorrection, FeedbackPraise:
		default:
			return nil, fmt.Errorf("micro_feedback.type must be one of: none, correction, praise")
		}
		contentKo, okKo := stringOrMissing(fbMap, "content_ko")
		contentEn, okEn := stringOrMissing(fbMap, "content_en")
		if !okKo || !okEn {
			return nil, fmt.Errorf("micro_feedback.content_ko/content_en must be strings")
		}
		resp.MicroFeedback = &MicroFeedback{
			Type:      FeedbackType(fbType),
			ContentKo: contentKo,
			ContentEn: contentEn,
		}
	}

	if s, ok := raw["suggested_user_reply_ko"].(string); ok {
		resp.SuggestedUserReplyKo = s
	}
	if s, ok := raw["suggested_user_reply_en"].(string); ok {
		resp.SuggestedUserReplyEn = s
	}
	if v, present := raw["suggested_user_intent_en"]; present && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("suggested_user_intent_en must be a string or null")
		}
		resp.SuggestedUserIntentEn = &s
	}

	var err error
	if resp.TargetsUsed, err = stringList(raw, "targets_used"); err != nil {
		return nil, err
	}
	if resp.UnexpectedTokens, err = stringList(raw, "unexpected_tokens"); err != nil {
		return nil, err
	}
	resp.WordGlosses = parseGlosses(raw["word_glosses"])
	return resp, nil
}

func stringOrMissing(m map[string]any, key string) (string, bool) {
	v, present := m[key]
	if !present {
		return "", true
	}
	s, ok := v.(string)
	return s, ok
}

func stringList(raw map[string]any, key string) ([]string, error) {
	v, present := raw[key]
	if !present || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a list of strings", key)
	}
	out := make([]string, 0, len(list))
	for _, entry := range list {
		s, ok := entry.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be a list of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

func parseGlosses(v any) WordGlosses {
	switch g := v.(type) {
	case map[string]any:
		out := make(WordGlosses, len(g))
		for word, gloss := range g {
			if s, ok := gloss.(string); ok {
				out[word] = s
			}
		}
		return out
	case []any:
		out := make(WordGlosses, len(g))
		for _, entry := range g {
			pair, ok := entry.([]any)
			if !ok || len(pair) != 2 {
				continue
			}
			word, okW := pair[0].(string)
			gloss, okG := pair[1].(string)
			if okW && okG {
				out[word] = gloss
			}
		}
		return out
	}
	return WordGlosses{}
}
