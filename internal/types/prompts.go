package types

import (
	"fmt"
	"strings"
)

// SystemRole is the standing instruction block for conversation turns. The
// gateway may append a single rewrite directive below it; providers must not
// alter it otherwise.
const SystemRole = "Korean conversation partner for a learner.\n" +
	"Return ONLY a JSON object (no extra text).\n\n" +
	"Reply rules:\n" +
	"- Write in polite 해요체.\n" +
	"- assistant_reply_ko must be 1-2 short sentences: a short response, then exactly ONE follow-up question at the end.\n" +
	"- Do not ask any other questions besides the final one.\n\n" +
	"Feedback rules:\n" +
	"- Always provide micro_feedback.content_en.\n" +
	"- micro_feedback.content_en must be short English feedback about the user's Korean, and include a correction if needed.\n" +
	"- Be strict about common errors: missing/wrong particles (은/는, 이/가, 을/를, 에/에서, 으로/로), spacing, and spelling/typos.\n" +
	"- If the user's Korean is already good, say so (eg, \"Good sentence.\").\n" +
	"- If you correct it, include the corrected Korean in quotes and a brief English reason.\n\n" +
	"Suggested reply rules:\n" +
	"- Always provide suggested_user_reply_ko: a short Korean reply the learner could say next (NOT a question).\n" +
	"- suggested_user_reply_ko must be relevant to assistant_reply_ko, and should answer the final question in assistant_reply_ko.\n" +
	"- Do not repeat Last suggested user reply (KO) from the user message.\n" +
	"- suggested_user_reply_ko must follow the vocab rules below.\n" +
	"- suggested_user_reply_en must be a natural English translation of suggested_user_reply_ko.\n\n" +
	"Vocab rules:\n" +
	"- You may use Korean particles/function words freely.\n" +
	"- For content words (nouns/verbs/adjectives/adverbs), use ONLY the words listed here in the user message: { ... }.\n" +
	"- Use at least one target word { ... } from the user message, even if you need to change the topic.\n" +
	"- Priority bias: targets, then reinforced words, then stretch words, then support words.\n" +
	"- If reinforced words are provided, include one if it fits naturally; do not force it.\n" +
	"- If new vocab is allowed, you may introduce at most ONE new content word.\n" +
	"- If new vocab is required, you MUST introduce exactly ONE new content word.\n" +
	"- If the conversation flow conflicts with the vocab rules, follow the vocab rules and shift topics.\n" +
	"- Avoid introducing new content words; keep it simple or change topics instead.\n\n" +
	"Variation rules:\n" +
	"- Make assistant_reply_ko clearly different from the last assistant reply in wording and meaning.\n\n" +
	"Output JSON keys:\n" +
	"- assistant_reply_ko (string)\n" +
	"- word_glosses (object mapping EVERY content-word token used in assistant_reply_ko -> English gloss)\n" +
	"- micro_feedback (object: {type:'none'|'correction'|'praise', content_ko:'', content_en:''})\n" +
	"- suggested_user_reply_ko (string)\n" +
	"- suggested_user_reply_en (string)\n" +
	"- targets_used (list of target IDs you used)\n\n" +
	"targets_used must be a list of strings, and must contain only IDs from the Targets list in the user message.\n" +
	"Example output (format only):\n" +
	`{"assistant_reply_ko":"좋아요! 오늘 뭐 해요?","word_glosses":{"좋아요":"sounds good/okay","오늘":"today","뭐":"what","해요":"do"},"micro_feedback":{"type":"praise","content_ko":"","content_en":"Good sentence."},"suggested_user_reply_ko":"오늘 집에 있어요.","suggested_user_reply_en":"I am at home today.","targets_used":["<target_id_1>","<target_id_2>"]}` + "\n"

// TranslateSystemRole is the standing instruction for the translate pipeline.
const TranslateSystemRole = `Translate Korean to natural English. Return ONLY JSON like {"translation_en":"..."}.`

// PlanReplySystemRole is the standing instruction for the plan-reply pipeline.
const PlanReplySystemRole = "You help a learner reply in Korean.\n" +
	"Return ONLY JSON with keys: options_ko (list of 3-5 short replies in Korean), notes_en (string|null), unexpected_tokens (list of strings).\n" +
	"Use polite 해요체.\n" +
	"Rewrite the user's draft Korean reply into natural Korean options that fit the conversation.\n" +
	"Do not ask any questions in options_ko.\n" +
	"For content words, use ONLY the words listed here in the user message: { ... }.\n" +
	"Target words should be preferred; use reinforced words if they fit naturally.\n" +
	"Priority bias: targets, then reinforced, then stretch, then support.\n"

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

// PromptText renders the per-turn user message deterministically: same
// request, same string. Word lists preserve first-occurrence order.
func (r *ConversationRequest) PromptText() string {
	lc := &r.LanguageConstraints

	targetWords := make([]string, 0, len(lc.MustTarget)*2)
	targetIDs := make([]string, 0, len(lc.MustTarget))
	for _, t := range lc.MustTarget {
		targetWords = append(targetWords, t.SurfaceForms...)
		targetIDs = append(targetIDs, string(t.ID))
	}

	allowed := dedupe(append(append(append(
		append([]string(nil), lc.AllowedSupport...),
		lc.AllowedStretch...),
		lc.ReinforcedWords...),
		targetWords...))
	targetWords = dedupe(targetWords)
	targetIDs = dedupe(targetIDs)

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
	fmt.Fprintf(&b, "Last suggested user reply (KO): %s\n", strings.TrimSpace(r.ConversationState.LastSuggestedUserReplyKo))
	fmt.Fprintf(&b, "User (KO): %s\n\n", strings.TrimSpace(r.UserInput.TextKo))
	fmt.Fprintf(&b, "For content words (nouns/verbs/adjectives/adverbs), use ONLY these Korean words: {%s}\n", strings.Join(allowed, ", "))
	fmt.Fprintf(&b, "Prioritize using these target words when natural: {%s}\n", strings.Join(targetWords, ", "))
	if len(lc.ReinforcedWords) > 0 {
		fmt.Fprintf(&b, "Reinforced words (use one if natural): {%s}\n", strings.Join(dedupe(lc.ReinforcedWords), ", "))
	}
	if len(lc.AllowedStretch) > 0 {
		fmt.Fprintf(&b, "Stretch words (okay to use): {%s}\n", strings.Join(dedupe(lc.AllowedStretch), ", "))
	}
	fmt.Fprintf(&b, "Valid target IDs (for targets_used): {%s}\n", strings.Join(targetIDs, ", "))
	fmt.Fprintf(&b, "New vocab allowed: %t\n", !lc.Forbidden.IntroduceNewVocab)
	fmt.Fprintf(&b, "New vocab required: %t\n", lc.RequireNewVocab)
	fmt.Fprintf(&b, "Max tokens (approx): %d\n\n", lc.Forbidden.SentenceLengthMax)
	b.WriteString("Targets (use IDs in targets_used if used):\n")
	b.WriteString(targetsBlock)
	b.WriteString("\n\nReturn ONLY the JSON object.")
	return b.String()
}
