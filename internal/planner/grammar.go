package planner

import "elites/internal/types"

// GrammarItem maps trigger lexemes to an allowed grammar frame.
type GrammarItem struct {
	ID       types.ItemID
	Pattern  string
	Triggers []string
}

var defaultGrammar = []GrammarItem{
	{ID: "gram:n1_n2_사이에_있다", Pattern: "N1와 N2 사이에 N3이/가 있어요", Triggers: []string{"사이"}},
	{ID: "gram:~해도_돼요", Pattern: "~해도 돼요", Triggers: []string{"돼요"}},
	{ID: "gram:n1에_있어요", Pattern: "N1에 N2이/가 있어요", Triggers: []string{"있어요"}},
	{ID: "gram:n1에_없어요", Pattern: "N1에 N2이/가 없어요", Triggers: []string{"없어요"}},
	{ID: "gram:n은_어디에_있어요", Pattern: "N은/는 어디에 있어요?", Triggers: []string{"어디"}},
	{ID: "gram:~하면_안_돼요", Pattern: "~하면 안 돼요", Triggers: []string{"안", "돼요"}},
	{ID: "gram:~할까요", Pattern: "~할까요?", Triggers: []string{"할까요"}},
	{ID: "gram:~하고_싶어요", Pattern: "~하고 싶어요", Triggers: []string{"싶어요"}},
}

// selectGrammar is a deterministic lookup from target surface forms to at
// most maxPatterns allowed grammar frames.
func selectGrammar(targetForms []string, maxPatterns int) []types.GrammarPattern {
	forms := make(map[string]struct{}, len(targetForms))
	for _, f := range targetForms {
		forms[f] = struct{}{}
	}
	var out []types.GrammarPattern
	for _, item := range defaultGrammar {
		triggered := false
		for _, trigger := range item.Triggers {
			if _, ok := forms[trigger]; ok {
				triggered = true
				break
			}
		}
		if !triggered {
			continue
		}
		out = append(out, types.GrammarPattern{ID: item.ID, Pattern: item.Pattern})
		if len(out) >= maxPatterns {
			break
		}
	}
	return out
}
