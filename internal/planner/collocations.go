package planner

import "elites/internal/types"

// Collocation is a multi-token chunk tracked as one target. Tokens are the
// validation surface forms; triggers are the lexical targets that make the
// chunk worth practicing this turn.
type Collocation struct {
	ID       types.ItemID
	Tokens   []string
	Triggers []string
}

var defaultCollocations = []Collocation{
	{
		ID:       "colloc:사이에_있어요",
		Tokens:   []string{"사이에", "있어요"},
		Triggers: []string{"사이"},
	},
	{
		ID:       "colloc:~해도_돼요",
		Tokens:   []string{"해도", "돼요"},
		Triggers: []string{"돼요"},
	},
	{
		ID:       "colloc:~하면_안_돼요",
		Tokens:   []string{"안", "돼요"},
		Triggers: []string{"안", "돼요"},
	},
	{
		ID:       "colloc:~하고_싶어요",
		Tokens:   []string{"하고", "싶어요"},
		Triggers: []string{"싶어요"},
	},
}

// selectCollocations returns at most maxTargets collocation targets whose
// triggers appear among the turn's lexical targets.
func selectCollocations(lexicalTargets []string, maxTargets int) []types.MustTarget {
	targets := make(map[string]struct{}, len(lexicalTargets))
	for _, t := range lexicalTargets {
		targets[t] = struct{}{}
	}
	var out []types.MustTarget
	for _, colloc := range defaultCollocations {
		triggered := false
		for _, trigger := range colloc.Triggers {
			if _, ok := targets[trigger]; ok {
				triggered = true
				break
			}
		}
		if !triggered {
			continue
		}
		out = append(out, types.MustTarget{
			ID:           colloc.ID,
			Type:         types.TargetCollocation,
			SurfaceForms: append([]string(nil), colloc.Tokens...),
			Priority:     0.9,
		})
		if len(out) >= maxTargets {
			break
		}
	}
	return out
}
