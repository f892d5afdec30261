package session

import (
	"sort"

	"elites/internal/planner"
	"elites/internal/snapshot"
	"elites/internal/telemetry"
)

// ReinforcedWord is a card-shaped suggestion for a graduated new word.
type ReinforcedWord struct {
	Front string   `json:"front"`
	Back  string   `json:"back"`
	Tags  []string `json:"tags"`
}

// Wrap is the end-of-session summary.
type Wrap struct {
	Strengths       []string         `json:"strengths"`
	Reinforce       []string         `json:"reinforce"`
	ReinforcedWords []ReinforcedWord `json:"reinforced_words"`
}

func (w *Wrap) toMap() map[string]any {
	words := make([]any, 0, len(w.ReinforcedWords))
	for _, rw := range w.ReinforcedWords {
		words = append(words, map[string]any{
			"front": rw.Front, "back": rw.Back, "tags": rw.Tags,
		})
	}
	return map[string]any{
		"strengths":        w.Strengths,
		"reinforce":        w.Reinforce,
		"reinforced_words": words,
	}
}

// ComputeWrap ranks session lexemes into strengths and reinforcement
// picks, and emits card suggestions for graduated new words. Zero counts
// select the defaults (3 strengths, 2 reinforce).
func ComputeWrap(snap *snapshot.Snapshot, mastery telemetry.MasteryCache, newWords map[string]*planner.NewWordState, strengthsN, reinforceN int) *Wrap {
	if strengthsN <= 0 {
		strengthsN = 3
	}
	if reinforceN <= 0 {
		reinforceN = 2
	}

	stabilityByLexeme := map[string]*float64{}
	lexemeSet := map[string]struct{}{}
	for i := range snap.Items {
		item := &snap.Items[i]
		if _, ok := lexemeSet[item.Lexeme]; !ok {
			lexemeSet[item.Lexeme] = struct{}{}
			stabilityByLexeme[item.Lexeme] = item.Stability
		}
	}
	lexemes := make([]string, 0, len(lexemeSet))
	for l := range lexemeSet {
		lexemes = append(lexemes, l)
	}
	sort.Strings(lexemes)

	counters := func(lexeme string) map[string]int {
		return mastery["lexeme:"+lexeme]
	}

	strengths := append([]string(nil), lexemes...)
	sort.Slice(strengths, func(i, j int) bool {
		mi, mj := counters(strengths[i]), counters(strengths[j])
		if mi["user_used"] != mj["user_used"] {
			return mi["user_used"] > mj["user_used"]
		}
		if mi["dont_know"] != mj["dont_know"] {
			return mi["dont_know"] < mj["dont_know"]
		}
		return strengths[i] > strengths[j]
	})
	if len(strengths) > strengthsN {
		strengths = strengths[:strengthsN]
	}

	weakness := func(lexeme string) float64 {
		m := counters(lexeme)
		avgLookup := 0.0
		if m["lookup_count"] > 0 {
			avgLookup = float64(m["lookup_ms_total"]) / float64(m["lookup_count"])
		}
		rust := 0.0
		if stability := stabilityByLexeme[lexeme]; stability != nil {
			s := *stability
			if s < 0 {
				s = 0
			}
			rust = 1.0 / (1.0 + s)
		}
		score := 2.0*float64(m["practice_again"]) +
			1.5*float64(m["dont_know"]) +
			float64(m["mark_confusing"]) +
			float64(m["used_guessing"]) +
			0.5*min2(avgLookup/1000.0) +
			0.5*rust
		return score
	}
	reinforce := append([]string(nil), lexemes...)
	sort.SliceStable(reinforce, func(i, j int) bool {
		return weakness(reinforce[i]) > weakness(reinforce[j])
	})
	if len(reinforce) > reinforceN {
		reinforce = reinforce[:reinforceN]
	}

	var reinforced []ReinforcedWord
	graduated := make([]string, 0, len(newWords))
	for lexeme, nw := range newWords {
		if nw.CurrentStage >= 4 {
			graduated = append(graduated, lexeme)
		}
	}
	sort.Strings(graduated)
	for _, lexeme := range graduated {
		reinforced = append(reinforced, ReinforcedWord{
			Front: lexeme,
			Back:  newWords[lexeme].Gloss,
			Tags:  []string{"conv_reinforced"},
		})
	}

	return &Wrap{Strengths: strengths, Reinforce: reinforce, ReinforcedWords: reinforced}
}

func min2(v float64) float64 {
	if v > 2 {
		return 2
	}
	return v
}
