package session

import (
	"reflect"
	"testing"

	"elites/internal/planner"
	"elites/internal/snapshot"
	"elites/internal/telemetry"
	"elites/internal/types"
)

func wrapSnapshot(lexemes ...string) *snapshot.Snapshot {
	snap := &snapshot.Snapshot{DeckIDs: []int64{1}}
	for i, lex := range lexemes {
		snap.Items = append(snap.Items, snapshot.Item{
			ItemID: types.LexemeID(lex),
			Lexeme: lex,
			SourceNoteID: int64(i),
		})
	}
	return snap
}

func TestComputeWrapStrengthsOrdering(t *testing.T) {
	snap := wrapSnapshot("가방", "나무", "다리", "라면")
	mastery := telemetry.MasteryCache{
		"lexeme:나무": {"user_used": 3},
		"lexeme:다리": {"user_used": 3, "dont_know": 2},
		"lexeme:가방": {"user_used": 1},
	}
	wrap := ComputeWrap(snap, mastery, nil, 3, 2)
	want := []string{"나무", "다리", "가방"}
	if !reflect.DeepEqual(wrap.Strengths, want) {
		t.Fatalf("strengths = %v, want %v", wrap.Strengths, want)
	}
}

func TestComputeWrapReinforceWeighsCounters(t *testing.T) {
	snap := wrapSnapshot("가방", "나무", "다리")
	mastery := telemetry.MasteryCache{
		"lexeme:가방": {"practice_again": 2},
		"lexeme:나무": {"dont_know": 1},
	}
	wrap := ComputeWrap(snap, mastery, nil, 3, 2)
	want := []string{"가방", "나무"}
	if !reflect.DeepEqual(wrap.Reinforce, want) {
		t.Fatalf("reinforce = %v, want %v", wrap.Reinforce, want)
	}
}

func TestComputeWrapReinforcedWordsRequireStageFour(t *testing.T) {
	newWords := map[string]*planner.NewWordState{
		"고양이": {Lexeme: "고양이", Gloss: "cat", CurrentStage: 4},
		"하늘":  {Lexeme: "하늘", Gloss: "sky", CurrentStage: 2},
		"강":   {Lexeme: "강", Gloss: "river", CurrentStage: 4},
	}
	wrap := ComputeWrap(wrapSnapshot("가방"), telemetry.MasteryCache{}, newWords, 0, 0)
	if len(wrap.ReinforcedWords) != 2 {
		t.Fatalf("reinforced = %+v", wrap.ReinforcedWords)
	}
	// Sorted by lexeme.
	if wrap.ReinforcedWords[0].Front != "강" || wrap.ReinforcedWords[1].Front != "고양이" {
		t.Fatalf("reinforced = %+v", wrap.ReinforcedWords)
	}
}
