package validate

import (
	"reflect"
	"testing"

	"elites/internal/types"
)

func constraintsWith(support []string, targets ...string) *types.LanguageConstraints {
	lc := &types.LanguageConstraints{AllowedSupport: support}
	for _, t := range targets {
		lc.MustTarget = append(lc.MustTarget, types.MustTarget{
			ID:           types.LexemeID(t),
			Type:         types.TargetVocab,
			SurfaceForms: []string{t},
			Priority:     1,
		})
	}
	return lc
}

func TestValidateTokens(t *testing.T) {
	lc := constraintsWith([]string{"의자"}, "책상")

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"all allowed", "의자 있어요", nil},
		{"target form allowed", "책상 있어요", nil},
		{"particle attachment", "의자가 있어요", nil},
		{"base support free", "네, 맞아요. 그리고 좋아요.", nil},
		{"digits ignored", "3 있어요", nil},
		{"unexpected word", "고양이 있어요", []string{"고양이"}},
		{"dedup keeps order", "고양이 강아지 고양이", []string{"고양이", "강아지"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateTokens(tt.text, lc)
			if !reflect.DeepEqual(got.UnexpectedTokens, tt.want) {
				t.Fatalf("unexpected = %v, want %v", got.UnexpectedTokens, tt.want)
			}
			if got.OK() != (tt.want == nil) {
				t.Fatalf("OK() = %v", got.OK())
			}
		})
	}
}

func TestValidateTokensStretchAndReinforced(t *testing.T) {
	lc := &types.LanguageConstraints{
		AllowedStretch:  []string{"창문"},
		ReinforcedWords: []string{"고양이"},
	}
	got := ValidateTokens("창문 고양이 있어요", lc)
	if !got.OK() {
		t.Fatalf("pool words rejected: %v", got.UnexpectedTokens)
	}
}
