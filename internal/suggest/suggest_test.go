package suggest

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromWrap(t *testing.T) {
	wrap := map[string]any{
		"reinforced_words": []any{
			map[string]any{"front": "고양이", "back": "cat", "tags": []any{"conv_reinforced"}},
			map[string]any{"front": "하늘"},
			map[string]any{"front": "", "back": "dropped"},
			"not an object",
			map[string]any{"front": "강", "back": "river", "tags": []any{1, 2}},
		},
	}
	got := FromWrap(wrap, 7)
	want := []CardSuggestion{
		{Front: "고양이", Back: "cat", DeckID: 7, Tags: []string{"conv_reinforced"}},
		{Front: "하늘", Back: "", DeckID: 7, Tags: []string{"conv_reinforced"}},
		{Front: "강", Back: "river", DeckID: 7, Tags: []string{"conv_reinforced"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("suggestions mismatch (-want +got):\n%s", diff)
	}
}

func TestFromWrapEmpty(t *testing.T) {
	if got := FromWrap(map[string]any{}, 1); got != nil {
		t.Fatalf("got %v", got)
	}
}

type recordingWriter struct {
	added []string
	fail  bool
}

func (w *recordingWriter) AddCard(deckID int64, front, back string, tags []string) (int64, error) {
	if w.fail {
		return 0, errors.New("deck full")
	}
	w.added = append(w.added, front)
	return int64(len(w.added)), nil
}

func TestApply(t *testing.T) {
	w := &recordingWriter{}
	ids, err := Apply(w, []CardSuggestion{
		{Front: "고양이", Back: "cat", DeckID: 1},
		{Front: "하늘", Back: "sky", DeckID: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{1, 2}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}

	w = &recordingWriter{fail: true}
	if _, err := Apply(w, []CardSuggestion{{Front: "강"}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestApplyEmpty(t *testing.T) {
	ids, err := Apply(&recordingWriter{}, nil)
	if err != nil || len(ids) != 0 {
		t.Fatalf("ids = %v, err = %v", ids, err)
	}
}
