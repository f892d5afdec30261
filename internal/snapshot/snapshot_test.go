package snapshot

import (
	"testing"

	"elites/internal/types"
)

type fakeBackend struct {
	rows *DeckRows
	err  error
}

func (f *fakeBackend) Query(deckIDs []int64, maxItems int) (*DeckRows, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func intp(v int) *int          { return &v }
func int64p(v int64) *int64    { return &v }
func floatp(v float64) *float64 { return &v }

func TestBuildExtractsLexemes(t *testing.T) {
	backend := &fakeBackend{rows: &DeckRows{
		DeckIDs: []int64{7},
		Today:   intp(100),
		Cards: []CardRow{
			{CardID: 1, NoteID: 10, Fields: []string{"<b>사이</b>", "between"}},
			{CardID: 2, NoteID: 11, Fields: []string{"의자 (noun)", "chair"}},
			{CardID: 3, NoteID: 12, Fields: []string{"", "empty front"}},
		},
	}}

	snap, err := Build(backend, []int64{7}, DefaultOptions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(snap.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(snap.Items))
	}
	if snap.Items[0].Lexeme != "사이" || snap.Items[0].Gloss != "between" {
		t.Fatalf("first item = %+v", snap.Items[0])
	}
	if snap.Items[0].ItemID != types.LexemeID("사이") {
		t.Fatalf("item id = %s", snap.Items[0].ItemID)
	}
	if snap.Items[1].Lexeme != "의자" {
		t.Fatalf("parenthetical not stripped: %q", snap.Items[1].Lexeme)
	}
}

func TestBuildSwapsReversedNotes(t *testing.T) {
	backend := &fakeBackend{rows: &DeckRows{
		DeckIDs: []int64{1},
		Cards: []CardRow{
			{CardID: 1, NoteID: 1, Fields: []string{"between", "사이"}},
		},
	}}
	snap, err := Build(backend, []int64{1}, DefaultOptions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(snap.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(snap.Items))
	}
	item := snap.Items[0]
	if item.Lexeme != "사이" || item.Gloss != "between" {
		t.Fatalf("reversed note not swapped: lexeme=%q gloss=%q", item.Lexeme, item.Gloss)
	}
}

func TestBuildDeduplicatesLexemes(t *testing.T) {
	backend := &fakeBackend{rows: &DeckRows{
		DeckIDs: []int64{1},
		Cards: []CardRow{
			{CardID: 1, NoteID: 1, Fields: []string{"사이", "between"}},
			{CardID: 2, NoteID: 2, Fields: []string{"사이", "gap"}},
		},
	}}
	snap, err := Build(backend, []int64{1}, DefaultOptions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(snap.Items) != 1 {
		t.Fatalf("duplicate lexeme kept: %d items", len(snap.Items))
	}
	if snap.Items[0].SourceCardID != 1 {
		t.Fatal("first card should win")
	}
}

func TestBuildLastReviewDay(t *testing.T) {
	cutoff := int64(1_000_000)
	backend := &fakeBackend{rows: &DeckRows{
		DeckIDs:   []int64{1},
		Today:     intp(50),
		DayCutoff: int64p(cutoff),
		Cards: []CardRow{
			{CardID: 1, NoteID: 1, Fields: []string{"사이", "between"},
				LastReviewUnix: cutoff - 3*86400, Stability: floatp(12)},
			{CardID: 2, NoteID: 2, Fields: []string{"의자", "chair"}},
		},
	}}
	snap, err := Build(backend, []int64{1}, DefaultOptions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := snap.Items[0].LastReviewDate; got == nil || *got != 47 {
		t.Fatalf("LastReviewDate = %v, want 47", got)
	}
	if snap.Items[1].LastReviewDate != nil {
		t.Fatal("never-reviewed card should have nil LastReviewDate")
	}
}

func TestBuildRequiresDecks(t *testing.T) {
	if _, err := Build(&fakeBackend{}, nil, DefaultOptions()); err == nil {
		t.Fatal("expected error for empty deck list")
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<b>사이</b>", "사이"},
		{"plain", "plain"},
		{"a&nbsp;b", "a b"},
		{"<div>의자</div> <i>x</i>", "의자 x"},
	}
	for _, tt := range tests {
		if got := StripHTML(tt.in); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
