package deckfile

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleDeck = `{
  "today": 120,
  "decks": [
    {"id": 1, "name": "Korean", "cards": [
      {"card_id": 10, "note_id": 20, "fields": ["의자", "chair"], "stability": 12.5},
      {"card_id": 11, "note_id": 21, "fields": ["책상", "desk"]}
    ]},
    {"id": 2, "name": "Extra", "cards": [
      {"card_id": 12, "note_id": 22, "fields": ["창문", "window"]}
    ]}
  ]
}`

func writeSample(t *testing.T) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deck.json")
	if err := os.WriteFile(path, []byte(sampleDeck), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestLoadAndResolve(t *testing.T) {
	f := writeSample(t)
	if len(f.Decks) != 2 || f.Today == nil || *f.Today != 120 {
		t.Fatalf("file = %+v", f)
	}
	if id, ok := f.DeckIDByName("korean"); !ok || id != 1 {
		t.Fatalf("id = %d, ok = %v", id, ok)
	}
	ids, err := f.ResolveDeckIDs([]string{"Korean", "Extra"})
	if err != nil || len(ids) != 2 {
		t.Fatalf("ids = %v, err = %v", ids, err)
	}
	if _, err := f.ResolveDeckIDs([]string{"Nope"}); err == nil {
		t.Fatal("expected error for unknown deck")
	}
}

func TestQuerySelectsDecksAndCaps(t *testing.T) {
	f := writeSample(t)
	rows, err := f.Query([]int64{1}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows.Cards) != 2 || rows.Cards[0].Fields[0] != "의자" {
		t.Fatalf("cards = %+v", rows.Cards)
	}
	if rows.Cards[0].Stability == nil || *rows.Cards[0].Stability != 12.5 {
		t.Fatal("stability lost")
	}
	if rows.Today == nil || *rows.Today != 120 {
		t.Fatal("today lost")
	}

	rows, err = f.Query([]int64{1, 2}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows.Cards) != 2 {
		t.Fatalf("cap ignored: %d cards", len(rows.Cards))
	}
}

func TestAddCardPersists(t *testing.T) {
	f := writeSample(t)
	id, err := f.AddCard(1, "고양이", "cat", []string{"conv_reinforced"})
	if err != nil {
		t.Fatal(err)
	}
	if id != 23 {
		t.Fatalf("id = %d, want max+1", id)
	}

	reloaded, err := Load(f.path)
	if err != nil {
		t.Fatal(err)
	}
	cards := reloaded.Decks[0].Cards
	last := cards[len(cards)-1]
	if last.Fields[0] != "고양이" || last.Fields[1] != "cat" || last.CardID != 23 {
		t.Fatalf("last card = %+v", last)
	}

	if _, err := f.AddCard(99, "x", "y", nil); err == nil {
		t.Fatal("expected error for unknown deck")
	}
}
