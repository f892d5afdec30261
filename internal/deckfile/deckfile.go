// Package deckfile reads and writes the JSON deck format the CLI works
// from: named decks of cards with optional scheduler metrics. A loaded
// file serves as the snapshot backend and as the card sink for
// reinforced-word suggestions.
package deckfile

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"elites/internal/snapshot"
)

// Card is one deck entry. Fields[0] is the lexeme, Fields[1] its gloss
// by convention; scheduler metrics are optional.
type Card struct {
	CardID int64    `json:"card_id"`
	NoteID int64    `json:"note_id"`
	Fields []string `json:"fields"`

	CardType  *int `json:"card_type,omitempty"`
	CardQueue *int `json:"card_queue,omitempty"`
	Due       *int `json:"due,omitempty"`
	Ivl       *int `json:"ivl,omitempty"`
	Reps      *int `json:"reps,omitempty"`
	Lapses    *int `json:"lapses,omitempty"`

	Stability  *float64 `json:"stability,omitempty"`
	Difficulty *float64 `json:"difficulty,omitempty"`
	Decay      *float64 `json:"decay,omitempty"`

	LastReviewUnix int64 `json:"last_review_unix,omitempty"`

	Tags []string `json:"tags,omitempty"`
}

// Deck is a named card list.
type Deck struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Cards []Card `json:"cards"`
}

// File is a full deck file.
type File struct {
	Today     *int   `json:"today,omitempty"`
	DayCutoff *int64 `json:"day_cutoff,omitempty"`
	Decks     []Deck `json:"decks"`

	path string
}

// Load reads a deck file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deck file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse deck file: %w", err)
	}
	f.path = path
	return &f, nil
}

// Save writes the file back to its load path.
func (f *File) Save() error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o644)
}

// DeckIDByName resolves a deck name, case-insensitively.
func (f *File) DeckIDByName(name string) (int64, bool) {
	for i := range f.Decks {
		if strings.EqualFold(f.Decks[i].Name, name) {
			return f.Decks[i].ID, true
		}
	}
	return 0, false
}

// ResolveDeckIDs maps deck names to ids, failing on the first unknown
// name.
func (f *File) ResolveDeckIDs(names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		id, ok := f.DeckIDByName(name)
		if !ok {
			return nil, fmt.Errorf("deck not found: %s", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Query implements snapshot.Backend: cards of the selected decks in file
// order, capped at maxItems.
func (f *File) Query(deckIDs []int64, maxItems int) (*snapshot.DeckRows, error) {
	want := map[int64]struct{}{}
	for _, id := range deckIDs {
		want[id] = struct{}{}
	}
	rows := &snapshot.DeckRows{Today: f.Today, DayCutoff: f.DayCutoff}
	for i := range f.Decks {
		deck := &f.Decks[i]
		if _, ok := want[deck.ID]; !ok {
			continue
		}
		rows.DeckIDs = append(rows.DeckIDs, deck.ID)
		for _, card := range deck.Cards {
			if len(rows.Cards) >= maxItems {
				break
			}
			rows.Cards = append(rows.Cards, snapshot.CardRow{
				CardID:         card.CardID,
				NoteID:         card.NoteID,
				Fields:         card.Fields,
				CardType:       card.CardType,
				CardQueue:      card.CardQueue,
				Due:            card.Due,
				Ivl:            card.Ivl,
				Reps:           card.Reps,
				Lapses:         card.Lapses,
				Stability:      card.Stability,
				Difficulty:     card.Difficulty,
				Decay:          card.Decay,
				LastReviewUnix: card.LastReviewUnix,
			})
		}
	}
	sort.Slice(rows.DeckIDs, func(i, j int) bool { return rows.DeckIDs[i] < rows.DeckIDs[j] })
	return rows, nil
}

// AddCard appends a new card to the deck and persists the file. Note and
// card ids continue from the current maximum across all decks.
func (f *File) AddCard(deckID int64, front, back string, tags []string) (int64, error) {
	var deck *Deck
	for i := range f.Decks {
		if f.Decks[i].ID == deckID {
			deck = &f.Decks[i]
			break
		}
	}
	if deck == nil {
		return 0, fmt.Errorf("deck not found: %d", deckID)
	}
	var maxID int64
	for i := range f.Decks {
		for _, card := range f.Decks[i].Cards {
			if card.CardID > maxID {
				maxID = card.CardID
			}
			if card.NoteID > maxID {
				maxID = card.NoteID
			}
		}
	}
	id := maxID + 1
	deck.Cards = append(deck.Cards, Card{
		CardID: id,
		NoteID: id,
		Fields: []string{front, back},
		Tags:   tags,
	})
	if err := f.Save(); err != nil {
		return 0, err
	}
	return id, nil
}
