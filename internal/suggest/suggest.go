// Package suggest turns session-wrap reinforced words into deck card
// suggestions and applies them through a card sink.
package suggest

import "fmt"

// CardSuggestion is one card to add. Back may be empty.
type CardSuggestion struct {
	Front  string
	Back   string
	DeckID int64
	Tags   []string
}

// CardWriter adds a card to a deck, returning the created note id. The
// caller is responsible for user approval.
type CardWriter interface {
	AddCard(deckID int64, front, back string, tags []string) (int64, error)
}

// FromWrap extracts card suggestions from a wrap's reinforced_words
// entries, as found in a persisted session summary. Malformed entries
// are skipped.
func FromWrap(wrap map[string]any, deckID int64) []CardSuggestion {
	entries, _ := wrap["reinforced_words"].([]any)
	var out []CardSuggestion
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		front, _ := entry["front"].(string)
		if front == "" {
			continue
		}
		back, _ := entry["back"].(string)
		tags := stringList(entry["tags"])
		if tags == nil {
			tags = []string{"conv_reinforced"}
		}
		out = append(out, CardSuggestion{
			Front:  front,
			Back:   back,
			DeckID: deckID,
			Tags:   tags,
		})
	}
	return out
}

// Apply adds each suggestion, returning created note ids.
func Apply(w CardWriter, suggestions []CardSuggestion) ([]int64, error) {
	created := make([]int64, 0, len(suggestions))
	for _, s := range suggestions {
		id, err := w.AddCard(s.DeckID, s.Front, s.Back, s.Tags)
		if err != nil {
			return created, fmt.Errorf("add card %q: %w", s.Front, err)
		}
		created = append(created, id)
	}
	return created, nil
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil
		}
		out = append(out, s)
	}
	return out
}
