// Package snapshot builds the immutable per-session view of the selected
// decks. The real scheduler database sits behind the Backend interface; the
// engine only ever sees the derived Snapshot.
package snapshot

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"

	"elites/internal/types"
)

var (
	lexemeRE = regexp.MustCompile(`[A-Za-z0-9가-힣]+`)
	latinRE  = regexp.MustCompile(`[A-Za-z]`)
	tagRE    = regexp.MustCompile(`<[^>]*>`)
	spaceRE  = regexp.MustCompile(`[\s\x{00a0}]+`)
)

// CardRow is one card joined with its note, as the backend stores it.
// Fields hold the raw note fields and may contain HTML. Optional scheduler
// metrics are nil when the backend does not track them.
type CardRow struct {
	CardID int64
	NoteID int64
	Fields []string

	CardType  *int
	CardQueue *int
	Due       *int
	Ivl       *int
	Reps      *int
	Lapses    *int

	Stability  *float64
	Difficulty *float64
	Decay      *float64

	// LastReviewUnix is the wall-clock time of the most recent review,
	// 0 when never reviewed.
	LastReviewUnix int64
}

// DeckRows is a backend query result. Today is the scheduler day number and
// DayCutoff the unix time the current day rolls over; either may be nil.
type DeckRows struct {
	DeckIDs   []int64
	Today     *int
	DayCutoff *int64
	Cards     []CardRow
}

// Backend answers deck queries. Implementations must resolve child decks
// themselves and cap results at maxItems.
type Backend interface {
	Query(deckIDs []int64, maxItems int) (*DeckRows, error)
}

// Item is one deck lexeme with its scheduler metrics.
type Item struct {
	ItemID       types.ItemID
	Lexeme       string
	SourceNoteID int64
	SourceCardID int64

	CardType  *int
	CardQueue *int
	Due       *int
	Ivl       *int
	Reps      *int
	Lapses    *int

	Stability  *float64
	Difficulty *float64
	// LastReviewDate is a scheduler day number, comparable with
	// Snapshot.Today.
	LastReviewDate *int
	Decay          *float64
	Gloss          string
}

// Snapshot is the immutable deck view a session plans from.
type Snapshot struct {
	DeckIDs []int64
	Items   []Item
	Today   *int
}

// Options tunes field selection and snapshot size.
type Options struct {
	LexemeFieldIndex int
	// GlossFieldIndex nil disables gloss extraction.
	GlossFieldIndex *int
	MaxItems         int
}

// DefaultOptions reads the first field as the lexeme and the second as its
// gloss, capped at 5000 items.
func DefaultOptions() Options {
	glossIdx := 1
	return Options{LexemeFieldIndex: 0, GlossFieldIndex: &glossIdx, MaxItems: 5000}
}

// Build queries the backend and derives the snapshot: HTML stripped, the
// lexeme reduced to its first word run, reversed notes (Latin front, Korean
// back) swapped, duplicate lexemes dropped keeping the first card seen.
func Build(backend Backend, deckIDs []int64, opts Options) (*Snapshot, error) {
	if len(deckIDs) == 0 {
		return nil, fmt.Errorf("no decks provided")
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultOptions().MaxItems
	}
	rows, err := backend.Query(deckIDs, opts.MaxItems)
	if err != nil {
		return nil, fmt.Errorf("query decks: %w", err)
	}

	resolved := append([]int64(nil), rows.DeckIDs...)
	sort.Slice(resolved, func(i, j int) bool { return resolved[i] < resolved[j] })

	seen := make(map[string]struct{})
	items := make([]Item, 0, len(rows.Cards))
	for _, card := range rows.Cards {
		if opts.LexemeFieldIndex >= len(card.Fields) {
			continue
		}
		rawLexeme := StripHTML(card.Fields[opts.LexemeFieldIndex])
		if rawLexeme == "" {
			continue
		}
		gloss := ""
		if opts.GlossFieldIndex != nil && *opts.GlossFieldIndex < len(card.Fields) {
			gloss = StripHTML(card.Fields[*opts.GlossFieldIndex])
		}

		lexeme := extractLexeme(rawLexeme)
		// Reversed note layout: English on the front, Korean on the back.
		if lexeme != "" && gloss != "" &&
			latinRE.MatchString(lexeme) && !latinRE.MatchString(gloss) {
			if swapped := extractLexeme(gloss); swapped != "" {
				gloss = rawLexeme
				lexeme = swapped
			}
		}
		if lexeme == "" {
			continue
		}
		if _, dup := seen[lexeme]; dup {
			continue
		}
		seen[lexeme] = struct{}{}

		items = append(items, Item{
			ItemID:         types.LexemeID(lexeme),
			Lexeme:         lexeme,
			SourceNoteID:   card.NoteID,
			SourceCardID:   card.CardID,
			CardType:       card.CardType,
			CardQueue:      card.CardQueue,
			Due:            card.Due,
			Ivl:            card.Ivl,
			Reps:           card.Reps,
			Lapses:         card.Lapses,
			Stability:      card.Stability,
			Difficulty:     card.Difficulty,
			LastReviewDate: lastReviewDay(rows, card.LastReviewUnix),
			Decay:          card.Decay,
			Gloss:          gloss,
		})
	}

	return &Snapshot{DeckIDs: resolved, Items: items, Today: rows.Today}, nil
}

// StripHTML removes tags, decodes entities, and collapses whitespace.
func StripHTML(s string) string {
	s = html.UnescapeString(tagRE.ReplaceAllString(s, " "))
	return strings.TrimSpace(spaceRE.ReplaceAllString(s, " "))
}

func extractLexeme(text string) string {
	return lexemeRE.FindString(text)
}

func lastReviewDay(rows *DeckRows, lastReviewUnix int64) *int {
	if rows.Today == nil || rows.DayCutoff == nil || lastReviewUnix <= 0 {
		return nil
	}
	elapsed := int((*rows.DayCutoff - lastReviewUnix) / 86400)
	if elapsed < 0 {
		elapsed = 0
	}
	day := *rows.Today - elapsed
	return &day
}
