package session

import (
	"context"
	"testing"

	"elites/internal/config"
	"elites/internal/provider"
	"elites/internal/snapshot"
	"elites/internal/telemetry"
)

type fakeBackend struct {
	rows *snapshot.DeckRows
}

func (b fakeBackend) Query([]int64, int) (*snapshot.DeckRows, error) {
	return b.rows, nil
}

func deckBackend(lexemes ...string) fakeBackend {
	rows := &snapshot.DeckRows{DeckIDs: []int64{1}}
	for i, lex := range lexemes {
		rows.Cards = append(rows.Cards, snapshot.CardRow{
			CardID: int64(100 + i),
			NoteID: int64(200 + i),
			Fields: []string{lex, "gloss of " + lex},
		})
	}
	return fakeBackend{rows: rows}
}

func startLocalSession(t *testing.T, settings config.Settings) *Session {
	t.Helper()
	store, err := telemetry.Open(":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	s, err := Start(StartOptions{
		Backend:   deckBackend("의자", "책상", "창문"),
		DeckIDs:   []int64{1},
		Settings:  settings,
		Provider:  provider.Local{},
		Telemetry: store,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSessionTurnRecordsTelemetry(t *testing.T) {
	s := startLocalSession(t, config.Defaults())

	res, err := s.RunTurn(context.Background(), "의자 있어요", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Response.AssistantReplyKo == "" {
		t.Fatal("empty reply")
	}
	if s.State.TurnIndex != 1 {
		t.Fatalf("turn index = %d", s.State.TurnIndex)
	}
	if s.State.LastAssistantTurnKo != res.Response.AssistantReplyKo {
		t.Fatal("assistant turn not written back")
	}
	if s.State.LastSuggestedUserReplyKo != res.Response.SuggestedUserReplyKo {
		t.Fatal("suggested reply not written back")
	}
	if got := s.Mastery["lexeme:의자"]["user_used"]; got != 1 {
		t.Fatalf("user_used = %d", got)
	}
}

func TestSessionLogEventBumpsMastery(t *testing.T) {
	s := startLocalSession(t, config.Defaults())

	err := s.LogEvent(map[string]any{
		"event_type": "dont_know",
		"tokens":     []any{"의자"},
	}, -1)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Mastery["lexeme:의자"]["dont_know"]; got != 1 {
		t.Fatalf("dont_know = %d", got)
	}
}

func TestSessionNewWordGraduation(t *testing.T) {
	settings := config.Defaults()
	settings.Provider = "local"
	settings.AllowNewWords = true
	settings.ForceNewWordEveryNTurns = 1
	s := startLocalSession(t, settings)

	ctx := context.Background()
	for turn := 0; turn < 3; turn++ {
		if _, err := s.RunTurn(ctx, "네", ""); err != nil {
			t.Fatalf("turn %d: %v", turn+1, err)
		}
	}

	nw := s.State.NewWords["고양이"]
	if nw == nil {
		t.Fatalf("new word not admitted; states = %v", s.State.NewWords)
	}
	if nw.CurrentStage != 4 {
		t.Fatalf("stage = %d after 3 exposures", nw.CurrentStage)
	}
	if nw.Gloss != "cat" {
		t.Fatalf("gloss = %q", nw.Gloss)
	}

	wrap := s.Wrap()
	if len(wrap.ReinforcedWords) != 1 {
		t.Fatalf("reinforced = %+v", wrap.ReinforcedWords)
	}
	rw := wrap.ReinforcedWords[0]
	if rw.Front != "고양이" || rw.Back != "cat" ||
		len(rw.Tags) != 1 || rw.Tags[0] != "conv_reinforced" {
		t.Fatalf("reinforced word = %+v", rw)
	}
}

func TestSessionNewWordBudget(t *testing.T) {
	settings := config.Defaults()
	settings.AllowNewWords = true
	settings.ForceNewWordEveryNTurns = 1
	settings.MaxNewWordsPerSession = 1
	s := startLocalSession(t, settings)

	ctx := context.Background()
	for turn := 0; turn < 4; turn++ {
		if _, err := s.RunTurn(ctx, "네", ""); err != nil {
			t.Fatal(err)
		}
	}
	if len(s.State.NewWords) != 1 {
		t.Fatalf("new words = %d, want 1", len(s.State.NewWords))
	}
}

func TestSessionEndPersistsWrap(t *testing.T) {
	s := startLocalSession(t, config.Defaults())
	if _, err := s.RunTurn(context.Background(), "의자 있어요", ""); err != nil {
		t.Fatal(err)
	}
	wrap, err := s.End(map[string]any{"turns": 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(wrap.Strengths) == 0 {
		t.Fatal("empty strengths")
	}

	export, err := s.Telemetry.ExportTelemetry(10, "none")
	if err != nil {
		t.Fatal(err)
	}
	if len(export.Sessions) != 1 || export.Sessions[0].EndedMS == nil {
		t.Fatalf("sessions = %+v", export.Sessions)
	}
}
