// Package session orchestrates one conversation practice session: deck
// snapshot, planner state, telemetry, and the gateway, driven turn by
// turn from a CLI or UI caller.
package session

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"elites/internal/config"
	"elites/internal/gateway"
	"elites/internal/planner"
	"elites/internal/redaction"
	"elites/internal/snapshot"
	"elites/internal/telemetry"
	"elites/internal/tokenize"
	"elites/internal/types"
)

// TurnResult pairs the redacted user input with the accepted response.
type TurnResult struct {
	UserInput types.UserInput
	Response  *types.ConversationResponse
}

// Session owns all per-session mutable state. Not safe for concurrent
// turns; the job manager serializes access.
type Session struct {
	Snapshot   *snapshot.Snapshot
	Planner    *planner.Planner
	Telemetry  *telemetry.Store
	Gateway    *gateway.Gateway
	Mastery    telemetry.MasteryCache
	State      *planner.State
	SessionID  int64
	Settings   config.Settings
	SystemRole string

	lexemes map[string]struct{}
	log     *zap.Logger
}

// StartOptions configures session start. Backend and Provider are the
// only required injection points.
type StartOptions struct {
	Backend   snapshot.Backend
	DeckIDs   []int64
	Settings  config.Settings
	Provider  gateway.Provider
	Telemetry *telemetry.Store
	TopicID   string
	Summary   string
	Log       *zap.Logger
}

// Start builds the snapshot, opens a telemetry session, loads the
// mastery cache, and seeds planner state.
func Start(opts StartOptions) (*Session, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	summary := opts.Summary
	if summary == "" {
		summary = "Conversation practice"
	}

	snap, err := snapshot.Build(opts.Backend, opts.DeckIDs, snapshot.Options{
		LexemeFieldIndex: opts.Settings.LexemeFieldIndex,
		GlossFieldIndex:  opts.Settings.GlossFieldIndex,
		MaxItems:         opts.Settings.SnapshotMaxItems,
	})
	if err != nil {
		return nil, err
	}

	sessionID, err := opts.Telemetry.StartSession(snap.DeckIDs)
	if err != nil {
		return nil, err
	}
	itemIDs := make([]string, 0, len(snap.Items))
	lexemes := make(map[string]struct{}, len(snap.Items))
	for i := range snap.Items {
		itemIDs = append(itemIDs, string(snap.Items[i].ItemID))
		lexemes[snap.Items[i].Lexeme] = struct{}{}
	}
	mastery, err := opts.Telemetry.LoadMasteryCache(itemIDs)
	if err != nil {
		return nil, err
	}

	p := planner.New(snap, opts.Settings)
	s := &Session{
		Snapshot:   snap,
		Planner:    p,
		Telemetry:  opts.Telemetry,
		Gateway:    gateway.New(opts.Provider, opts.Settings.MaxRewrites, log),
		Mastery:    mastery,
		State:      p.InitialState(summary, opts.TopicID),
		SessionID:  sessionID,
		Settings:   opts.Settings,
		SystemRole: types.SystemRole,
		lexemes:    lexemes,
		log:        log,
	}
	log.Info("session started",
		zap.Int64("session_id", sessionID),
		zap.Int("snapshot_items", len(snap.Items)))
	return s, nil
}

// RunTurn executes one full turn: redact, plan, generate, observe, and
// record telemetry.
func (s *Session) RunTurn(ctx context.Context, textKo string, confidence types.Confidence) (*TurnResult, error) {
	redacted := redaction.Redact(textKo, redaction.ParseLevel(s.Settings.RedactionLevel))
	input := types.UserInput{TextKo: redacted.Text, Confidence: confidence}

	convState, constraints, instructions := s.Planner.PlanTurn(s.State, input, planner.PlanOptions{
		Mastery: planner.Mastery(s.Mastery),
	})
	instructions.SafeMode = s.Settings.SafeMode

	request := &types.ConversationRequest{
		SystemRole:             s.SystemRole,
		ConversationState:      convState,
		UserInput:              input,
		LanguageConstraints:    constraints,
		GenerationInstructions: instructions,
	}
	response, err := s.Gateway.RunTurn(ctx, request)
	if err != nil {
		return nil, err
	}

	if s.Settings.AllowNewWords {
		s.observeNewWords(response)
	}

	if err := s.Telemetry.BumpUserUsed(s.Mastery, s.lexemes, input); err != nil {
		s.log.Warn("user-used bump failed", zap.Error(err))
	}
	if err := s.Telemetry.BumpAssistantUsed(s.Mastery, s.lexemes, response); err != nil {
		s.log.Warn("assistant-used bump failed", zap.Error(err))
	}
	if err := s.Telemetry.RecordTurnEvent(s.SessionID, s.State.TurnIndex, input, response); err != nil {
		s.log.Warn("turn event failed", zap.Error(err))
	}

	s.State.LastAssistantTurnKo = response.AssistantReplyKo
	s.State.LastSuggestedUserReplyKo = response.SuggestedUserReplyKo
	missed := s.Planner.ObserveTurn(s.State, constraints, input, response.AssistantReplyKo)
	if err := s.Telemetry.ApplyMissedTargets(s.Mastery, missed); err != nil {
		s.log.Warn("missed-target bump failed", zap.Error(err))
	}

	return &TurnResult{UserInput: input, Response: response}, nil
}

// observeNewWords admits glossed reply tokens unknown to the deck into
// the new-word pipeline, up to the session budget. Tokens are considered
// in sorted order so admission is deterministic.
func (s *Session) observeNewWords(resp *types.ConversationResponse) {
	if len(s.State.NewWords) >= s.Settings.MaxNewWordsPerSession {
		return
	}
	base := tokenize.Set(tokenize.BaseSupport)
	tokens := tokenize.Words(resp.AssistantReplyKo)
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)
	seen := map[string]struct{}{}
	for _, token := range sorted {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		if _, known := s.lexemes[token]; known {
			continue
		}
		if _, active := s.State.NewWords[token]; active {
			continue
		}
		if _, ok := base[token]; ok {
			continue
		}
		gloss := strings.TrimSpace(resp.WordGlosses[token])
		if gloss == "" {
			continue
		}
		s.State.NewWords[token] = &planner.NewWordState{
			Lexeme:         token,
			Gloss:          gloss,
			IntroducedTurn: s.State.TurnIndex,
			CurrentStage:   1,
			ExposureCount:  1,
		}
		if len(s.State.NewWords) >= s.Settings.MaxNewWordsPerSession {
			return
		}
	}
}

// LogEvent records a UI event for the current turn unless an explicit
// turn index is given (negative means current).
func (s *Session) LogEvent(payload map[string]any, turnIndex int) error {
	if turnIndex < 0 {
		turnIndex = s.State.TurnIndex
	}
	return s.Telemetry.RecordEventFromPayload(s.Mastery, s.SessionID, turnIndex, payload)
}

// Wrap computes the end-of-session summary without ending the session.
func (s *Session) Wrap() *Wrap {
	return ComputeWrap(s.Snapshot, s.Mastery, s.State.NewWords, 0, 0)
}

// End persists the wrap plus any extra summary fields and closes the
// telemetry session.
func (s *Session) End(extra map[string]any) (*Wrap, error) {
	wrap := s.Wrap()
	summary := map[string]any{"wrap": wrap.toMap()}
	for k, v := range extra {
		summary[k] = v
	}
	if err := s.Telemetry.EndSession(s.SessionID, summary); err != nil {
		return nil, err
	}
	s.log.Info("session ended", zap.Int64("session_id", s.SessionID))
	return wrap, nil
}
