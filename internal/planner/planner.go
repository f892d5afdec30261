// Package planner selects the per-turn vocabulary envelope: which deck items
// the assistant must use, which pools it may draw from, and when a new word
// may be introduced. Selection is deterministic for a fixed snapshot,
// mastery cache, and planner state.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"elites/internal/bands"
	"elites/internal/config"
	"elites/internal/snapshot"
	"elites/internal/tokenize"
	"elites/internal/types"
)

// Mastery carries the per-item telemetry counters used for banding and
// candidate scoring, keyed by item id.
type Mastery map[string]map[string]int

// NewWordState tracks one word introduced mid-session through its exposure
// pipeline. Stages: 1 comprehension, 2 highlighted, 3 scaffolded,
// 4 graduated.
type NewWordState struct {
	Lexeme         string
	Gloss          string
	IntroducedTurn int
	CurrentStage   int
	ExposureCount  int
	LastSeenTurn   *int
}

// VocabDebug is the banding decision for one lexeme, retained for
// inspection after each plan.
type VocabDebug struct {
	Band  bands.Band
	R     *float64
	Stage int
}

// State is the mutable per-session planner state. Owned by exactly one
// session.
type State struct {
	ConversationSummary      string
	LastAssistantTurnKo      string
	LastUserTurnKo           string
	LastSuggestedUserReplyKo string
	TurnIndex                int
	TurnsSinceNewWord        int
	// ScheduledReuse maps item id to the turn index at which the item
	// becomes due for reuse.
	ScheduledReuse    map[string]int
	LastMustTargetIDs []string
	NewWords          map[string]*NewWordState
	LastDebugVocab    map[string]VocabDebug
}

// Planner plans turns against an immutable snapshot.
type Planner struct {
	snapshot *snapshot.Snapshot
	settings config.Settings
}

// New builds a planner for the snapshot.
func New(snap *snapshot.Snapshot, settings config.Settings) *Planner {
	return &Planner{snapshot: snap, settings: settings}
}

// InitialState seeds planner state for a fresh session. A non-empty topicID
// is folded into the summary.
func (p *Planner) InitialState(summary, topicID string) *State {
	if topicID != "" {
		summary = fmt.Sprintf("%s (topic=%s)", summary, topicID)
	}
	return &State{
		ConversationSummary: summary,
		ScheduledReuse:      map[string]int{},
		NewWords:            map[string]*NewWordState{},
	}
}

// PlanOptions tunes one plan. Zero values select the defaults.
type PlanOptions struct {
	MustTargetCount     int
	AllowedSupportCount int
	ReuseDelayTurns     int
	Mastery             Mastery
}

func (o PlanOptions) withDefaults() PlanOptions {
	if o.MustTargetCount <= 0 {
		o.MustTargetCount = 3
	}
	if o.AllowedSupportCount <= 0 {
		o.AllowedSupportCount = 60
	}
	if o.ReuseDelayTurns <= 0 {
		o.ReuseDelayTurns = 3
	}
	return o
}

// PlanTurn advances the turn index and produces the request envelope for
// this turn.
func (p *Planner) PlanTurn(state *State, input types.UserInput, opts PlanOptions) (types.ConversationState, types.LanguageConstraints, types.GenerationInstructions) {
	opts = opts.withDefaults()
	state.TurnIndex++

	thresholds := bands.Thresholds{
		Cold:    p.settings.BandColdThreshold,
		Fragile: p.settings.BandFragileThreshold,
		Stretch: p.settings.BandStretchThreshold,
	}

	bandByID := make(map[string]bands.Band, len(p.snapshot.Items))
	rByID := make(map[string]*float64, len(p.snapshot.Items))
	for i := range p.snapshot.Items {
		item := &p.snapshot.Items[i]
		id := string(item.ItemID)
		decay := bands.DefaultDecay
		if item.Decay != nil && *item.Decay > 0 {
			decay = *item.Decay
		}
		if item.Stability != nil && *item.Stability > 0 &&
			item.LastReviewDate != nil && p.snapshot.Today != nil {
			elapsed := float64(*p.snapshot.Today - *item.LastReviewDate)
			if elapsed < 0 {
				elapsed = 0
			}
			r := bands.Retrievability(*item.Stability, elapsed, decay)
			bandByID[id] = bands.Classify(r, opts.Mastery[id], thresholds)
			rByID[id] = &r
		} else if p.settings.TreatUnseenDeckWordsAsSupport {
			bandByID[id] = bands.Support
		} else {
			bandByID[id] = bands.Stretch
		}
	}

	candidates := make([]*snapshot.Item, 0, len(p.snapshot.Items))
	for i := range p.snapshot.Items {
		item := &p.snapshot.Items[i]
		if bandByID[string(item.ItemID)] != bands.Cold {
			candidates = append(candidates, item)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		si := candidateScore(p.snapshot.Today, candidates[i], opts.Mastery[string(candidates[i].ItemID)])
		sj := candidateScore(p.snapshot.Today, candidates[j], opts.Mastery[string(candidates[j].ItemID)])
		if si != sj {
			return si > sj
		}
		return candidates[i].Lexeme < candidates[j].Lexeme
	})

	var stretchLexemes, supportLexemes, fragileLexemes []string
	for _, item := range candidates {
		switch bandByID[string(item.ItemID)] {
		case bands.Stretch:
			stretchLexemes = append(stretchLexemes, item.Lexeme)
		case bands.Support:
			supportLexemes = append(supportLexemes, item.Lexeme)
		case bands.Fragile:
			fragileLexemes = append(fragileLexemes, item.Lexeme)
		}
	}

	debug := make(map[string]VocabDebug, len(candidates))
	for _, item := range candidates {
		debug[item.Lexeme] = VocabDebug{
			Band: bandByID[string(item.ItemID)],
			R:    rByID[string(item.ItemID)],
		}
	}
	for _, nw := range state.NewWords {
		if nw.CurrentStage >= 1 && nw.CurrentStage <= 4 {
			debug[nw.Lexeme] = VocabDebug{Band: bands.New, Stage: nw.CurrentStage}
		}
	}
	state.LastDebugVocab = debug

	activeNewWord := p.activeNewWord(state)
	newWordBudgetRemaining := p.settings.MaxNewWordsPerSession - len(state.NewWords)
	allowNewVocab := p.settings.AllowNewWords && activeNewWord == nil && newWordBudgetRemaining > 0
	cadence := p.settings.ForceNewWordEveryNTurns
	if cadence < 1 {
		cadence = 1
	}
	requireNewVocab := allowNewVocab && state.TurnsSinceNewWord >= cadence-1

	// Reserve a slot for the active new word so the total stays within the
	// target budget.
	reserved := 0
	if activeNewWord != nil {
		reserved = 1
	}
	budget := opts.MustTargetCount - reserved
	if reserved == 0 && budget < 1 {
		budget = 1
	}
	if budget < 0 {
		budget = 0
	}

	var mustTargets []types.MustTarget
	usedLexemes := map[string]struct{}{}
	fragileCount := 0

	// Items already scheduled for a later turn are held back so the reuse
	// delay actually spaces them out.
	scheduledLater := func(id types.ItemID) bool {
		due, ok := state.ScheduledReuse[string(id)]
		return ok && due > state.TurnIndex
	}

	// 1) due items first (micro-spacing)
	var dueIDs []string
	for id, dueTurn := range state.ScheduledReuse {
		if dueTurn <= state.TurnIndex && strings.HasPrefix(id, "lexeme:") {
			dueIDs = append(dueIDs, id)
		}
	}
	sort.Strings(dueIDs)
	for _, id := range dueIDs {
		if len(mustTargets) >= budget {
			break
		}
		if bandByID[id] == bands.Cold {
			continue
		}
		lexeme := strings.TrimPrefix(id, "lexeme:")
		if _, used := usedLexemes[lexeme]; used {
			continue
		}
		scaffold := bandByID[id] == bands.Fragile
		if scaffold {
			fragileCount++
		}
		mustTargets = append(mustTargets, types.MustTarget{
			ID:                  types.ItemID(id),
			Type:                types.TargetVocab,
			SurfaceForms:        []string{lexeme},
			Priority:            1.0,
			ScaffoldingRequired: scaffold,
		})
		usedLexemes[lexeme] = struct{}{}
	}

	// 2) primary targets from the stretch band
	for _, lexeme := range stretchLexemes {
		if len(mustTargets) >= budget {
			break
		}
		if _, used := usedLexemes[lexeme]; used {
			continue
		}
		if scheduledLater(types.LexemeID(lexeme)) {
			continue
		}
		mustTargets = append(mustTargets, types.MustTarget{
			ID:           types.LexemeID(lexeme),
			Type:         types.TargetVocab,
			SurfaceForms: []string{lexeme},
			Priority:     1.0,
		})
		usedLexemes[lexeme] = struct{}{}
	}

	// 3) at most one fragile item per turn, scaffolded
	if len(mustTargets) < budget && fragileCount < 1 {
		for _, lexeme := range fragileLexemes {
			if _, used := usedLexemes[lexeme]; used {
				continue
			}
			if scheduledLater(types.LexemeID(lexeme)) {
				continue
			}
			mustTargets = append(mustTargets, types.MustTarget{
				ID:                  types.LexemeID(lexeme),
				Type:                types.TargetVocab,
				SurfaceForms:        []string{lexeme},
				Priority:            1.0,
				ScaffoldingRequired: true,
			})
			usedLexemes[lexeme] = struct{}{}
			break
		}
	}

	// 4) fall back to a single support word rather than an empty contract
	if len(mustTargets) == 0 && budget > 0 {
		for _, lexeme := range supportLexemes {
			if _, used := usedLexemes[lexeme]; used {
				continue
			}
			if scheduledLater(types.LexemeID(lexeme)) {
				continue
			}
			mustTargets = append(mustTargets, types.MustTarget{
				ID:           types.LexemeID(lexeme),
				Type:         types.TargetVocab,
				SurfaceForms: []string{lexeme},
				Priority:     1.0,
			})
			usedLexemes[lexeme] = struct{}{}
			break
		}
	}

	// 5) active new-word reinforcement target (hard constraint)
	if activeNewWord != nil {
		if _, used := usedLexemes[activeNewWord.Lexeme]; !used {
			mustTargets = append(mustTargets, types.MustTarget{
				ID:                  types.LexemeID(activeNewWord.Lexeme),
				Type:                types.TargetNewWord,
				SurfaceForms:        []string{activeNewWord.Lexeme},
				Priority:            0.9,
				ScaffoldingRequired: true,
				ExposureStage:       activeNewWord.CurrentStage,
				Gloss:               activeNewWord.Gloss,
			})
			usedLexemes[activeNewWord.Lexeme] = struct{}{}
		}
	}

	// 6) collocations triggered by the chosen lexical targets
	var lexicalTargets []string
	for _, t := range mustTargets {
		if t.Type == types.TargetVocab {
			lexicalTargets = append(lexicalTargets, t.SurfaceForms[0])
		}
	}
	for _, colloc := range selectCollocations(lexicalTargets, 1) {
		if len(mustTargets) >= opts.MustTargetCount {
			break
		}
		mustTargets = append(mustTargets, colloc)
	}

	var reinforced []string
	for _, nw := range state.NewWords {
		if nw.CurrentStage >= 4 {
			reinforced = append(reinforced, nw.Lexeme)
		}
	}
	sort.Strings(reinforced)

	targetForms := map[string]struct{}{}
	var allForms []string
	for _, t := range mustTargets {
		for _, sf := range t.SurfaceForms {
			targetForms[sf] = struct{}{}
			allForms = append(allForms, sf)
		}
	}
	var stretchPool []string
	for _, lexeme := range stretchLexemes {
		if _, isTarget := targetForms[lexeme]; isTarget {
			continue
		}
		stretchPool = append(stretchPool, lexeme)
		if len(stretchPool) >= 20 {
			break
		}
	}
	var supportPool []string
	for _, lexeme := range supportLexemes {
		if _, isTarget := targetForms[lexeme]; isTarget {
			continue
		}
		supportPool = append(supportPool, lexeme)
		if len(supportPool) >= opts.AllowedSupportCount {
			break
		}
	}

	constraints := types.LanguageConstraints{
		MustTarget:      mustTargets,
		AllowedSupport:  supportPool,
		AllowedStretch:  stretchPool,
		ReinforcedWords: reinforced,
		AllowedGrammar:  selectGrammar(allForms, 2),
		Forbidden: types.Forbidden{
			IntroduceNewVocab: !allowNewVocab,
			SentenceLengthMax: 20,
		},
		RequireNewVocab: requireNewVocab,
	}

	instructions := types.DefaultInstructions()
	instructions.SafeMode = p.settings.SafeMode
	instructions.LexicalSimilarityMax = p.settings.LexicalSimilarityMax
	instructions.SemanticSimilarityMax = p.settings.SemanticSimilarityMax

	convState := types.ConversationState{
		Summary:                  state.ConversationSummary,
		LastAssistantTurnKo:      state.LastAssistantTurnKo,
		LastUserTurnKo:           input.TextKo,
		LastSuggestedUserReplyKo: state.LastSuggestedUserReplyKo,
	}

	state.LastUserTurnKo = input.TextKo
	state.LastMustTargetIDs = state.LastMustTargetIDs[:0]
	for _, t := range mustTargets {
		state.LastMustTargetIDs = append(state.LastMustTargetIDs, string(t.ID))
		if t.Type == types.TargetNewWord {
			continue
		}
		state.ScheduledReuse[string(t.ID)] = state.TurnIndex + opts.ReuseDelayTurns
	}
	return convState, constraints, instructions
}

// activeNewWord returns the in-pipeline word to reinforce this turn:
// lowest stage first, then earliest introduction, then lexeme.
func (p *Planner) activeNewWord(state *State) *NewWordState {
	if !p.settings.AllowNewWords {
		return nil
	}
	var active []*NewWordState
	for _, nw := range state.NewWords {
		if nw.CurrentStage >= 1 && nw.CurrentStage <= 3 {
			active = append(active, nw)
		}
	}
	if len(active) == 0 {
		return nil
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].CurrentStage != active[j].CurrentStage {
			return active[i].CurrentStage < active[j].CurrentStage
		}
		if active[i].IntroducedTurn != active[j].IntroducedTurn {
			return active[i].IntroducedTurn < active[j].IntroducedTurn
		}
		return active[i].Lexeme < active[j].Lexeme
	})
	return active[0]
}

// ObserveTurn records which targets the completed turn satisfied. Missed
// targets are rescheduled to next turn and returned. The new-word pipeline
// advances on assistant usage: exposures on consecutive turns build a
// streak, a gap resets it.
func (p *Planner) ObserveTurn(state *State, constraints types.LanguageConstraints, input types.UserInput, assistantReplyKo string) []string {
	userTokens := tokenize.Set(tokenize.Words(input.TextKo))
	assistantTokens := tokenize.Set(tokenize.Words(assistantReplyKo))
	inTurn := func(form string) bool {
		if _, ok := userTokens[form]; ok {
			return true
		}
		_, ok := assistantTokens[form]
		return ok
	}

	var missed []string
	for _, target := range constraints.MustTarget {
		var used bool
		if target.Type == types.TargetCollocation {
			used = true
			for _, sf := range target.SurfaceForms {
				if !inTurn(sf) {
					used = false
					break
				}
			}
		} else {
			for _, sf := range target.SurfaceForms {
				if inTurn(sf) {
					used = true
					break
				}
			}
		}
		if used {
			continue
		}
		id := string(target.ID)
		if target.Type != types.TargetNewWord {
			next := state.TurnIndex + 1
			if existing, ok := state.ScheduledReuse[id]; !ok || next < existing {
				state.ScheduledReuse[id] = next
			}
		}
		missed = append(missed, id)
	}

	usedActiveNewWord := false
	for lexeme, nw := range state.NewWords {
		if nw.CurrentStage >= 4 {
			continue
		}
		if _, ok := assistantTokens[lexeme]; !ok {
			continue
		}
		usedActiveNewWord = true
		if nw.LastSeenTurn == nil || *nw.LastSeenTurn == state.TurnIndex-1 {
			if nw.IntroducedTurn != state.TurnIndex {
				nw.ExposureCount++
			}
		} else {
			nw.ExposureCount = 1
		}
		seen := state.TurnIndex
		nw.LastSeenTurn = &seen
		switch {
		case nw.ExposureCount >= 3:
			nw.CurrentStage = 4
		case nw.ExposureCount == 2:
			nw.CurrentStage = 2
		default:
			nw.CurrentStage = 1
		}
	}

	if usedActiveNewWord {
		state.TurnsSinceNewWord = 0
	} else {
		state.TurnsSinceNewWord++
	}
	return missed
}

func rustiness(stability *float64) float64 {
	if stability == nil {
		return 0
	}
	s := *stability
	if s < 0 {
		s = 0
	}
	return 1.0 / (1.0 + s)
}

func candidateScore(today *int, item *snapshot.Item, mastery map[string]int) float64 {
	score := rustiness(item.Stability) + overdueScore(today, item)
	score += float64(mastery["dont_know"]) * 0.5
	score += float64(mastery["practice_again"]) * 0.25
	score += float64(mastery["missed_target"]) * 0.2

	if item.Difficulty != nil {
		d := *item.Difficulty / 10.0
		if d < 0 {
			d = 0
		}
		if d > 1 {
			d = 1
		}
		score += d * 0.1
	}

	lookupCount := mastery["lookup_count"]
	avgLookupMS := 0.0
	if lookupCount > 0 {
		avgLookupMS = float64(mastery["lookup_ms_total"]) / float64(lookupCount)
	}
	score += min2(float64(lookupCount)) * 0.05
	score += min2(avgLookupMS/1500.0) * 0.05
	return score
}

func overdueScore(today *int, item *snapshot.Item) float64 {
	const reviewQueue = 2
	if today == nil || item.Due == nil || item.Ivl == nil || *item.Ivl <= 0 {
		return 0
	}
	if item.CardQueue == nil || *item.CardQueue != reviewQueue {
		return 0
	}
	overdueDays := *today - *item.Due
	if overdueDays < 0 {
		overdueDays = 0
	}
	return min2(float64(overdueDays)/float64(*item.Ivl)) * 0.2
}

func min2(v float64) float64 {
	if v > 2 {
		return 2
	}
	return v
}
