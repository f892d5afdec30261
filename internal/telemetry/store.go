// Package telemetry persists conversation sessions, events, per-item mastery
// counters, and the offline glossary cache in SQLite.
package telemetry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var schema = []string{
	`create table if not exists elites_conversation_sessions (
  id integer primary key,
  deck_ids text not null,
  started_ms integer not null,
  ended_ms integer,
  summary_json blob
)`,
	`create table if not exists elites_conversation_events (
  id integer primary key,
  session_id integer not null,
  turn_index integer not null,
  event_type text not null,
  ts_ms integer not null,
  payload_json blob not null,
  foreign key(session_id) references elites_conversation_sessions(id)
)`,
	`create table if not exists elites_conversation_items (
  item_id text primary key,
  kind text not null,
  value text not null,
  mastery_json blob not null,
  updated_ms integer not null
)`,
	`create table if not exists elites_conversation_glossary (
  lexeme text primary key,
  gloss text,
  source_note_id integer,
  updated_ms integer not null
)`,
	`create index if not exists idx_elites_conversation_events_session
  on elites_conversation_events(session_id)`,
}

// MasteryCache holds per-item counters loaded at session start and kept in
// sync with the items table by BumpItemCached. Counters only ever grow.
type MasteryCache map[string]map[string]int

// Store wraps the telemetry database. Writes are serialized with a mutex;
// the sqlite driver handles its own locking but the engine's ordering
// guarantees depend on ours.
type Store struct {
	db    *sql.DB
	mu    sync.Mutex
	log   *zap.Logger
	nowMS func() int64
}

// Open opens (or creates) the telemetry database at path and ensures the
// schema exists. Use ":memory:" for tests.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and matches
	// the serialized write model.
	db.SetMaxOpenConns(1)
	s := &Store{
		db:    db,
		log:   logger,
		nowMS: func() int64 { return time.Now().UnixMilli() },
	}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ddl := range schema {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("ensure telemetry schema: %w", err)
		}
	}
	return nil
}

// StartSession inserts a session row and returns its id.
func (s *Store) StartSession(deckIDs []int64) (int64, error) {
	parts := make([]string, len(deckIDs))
	for i, id := range deckIDs {
		parts[i] = fmt.Sprintf("%d", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		"insert into elites_conversation_sessions(deck_ids, started_ms) values(?, ?)",
		strings.Join(parts, ","), s.nowMS(),
	)
	if err != nil {
		return 0, fmt.Errorf("start session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("start session id: %w", err)
	}
	s.log.Debug("telemetry session started", zap.Int64("session_id", id))
	return id, nil
}

// EndSession stamps the session's end time and stores its wrap summary.
func (s *Store) EndSession(sessionID int64, summary map[string]any) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal session summary: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		"update elites_conversation_sessions set ended_ms=?, summary_json=? where id=?",
		s.nowMS(), payload, sessionID,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// LogEvent appends an event row. Event ids are the ordering authority.
func (s *Store) LogEvent(sessionID int64, turnIndex int, eventType string, payload map[string]any) error {
	if eventType == "" {
		return fmt.Errorf("event type must not be empty")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`insert into elites_conversation_events(session_id, turn_index, event_type, ts_ms, payload_json)
values(?, ?, ?, ?, ?)`,
		sessionID, turnIndex, eventType, s.nowMS(), body,
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// LoadMasteryCache fetches mastery counters for the given item ids. Items
// with no row yet are simply absent from the cache.
func (s *Store) LoadMasteryCache(itemIDs []string) (MasteryCache, error) {
	cache := make(MasteryCache, len(itemIDs))
	if len(itemIDs) == 0 {
		return cache, nil
	}
	placeholders := strings.Repeat("?,", len(itemIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(itemIDs))
	for i, id := range itemIDs {
		args[i] = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		"select item_id, mastery_json from elites_conversation_items where item_id in ("+placeholders+")",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("load mastery cache: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var itemID string
		var blob []byte
		if err := rows.Scan(&itemID, &blob); err != nil {
			return nil, fmt.Errorf("scan mastery row: %w", err)
		}
		counters := map[string]int{}
		if err := json.Unmarshal(blob, &counters); err != nil {
			s.log.Warn("dropping unreadable mastery row", zap.String("item_id", itemID), zap.Error(err))
			continue
		}
		cache[itemID] = counters
	}
	return cache, rows.Err()
}

// BumpItemCached adds deltas to the item's counters in the cache and writes
// the merged counters through to the items table in one upsert.
func (s *Store) BumpItemCached(cache MasteryCache, itemID, kind, value string, deltas map[string]int) error {
	counters := cache[itemID]
	if counters == nil {
		counters = map[string]int{}
		cache[itemID] = counters
	}
	for k, d := range deltas {
		counters[k] += d
	}
	blob, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("marshal mastery counters: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`insert into elites_conversation_items(item_id, kind, value, mastery_json, updated_ms)
values(?, ?, ?, ?, ?)
on conflict(item_id) do update set
  kind=excluded.kind,
  value=excluded.value,
  mastery_json=excluded.mastery_json,
  updated_ms=excluded.updated_ms`,
		itemID, kind, value, blob, s.nowMS(),
	)
	if err != nil {
		return fmt.Errorf("bump item %s: %w", itemID, err)
	}
	return nil
}
