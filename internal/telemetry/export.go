package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"

	"elites/internal/redaction"
)

// ExportedSession is one session row as exported.
type ExportedSession struct {
	ID          int64   `json:"id"`
	DeckIDs     string  `json:"deck_ids"`
	StartedMS   int64   `json:"started_ms"`
	EndedMS     *int64  `json:"ended_ms"`
	SummaryJSON *string `json:"summary_json"`
}

// ExportedEvent is one event row as exported.
type ExportedEvent struct {
	SessionID   int64  `json:"session_id"`
	TurnIndex   int    `json:"turn_index"`
	EventType   string `json:"event_type"`
	TsMS        int64  `json:"ts_ms"`
	PayloadJSON string `json:"payload_json"`
}

// ExportedItem is one mastery item row as exported.
type ExportedItem struct {
	ItemID      string `json:"item_id"`
	Kind        string `json:"kind"`
	Value       string `json:"value"`
	MasteryJSON string `json:"mastery_json"`
	UpdatedMS   int64  `json:"updated_ms"`
}

// Export bundles everything the export command emits.
type Export struct {
	Sessions []ExportedSession `json:"sessions"`
	Events   []ExportedEvent   `json:"events"`
	Items    []ExportedItem    `json:"items"`
}

// ExportTelemetry dumps the most recent sessions with their events plus all
// mastery items. At redaction levels above none, every string inside
// summary and event payloads is scrubbed.
func (s *Store) ExportTelemetry(limitSessions int, level redaction.Level) (*Export, error) {
	if limitSessions <= 0 {
		limitSessions = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &Export{
		Sessions: []ExportedSession{},
		Events:   []ExportedEvent{},
		Items:    []ExportedItem{},
	}

	rows, err := s.db.Query(
		`select id, deck_ids, started_ms, ended_ms, summary_json
from elites_conversation_sessions order by id desc limit ?`, limitSessions)
	if err != nil {
		return nil, fmt.Errorf("export sessions: %w", err)
	}
	var sessionIDs []any
	for rows.Next() {
		var sess ExportedSession
		var summary []byte
		if err := rows.Scan(&sess.ID, &sess.DeckIDs, &sess.StartedMS, &sess.EndedMS, &summary); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if summary != nil {
			redacted := redactJSONText(string(summary), level)
			sess.SummaryJSON = &redacted
		}
		out.Sessions = append(out.Sessions, sess)
		sessionIDs = append(sessionIDs, sess.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export sessions: %w", err)
	}

	if len(sessionIDs) > 0 {
		placeholders := strings.Repeat("?,", len(sessionIDs))
		placeholders = placeholders[:len(placeholders)-1]
		eventRows, err := s.db.Query(
			`select session_id, turn_index, event_type, ts_ms, payload_json
from elites_conversation_events where session_id in (`+placeholders+`) order by id`,
			sessionIDs...)
		if err != nil {
			return nil, fmt.Errorf("export events: %w", err)
		}
		for eventRows.Next() {
			var ev ExportedEvent
			var payload []byte
			if err := eventRows.Scan(&ev.SessionID, &ev.TurnIndex, &ev.EventType, &ev.TsMS, &payload); err != nil {
				eventRows.Close()
				return nil, fmt.Errorf("scan event: %w", err)
			}
			ev.PayloadJSON = redactJSONText(string(payload), level)
			out.Events = append(out.Events, ev)
		}
		eventRows.Close()
		if err := eventRows.Err(); err != nil {
			return nil, fmt.Errorf("export events: %w", err)
		}
	}

	itemRows, err := s.db.Query(
		`select item_id, kind, value, mastery_json, updated_ms
from elites_conversation_items order by updated_ms desc`)
	if err != nil {
		return nil, fmt.Errorf("export items: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var item ExportedItem
		var mastery []byte
		if err := itemRows.Scan(&item.ItemID, &item.Kind, &item.Value, &mastery, &item.UpdatedMS); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.MasteryJSON = string(mastery)
		out.Items = append(out.Items, item)
	}
	return out, itemRows.Err()
}

// redactJSONText re-encodes a JSON document with its strings scrubbed.
// Unparseable payloads are redacted as plain text.
func redactJSONText(text string, level redaction.Level) string {
	if level == redaction.None {
		return text
	}
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return redaction.Redact(text, level).Text
	}
	redacted, err := json.Marshal(redaction.RedactJSON(value, level))
	if err != nil {
		return redaction.Redact(text, level).Text
	}
	return string(redacted)
}
