package telemetry

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"elites/internal/snapshot"
)

// GlossaryEntry is one offline lexeme gloss.
type GlossaryEntry struct {
	Lexeme string
	Gloss  string
}

const glossaryUpsert = `insert into elites_conversation_glossary(lexeme, gloss, source_note_id, updated_ms)
values(?, ?, ?, ?)
on conflict(lexeme) do update set
  gloss=excluded.gloss,
  source_note_id=excluded.source_note_id,
  updated_ms=excluded.updated_ms`

// RebuildGlossary refreshes the glossary cache from a deck snapshot and
// returns the number of entries written.
func (s *Store) RebuildGlossary(snap *snapshot.Snapshot) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowMS()
	count := 0
	for _, item := range snap.Items {
		if item.Lexeme == "" || item.Gloss == "" {
			continue
		}
		if _, err := s.db.Exec(glossaryUpsert, item.Lexeme, item.Gloss, item.SourceNoteID, now); err != nil {
			return count, fmt.Errorf("rebuild glossary: %w", err)
		}
		count++
	}
	return count, nil
}

// ImportGlossaryFile loads lexeme->gloss mappings from a TSV, CSV, or JSON
// file. format "" infers from the extension. JSON accepts either an object
// mapping lexeme to gloss or a list of {lexeme, gloss} objects.
func (s *Store) ImportGlossaryFile(path, format string) (int, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".tsv", ".tab":
			format = "tsv"
		case ".csv":
			format = "csv"
		case ".json":
			format = "json"
		default:
			return 0, fmt.Errorf("unknown glossary format; use .tsv/.csv/.json")
		}
	}

	var entries []GlossaryEntry
	switch format {
	case "tsv", "csv":
		f, err := os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("open glossary file: %w", err)
		}
		defer f.Close()
		reader := csv.NewReader(f)
		if format == "tsv" {
			reader.Comma = '\t'
		}
		reader.FieldsPerRecord = -1
		records, err := reader.ReadAll()
		if err != nil {
			return 0, fmt.Errorf("read glossary file: %w", err)
		}
		for _, parts := range records {
			if len(parts) == 0 {
				continue
			}
			lexeme := strings.TrimSpace(parts[0])
			gloss := ""
			if len(parts) > 1 {
				gloss = strings.TrimSpace(parts[1])
			}
			if lexeme == "" || strings.HasPrefix(lexeme, "#") {
				continue
			}
			entries = append(entries, GlossaryEntry{Lexeme: lexeme, Gloss: gloss})
		}
	case "json":
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("read glossary file: %w", err)
		}
		var asMap map[string]any
		if err := json.Unmarshal(data, &asMap); err == nil {
			for lexeme, gloss := range asMap {
				g, ok := gloss.(string)
				if !ok || strings.TrimSpace(lexeme) == "" {
					continue
				}
				entries = append(entries, GlossaryEntry{
					Lexeme: strings.TrimSpace(lexeme), Gloss: strings.TrimSpace(g),
				})
			}
		} else {
			var asList []map[string]any
			if err := json.Unmarshal(data, &asList); err != nil {
				return 0, fmt.Errorf("json glossary must be object or list")
			}
			for _, entry := range asList {
				lexeme, _ := entry["lexeme"].(string)
				if strings.TrimSpace(lexeme) == "" {
					continue
				}
				gloss, _ := entry["gloss"].(string)
				entries = append(entries, GlossaryEntry{
					Lexeme: strings.TrimSpace(lexeme), Gloss: strings.TrimSpace(gloss),
				})
			}
		}
	default:
		return 0, fmt.Errorf("format must be tsv|csv|json")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowMS()
	for _, e := range entries {
		if _, err := s.db.Exec(glossaryUpsert, e.Lexeme, e.Gloss, nil, now); err != nil {
			return 0, fmt.Errorf("import glossary: %w", err)
		}
	}
	return len(entries), nil
}

// LookupGloss fetches one glossary entry, or nil when absent.
func (s *Store) LookupGloss(lexeme string) (*GlossaryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entry GlossaryEntry
	var gloss *string
	err := s.db.QueryRow(
		"select lexeme, gloss from elites_conversation_glossary where lexeme=?", lexeme,
	).Scan(&entry.Lexeme, &gloss)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup gloss: %w", err)
	}
	if gloss != nil {
		entry.Gloss = *gloss
	}
	return &entry, nil
}
