// Package cache holds resolved news items and derived per-entity analyses
// between runs. Two independently aged namespaces share one JSON snapshot
// file. The store is single-writer: concurrent process invocations sharing
// a snapshot path may lose updates.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/tickerbrief/internal/globaltime"
)

// ItemRecord is a cached resolved candidate, keyed by content signature.
type ItemRecord struct {
	Signature   string     `json:"signature"`
	Title       string     `json:"title"`
	RawLink     string     `json:"raw_link"`
	FinalLink   string     `json:"final_link,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Publisher   string     `json:"publisher,omitempty"`
	CachedAt    time.Time  `json:"cached_at"`
}

// AnalysisRecord is a cached derived analysis, keyed by entity id. The
// payload is opaque to the store.
type AnalysisRecord struct {
	EntityID string          `json:"entity_id"`
	Payload  json.RawMessage `json:"payload"`
	CachedAt time.Time       `json:"cached_at"`
}

type snapshot struct {
	SavedAt  time.Time                 `json:"saved_at"`
	Items    map[string]ItemRecord     `json:"items"`
	Analyses map[string]AnalysisRecord `json:"analyses"`
}

type Store struct {
	path        string
	rawTTL      time.Duration
	analysisTTL time.Duration
	items       map[string]ItemRecord
	analyses    map[string]AnalysisRecord
	logger      zerolog.Logger
}

func NewStore(path string, rawTTL, analysisTTL time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		path:        path,
		rawTTL:      rawTTL,
		analysisTTL: analysisTTL,
		items:       map[string]ItemRecord{},
		analyses:    map[string]AnalysisRecord{},
		logger:      logger,
	}
}

// Load reads the snapshot file. A missing or corrupt snapshot degrades to
// an empty store; losing the cache costs performance, not correctness.
func (s *Store) Load() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("cache snapshot unreadable; starting empty")
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("cache snapshot corrupt; starting empty")
		return
	}

	if snap.Items != nil {
		s.items = snap.Items
	}
	if snap.Analyses != nil {
		s.analyses = snap.Analyses
	}
	s.logger.Debug().
		Int("items", len(s.items)).
		Int("analyses", len(s.analyses)).
		Msg("cache snapshot loaded")
}

// Save writes the snapshot atomically (temp file + rename).
func (s *Store) Save() error {
	snap := snapshot{
		SavedAt:  globaltime.UTC(),
		Items:    s.items,
		Analyses: s.analyses,
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal cache snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write cache snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close cache snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace cache snapshot %s: %w", s.path, err)
	}
	return nil
}

// Sweep removes every record older than its namespace TTL. Idempotent.
func (s *Store) Sweep(now time.Time) (removed int) {
	for sig, record := range s.items {
		if now.Sub(record.CachedAt) > s.rawTTL {
			delete(s.items, sig)
			removed++
		}
	}
	for id, record := range s.analyses {
		if now.Sub(record.CachedAt) > s.analysisTTL {
			delete(s.analyses, id)
			removed++
		}
	}
	return removed
}

func (s *Store) GetItem(signature string) (ItemRecord, bool) {
	record, ok := s.items[signature]
	return record, ok
}

func (s *Store) PutItem(record ItemRecord) {
	if record.Signature == "" {
		return
	}
	if record.CachedAt.IsZero() {
		record.CachedAt = globaltime.UTC()
	}
	s.items[record.Signature] = record
}

func (s *Store) GetAnalysis(entityID string) (AnalysisRecord, bool) {
	record, ok := s.analyses[entityID]
	return record, ok
}

func (s *Store) PutAnalysis(record AnalysisRecord) {
	if record.EntityID == "" {
		return
	}
	if record.CachedAt.IsZero() {
		record.CachedAt = globaltime.UTC()
	}
	s.analyses[record.EntityID] = record
}

func (s *Store) ItemCount() int     { return len(s.items) }
func (s *Store) AnalysisCount() int { return len(s.analyses) }
