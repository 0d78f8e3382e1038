// Package history keeps the most recent transcriptions of each identity.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/fmueller/dictado/internal/store"
	"github.com/google/uuid"
)

// MaxEntries caps the entries kept per identity.
const MaxEntries = 100

type Entry struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	Timestamp       time.Time `json:"timestamp"`
	DurationMinutes float64   `json:"duration"`
	Source          string    `json:"source,omitempty"`
}

// NewEntry returns an entry with a fresh identifier.
func NewEntry(text string, at time.Time, minutes float64, source string) Entry {
	return Entry{
		ID:              uuid.NewString(),
		Text:            text,
		Timestamp:       at,
		DurationMinutes: minutes,
		Source:          source,
	}
}

// Store holds entries newest first. With a path it persists to one JSON
// document keyed by identity.
type Store struct {
	path string

	mu      sync.Mutex
	entries map[string][]Entry
}

// Open loads path. An empty path keeps entries in memory only.
func Open(path string) (*Store, error) {
	s := &Store{path: path, entries: map[string][]Entry{}}
	if path == "" {
		return s, nil
	}
	if _, err := store.ReadJSONFile(path, &s.entries); err != nil {
		return nil, err
	}
	if s.entries == nil {
		s.entries = map[string][]Entry{}
	}
	return s, nil
}

// Append adds entry at the front of identity's list and evicts the oldest
// entries beyond MaxEntries.
func (s *Store) Append(_ context.Context, identity string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.entries[identity]
	next := make([]Entry, 0, min(len(current)+1, MaxEntries))
	next = append(next, entry)
	next = append(next, current...)
	if len(next) > MaxEntries {
		next = next[:MaxEntries]
	}
	s.entries[identity] = next
	return s.persistLocked()
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns every entry.
func (s *Store) List(_ context.Context, identity string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.entries[identity]
	if limit <= 0 || limit > len(current) {
		limit = len(current)
	}
	out := make([]Entry, limit)
	copy(out, current[:limit])
	return out, nil
}

func (s *Store) Clear(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[identity]; !ok {
		return nil
	}
	delete(s.entries, identity)
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	return store.WriteJSONFile(s.path, s.entries)
}
