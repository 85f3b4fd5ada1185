// Package favorites keeps the user's saved items, newest first, in a single
// JSON value of a key-value store.
package favorites

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/TobiSchelling/adhara/internal/model"
)

// StorageKey is the key holding the serialized collection.
const StorageKey = "adhara_favorites"

// KV is the durable storage the store persists to.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Store is the favorites collection. It is read once at Open and written
// through on every mutation.
type Store struct {
	mu      sync.Mutex
	kv      KV
	entries []model.FavoriteEntry
}

// Open loads the collection from kv. A missing, unreadable or corrupt value
// yields an empty collection.
func Open(kv KV) *Store {
	s := &Store{kv: kv}

	raw, ok, err := kv.Get(StorageKey)
	if err != nil {
		log.Warn("favorites unreadable, starting empty", "err", err)
		return s
	}
	if !ok || raw == "" {
		return s
	}

	var entries []model.FavoriteEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		log.Warn("favorites corrupt, starting empty", "err", err)
		return s
	}
	s.entries = dedupe(entries)
	log.Debug("favorites loaded", "count", len(s.entries))
	return s
}

// Toggle saves item with its insight, or removes it if an entry for the same
// date exists. A nil insight is a no-op: an item without enrichment cannot be
// favorited. The returned bool reports whether the date is favorited after
// the call.
func (s *Store) Toggle(item model.FeedItem, insight *model.Insight) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if insight == nil {
		return s.indexOf(item.Date) >= 0, nil
	}

	next, added := toggled(s.entries, item, *insight)
	if err := s.persist(next); err != nil {
		return s.indexOf(item.Date) >= 0, err
	}
	s.entries = next

	log.Info("favorite toggled", "date", item.Date, "favorited", added, "count", len(next))
	return added, nil
}

// Remove deletes the entry for date. It reports whether an entry existed.
func (s *Store) Remove(date string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(date)
	if i < 0 {
		return false, nil
	}
	next := make([]model.FavoriteEntry, 0, len(s.entries)-1)
	next = append(next, s.entries[:i]...)
	next = append(next, s.entries[i+1:]...)
	if err := s.persist(next); err != nil {
		return false, err
	}
	s.entries = next
	return true, nil
}

// Clear drops every entry and removes the stored value. It returns the number
// of entries removed.
func (s *Store) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(StorageKey); err != nil {
		return 0, fmt.Errorf("clearing favorites: %w", err)
	}
	n := len(s.entries)
	s.entries = nil
	log.Info("favorites cleared", "count", n)
	return n, nil
}

// IsFavorited reports whether an entry exists for date.
func (s *Store) IsFavorited(date string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(date) >= 0
}

// Get returns the entry saved for date.
func (s *Store) Get(date string) (model.FavoriteEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(date); i >= 0 {
		return s.entries[i], true
	}
	return model.FavoriteEntry{}, false
}

// List returns a copy of the collection, newest first.
func (s *Store) List() []model.FavoriteEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.FavoriteEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) indexOf(date string) int {
	for i, e := range s.entries {
		if e.Item.Date == date {
			return i
		}
	}
	return -1
}

func (s *Store) persist(entries []model.FavoriteEntry) error {
	if entries == nil {
		entries = []model.FavoriteEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding favorites: %w", err)
	}
	if err := s.kv.Set(StorageKey, string(data)); err != nil {
		return fmt.Errorf("saving favorites: %w", err)
	}
	return nil
}

// toggled returns the collection after toggling item and whether it was added.
func toggled(entries []model.FavoriteEntry, item model.FeedItem, insight model.Insight) ([]model.FavoriteEntry, bool) {
	next := make([]model.FavoriteEntry, 0, len(entries)+1)
	found := false
	for _, e := range entries {
		if e.Item.Date == item.Date {
			found = true
			continue
		}
		next = append(next, e)
	}
	if found {
		return next, false
	}
	return append([]model.FavoriteEntry{{Item: item, Insight: insight}}, next...), true
}

// dedupe keeps the first (newest) entry per date.
func dedupe(entries []model.FavoriteEntry) []model.FavoriteEntry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]model.FavoriteEntry, 0, len(entries))
	for _, e := range entries {
		if e.Item.Date == "" {
			continue
		}
		if _, ok := seen[e.Item.Date]; ok {
			continue
		}
		seen[e.Item.Date] = struct{}{}
		out = append(out, e)
	}
	return out
}
