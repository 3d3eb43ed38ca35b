// Package pinned stores deals an editor pinned to the shelves and caches them
// in-process. Load failures never surface to readers.
package pinned

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dealshelf/curator/engine/catalog"
	"github.com/dealshelf/curator/engine/normalize"
)

// ErrEmptyID is returned by Unpin for a blank id.
var ErrEmptyID = errors.New("pinned: empty id")

// Backend persists pinned entries.
type Backend interface {
	List(ctx context.Context) ([]catalog.PinnedEntry, error)
	Put(ctx context.Context, e catalog.PinnedEntry) error
	Delete(ctx context.Context, id string) error
}

// Store caches a Backend. The zero value is not usable; call NewStore.
type Store struct {
	backend Backend
	log     *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	cache  []catalog.PinnedEntry
	loaded bool
}

// NewStore wraps b. A nil logger means slog.Default().
func NewStore(b Backend, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{backend: b, log: log, now: time.Now}
}

// Pin stores it, newest first. Items without an id get one derived from
// their name and link.
func (s *Store) Pin(ctx context.Context, it catalog.Item) (catalog.PinnedEntry, error) {
	if it.ID == "" {
		it.ID = normalize.DeriveID("pinned", it.Name, it.AffiliateLink)
	}
	e := catalog.PinnedEntry{ID: it.ID, Deal: it.Clone(), PinnedAt: s.now().UTC()}
	if err := s.backend.Put(ctx, e); err != nil {
		return catalog.PinnedEntry{}, fmt.Errorf("pinned: pin %s: %w", e.ID, err)
	}
	s.Invalidate()
	s.log.Info("deal pinned", "id", e.ID)
	return e, nil
}

// Unpin removes the entry with id.
func (s *Store) Unpin(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if err := s.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("pinned: unpin %s: %w", id, err)
	}
	s.Invalidate()
	s.log.Info("deal unpinned", "id", id)
	return nil
}

// Pinned returns the pinned entries, reading the backend once per cache
// generation. On error it returns the last good entries with the error.
func (s *Store) Pinned(ctx context.Context) ([]catalog.PinnedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return clone(s.cache), nil
	}
	entries, err := s.backend.List(ctx)
	if err != nil {
		return clone(s.cache), fmt.Errorf("pinned: load: %w", err)
	}
	s.cache = entries
	s.loaded = true
	return clone(entries), nil
}

// Load is Pinned with errors logged and replaced by an empty list.
func (s *Store) Load(ctx context.Context) []catalog.PinnedEntry {
	entries, err := s.Pinned(ctx)
	if err != nil {
		s.log.Warn("pinned deals unavailable", "error", err)
		return []catalog.PinnedEntry{}
	}
	return entries
}

// Cached returns the last loaded entries without I/O.
func (s *Store) Cached() []catalog.PinnedEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.cache)
}

// Invalidate forces the next read to hit the backend. Cached keeps serving
// the previous entries until then.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
}

func clone(in []catalog.PinnedEntry) []catalog.PinnedEntry {
	out := make([]catalog.PinnedEntry, len(in))
	for i, e := range in {
		out[i] = catalog.PinnedEntry{ID: e.ID, Deal: e.Deal.Clone(), PinnedAt: e.PinnedAt}
	}
	return out
}
