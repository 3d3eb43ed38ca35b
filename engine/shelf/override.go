package shelf

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/dealshelf/curator/engine/catalog"
	"github.com/dealshelf/curator/pkg/repo"
)

// OverrideLabel is the node label for manual shelf overrides.
const OverrideLabel = "ShelfOverride"

// OverrideRecord is one stored override. Position orders shelves in the
// config document.
type OverrideRecord struct {
	Title    string   `json:"title"`
	ItemIDs  []string `json:"itemIds"`
	Position int      `json:"position"`
}

// NewNeo4jOverrides returns a repository of (:ShelfOverride) nodes keyed by
// title.
func NewNeo4jOverrides(driver neo4j.DriverWithContext, opts ...repo.Neo4jOption[OverrideRecord, string]) *repo.Neo4jRepo[OverrideRecord, string] {
	opts = append([]repo.Neo4jOption[OverrideRecord, string]{repo.WithIDKey[OverrideRecord, string]("title")}, opts...)
	return repo.NewNeo4jRepo[OverrideRecord, string](driver, OverrideLabel, overrideProps, overrideFromRecord, opts...)
}

func overrideProps(r OverrideRecord) map[string]any {
	ids := r.ItemIDs
	if ids == nil {
		ids = []string{}
	}
	return map[string]any{"title": r.Title, "item_ids": ids, "position": int64(r.Position)}
}

func overrideFromRecord(rec *neo4j.Record) (OverrideRecord, error) {
	props, err := repo.NodeProps(rec)
	if err != nil {
		return OverrideRecord{}, err
	}
	title, ok := props["title"].(string)
	if !ok || title == "" {
		return OverrideRecord{}, fmt.Errorf("shelf: override without title")
	}
	out := OverrideRecord{Title: title}
	switch ids := props["item_ids"].(type) {
	case []string:
		out.ItemIDs = append(out.ItemIDs, ids...)
	case []any:
		for _, v := range ids {
			if s, ok := v.(string); ok {
				out.ItemIDs = append(out.ItemIDs, s)
			}
		}
	}
	switch p := props["position"].(type) {
	case int64:
		out.Position = int(p)
	case int:
		out.Position = p
	case float64:
		out.Position = int(p)
	}
	return out, nil
}

// OverrideStore serves the shelf configuration from a repository and caches
// it until Invalidate is called or the store is written to.
type OverrideStore struct {
	repo repo.Repository[OverrideRecord, string]
	log  *slog.Logger

	mu     sync.Mutex
	cached *catalog.ShelfConfig
}

// NewOverrideStore wraps r. A nil logger means slog.Default().
func NewOverrideStore(r repo.Repository[OverrideRecord, string], log *slog.Logger) *OverrideStore {
	if log == nil {
		log = slog.Default()
	}
	return &OverrideStore{repo: r, log: log}
}

var _ OverrideSource = (*OverrideStore)(nil)

// LoadShelfConfig returns the cached config, loading it on first use. Errors
// are not cached.
func (s *OverrideStore) LoadShelfConfig(ctx context.Context) (catalog.ShelfConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return cloneConfig(*s.cached), nil
	}

	recs, err := s.repo.List(ctx, repo.ListOpts{OrderBy: "position", Limit: 500})
	if err != nil {
		return catalog.ShelfConfig{}, fmt.Errorf("shelf: load overrides: %w", err)
	}
	cfg := catalog.ShelfConfig{Categories: make([]catalog.ShelfOverride, 0, len(recs))}
	for _, r := range recs {
		cfg.Categories = append(cfg.Categories, catalog.ShelfOverride{Title: r.Title, ItemIDs: r.ItemIDs})
	}
	s.cached = &cfg
	s.log.Debug("shelf overrides loaded", "count", len(recs))
	return cloneConfig(cfg), nil
}

// Save stores an override and drops the cache.
func (s *OverrideStore) Save(ctx context.Context, r OverrideRecord) error {
	if r.Title == "" {
		return fmt.Errorf("shelf: override title is required")
	}
	if _, err := s.repo.Upsert(ctx, r); err != nil {
		return fmt.Errorf("shelf: save override %q: %w", r.Title, err)
	}
	s.Invalidate()
	return nil
}

// Remove deletes the override for title and drops the cache.
func (s *OverrideStore) Remove(ctx context.Context, title string) error {
	if err := s.repo.Delete(ctx, title); err != nil {
		return fmt.Errorf("shelf: remove override %q: %w", title, err)
	}
	s.Invalidate()
	return nil
}

// Invalidate drops the cached config.
func (s *OverrideStore) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func cloneConfig(c catalog.ShelfConfig) catalog.ShelfConfig {
	out := catalog.ShelfConfig{Categories: make([]catalog.ShelfOverride, len(c.Categories))}
	for i, o := range c.Categories {
		out.Categories[i] = catalog.ShelfOverride{Title: o.Title, ItemIDs: append([]string(nil), o.ItemIDs...)}
	}
	return out
}
