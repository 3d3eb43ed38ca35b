// Package shelf groups items into named category shelves. Manual overrides
// win over pinned items, which win over the keyword heuristic; no item is
// placed on two shelves and no shelf is returned empty.
package shelf

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dealshelf/curator/engine/catalog"
	"github.com/dealshelf/curator/engine/classify"
	"github.com/dealshelf/curator/engine/fallback"
	"github.com/dealshelf/curator/engine/rank"
)

// DefaultLimit caps heuristic and pinned shelves.
const DefaultLimit = 6

// Spec describes one shelf. MaxPrice and Limit of zero mean unbounded and
// DefaultLimit. When Keywords is set, heuristic picks must mention at least
// one of them. A spec without Buckets takes them from its keywords, or from
// its title when it has none.
type Spec struct {
	Title    string           `json:"title" yaml:"title"`
	Buckets  []catalog.Bucket `json:"buckets" yaml:"buckets"`
	Keywords []string         `json:"keywords,omitempty" yaml:"keywords"`
	MinPrice float64          `json:"minPrice,omitempty" yaml:"min_price"`
	MaxPrice float64          `json:"maxPrice,omitempty" yaml:"max_price"`
	MinScore float64          `json:"minScore,omitempty" yaml:"min_score"`
	Limit    int              `json:"limit,omitempty" yaml:"limit"`
}

// DefaultSpecs returns the standard shelves.
func DefaultSpecs() []Spec {
	return []Spec{
		{Title: "Top Tech Gadgets", Buckets: []catalog.Bucket{catalog.BucketTech, catalog.BucketSmartHome, catalog.BucketGaming}},
		{Title: "Best Kitchen Accessories", Buckets: []catalog.Bucket{catalog.BucketKitchen}},
		{Title: "Popular Lifestyle Products", Buckets: []catalog.Bucket{
			catalog.BucketLifestyle, catalog.BucketBeauty, catalog.BucketWellness, catalog.BucketOutdoor,
		}},
	}
}

// ParseSpecs decodes a YAML list of shelf specs.
func ParseSpecs(data []byte) ([]Spec, error) {
	var specs []Spec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("shelf: parse specs: %w", err)
	}
	for i, s := range specs {
		if strings.TrimSpace(s.Title) == "" {
			return nil, fmt.Errorf("shelf: spec %d has no title", i)
		}
	}
	return specs, nil
}

// LoadSpecs reads a YAML shelf file. An empty path yields DefaultSpecs.
func LoadSpecs(path string) ([]Spec, error) {
	if path == "" {
		return DefaultSpecs(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shelf: read specs: %w", err)
	}
	return ParseSpecs(data)
}

// resolved lowercases the keywords and fills in missing buckets.
func (s Spec) resolved() Spec {
	var kws []string
	for _, kw := range s.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			kws = append(kws, kw)
		}
	}
	s.Keywords = kws
	if len(s.Buckets) > 0 {
		s.Buckets = slices.Clone(s.Buckets)
		return s
	}
	var buckets []catalog.Bucket
	for _, kw := range kws {
		if b := classify.ClassifyText(kw); b != catalog.BucketGeneral && !slices.Contains(buckets, b) {
			buckets = append(buckets, b)
		}
	}
	if len(buckets) == 0 {
		buckets = []catalog.Bucket{classify.ClassifyText(s.Title)}
	}
	s.Buckets = buckets
	return s
}

func (s Spec) mentions(it catalog.Item) bool {
	if len(s.Keywords) == 0 {
		return true
	}
	hay := classify.Haystack(it)
	for _, kw := range s.Keywords {
		if strings.Contains(hay, kw) {
			return true
		}
	}
	return false
}

func (s Spec) limit() int {
	if s.Limit <= 0 {
		return DefaultLimit
	}
	return s.Limit
}

func (s Spec) wants(b catalog.Bucket) bool {
	return slices.Contains(s.Buckets, b)
}

func (s Spec) accepts(m catalog.ScoreMeta) bool {
	if !s.wants(m.Bucket) {
		return false
	}
	if m.Price < s.MinPrice {
		return false
	}
	if s.MaxPrice > 0 && m.Price > s.MaxPrice {
		return false
	}
	if m.Score < s.MinScore {
		return false
	}
	return s.mentions(m.Item)
}

// OverrideSource supplies the manual shelf configuration.
type OverrideSource interface {
	LoadShelfConfig(ctx context.Context) (catalog.ShelfConfig, error)
}

// PinnedSource supplies editor-pinned deals. Cached returns the last
// successful load without I/O.
type PinnedSource interface {
	Pinned(ctx context.Context) ([]catalog.PinnedEntry, error)
	Cached() []catalog.PinnedEntry
}

// Options configures a Builder. Nil collaborators are skipped.
type Options struct {
	Specs     []Spec
	Overrides OverrideSource
	Pinned    PinnedSource
	Logger    *slog.Logger
}

// Builder assembles shelves from a ranked item set.
type Builder struct {
	specs     []Spec
	overrides OverrideSource
	pinned    PinnedSource
	log       *slog.Logger
}

// NewBuilder returns a Builder using DefaultSpecs when opts.Specs is empty.
func NewBuilder(opts Options) *Builder {
	src := opts.Specs
	if len(src) == 0 {
		src = DefaultSpecs()
	}
	specs := make([]Spec, len(src))
	for i, s := range src {
		specs[i] = s.resolved()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Builder{specs: specs, overrides: opts.Overrides, pinned: opts.Pinned, log: log}
}

// Specs returns the shelves the builder produces, in order.
func (b *Builder) Specs() []Spec {
	return slices.Clone(b.specs)
}

// Build groups items into one shelf per spec, in spec order.
func (b *Builder) Build(ctx context.Context, items []catalog.Item) []catalog.Shelf {
	cfg := b.loadConfig(ctx)
	pinned := b.loadPinned(ctx)
	backup := fallback.Items()

	lookup := make(map[string]catalog.Item, len(items)+len(pinned)+len(backup))
	remember := func(it catalog.Item) {
		if _, ok := lookup[it.ID]; !ok {
			lookup[it.ID] = it
		}
	}
	for _, it := range items {
		remember(it)
	}
	for _, p := range pinned {
		remember(p.Deal)
	}
	for _, it := range backup {
		remember(it)
	}

	metas := metasOf(items)
	pinnedMetas := make([]catalog.ScoreMeta, 0, len(pinned))
	for _, p := range pinned {
		pinnedMetas = append(pinnedMetas, rank.Meta(p.Deal))
	}
	backupMetas := metasOf(backup)

	used := make(map[string]bool)
	shelves := make([]catalog.Shelf, 0, len(b.specs))
	for _, spec := range b.specs {
		var picked []catalog.Item
		take := func(it catalog.Item) {
			used[it.Key()] = true
			picked = append(picked, it.Clone())
		}

		if o, ok := cfg.Lookup(spec.Title); ok {
			for _, id := range o.ItemIDs {
				it, ok := lookup[id]
				if !ok {
					b.log.Debug("shelf override id not found", "shelf", spec.Title, "id", id)
					continue
				}
				if !used[it.Key()] {
					take(it)
				}
			}
		}

		if len(picked) == 0 {
			for _, m := range pinnedMetas {
				if len(picked) >= spec.limit() {
					break
				}
				if spec.wants(m.Bucket) && !used[m.Item.Key()] {
					take(m.Item)
				}
			}
			for _, m := range metas {
				if len(picked) >= spec.limit() {
					break
				}
				if spec.accepts(m) && !used[m.Item.Key()] {
					take(m.Item)
				}
			}
		}

		if len(picked) == 0 {
			for _, it := range b.fill(spec, backupMetas, used) {
				take(it)
			}
		}
		shelves = append(shelves, catalog.Shelf{Title: spec.Title, Items: picked})
	}
	return shelves
}

// fill picks unused fallback items for an empty shelf. Items from other
// buckets are used only when none match.
func (b *Builder) fill(spec Spec, backup []catalog.ScoreMeta, used map[string]bool) []catalog.Item {
	b.log.Info("shelf filled from fallback", "shelf", spec.Title)
	var out []catalog.Item
	seen := make(map[string]bool)
	for pass := 0; pass < 2; pass++ {
		for _, m := range backup {
			if len(out) >= spec.limit() {
				return out
			}
			k := m.Item.Key()
			if used[k] || seen[k] || (pass == 0 && !spec.wants(m.Bucket)) {
				continue
			}
			seen[k] = true
			out = append(out, m.Item)
		}
		if len(out) > 0 {
			break
		}
	}
	return out
}

func (b *Builder) loadConfig(ctx context.Context) catalog.ShelfConfig {
	if b.overrides == nil {
		return catalog.ShelfConfig{}
	}
	cfg, err := b.overrides.LoadShelfConfig(ctx)
	if err != nil {
		b.log.Warn("shelf overrides unavailable", "error", err)
		return catalog.ShelfConfig{}
	}
	return cfg
}

func (b *Builder) loadPinned(ctx context.Context) []catalog.PinnedEntry {
	if b.pinned == nil {
		return nil
	}
	entries, err := b.pinned.Pinned(ctx)
	if err != nil {
		b.log.Warn("pinned deals unavailable, using cache", "error", err)
		return b.pinned.Cached()
	}
	return entries
}

// metasOf scores items and orders them by score desc, then key.
func metasOf(items []catalog.Item) []catalog.ScoreMeta {
	ms := make([]catalog.ScoreMeta, len(items))
	for i, it := range items {
		ms[i] = rank.Meta(it)
	}
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Score != ms[j].Score {
			return ms[i].Score > ms[j].Score
		}
		return ms[i].Item.Key() < ms[j].Item.Key()
	})
	return ms
}
