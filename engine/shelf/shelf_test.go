package shelf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dealshelf/curator/engine/catalog"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func item(id, word string, gift, price float64) catalog.Item {
	return catalog.Item{
		ID: id, Source: "test", Name: word + " " + id, Price: price,
		GiftScore: catalog.Float(gift), AffiliateLink: "https://www.amazon.nl/dp/" + id,
	}
}

type staticOverrides struct {
	cfg catalog.ShelfConfig
	err error
}

func (s staticOverrides) LoadShelfConfig(context.Context) (catalog.ShelfConfig, error) {
	return s.cfg, s.err
}

type staticPinned struct {
	live   []catalog.PinnedEntry
	cached []catalog.PinnedEntry
	err    error
}

func (s staticPinned) Pinned(context.Context) ([]catalog.PinnedEntry, error) { return s.live, s.err }
func (s staticPinned) Cached() []catalog.PinnedEntry { return s.cached }

func ids(s catalog.Shelf) []string {
	out := make([]string, len(s.Items))
	for i, it := range s.Items {
		out[i] = it.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func byTitle(t *testing.T, shelves []catalog.Shelf, title string) catalog.Shelf {
	t.Helper()
	for _, s := range shelves {
		if s.Title == title {
			return s
		}
	}
	t.Fatalf("shelf %q missing", title)
	return catalog.Shelf{}
}

const (
	techShelf      = "Top Tech Gadgets"
	kitchenShelf   = "Best Kitchen Accessories"
	lifestyleShelf = "Popular Lifestyle Products"
)

func sample() []catalog.Item {
	return []catalog.Item{
		item("t1", "laptop", 7, 500),
		item("t2", "laptop", 9, 800),
		item("t3", "laptop", 8, 90),
		item("k1", "blender", 6, 60),
		item("k2", "blender", 8.5, 120),
		item("l1", "candle", 5, 20),
	}
}

func TestBuildHeuristicGroupsByBucketAndScore(t *testing.T) {
	shelves := NewBuilder(Options{Logger: quiet()}).Build(context.Background(), sample())
	if len(shelves) != 3 {
		t.Fatalf("expected 3 shelves, got %d", len(shelves))
	}
	if got := ids(byTitle(t, shelves, techShelf)); !equal(got, []string{"t2", "t3", "t1"}) {
		t.Fatalf("tech shelf = %v", got)
	}
	if got := ids(byTitle(t, shelves, kitchenShelf)); !equal(got, []string{"k2", "k1"}) {
		t.Fatalf("kitchen shelf = %v", got)
	}
	if got := ids(byTitle(t, shelves, lifestyleShelf)); !equal(got, []string{"l1"}) {
		t.Fatalf("lifestyle shelf = %v", got)
	}
}

func TestBuildHonoursLimitAndPriceBand(t *testing.T) {
	specs := []Spec{{Title: "Cheap tech", Buckets: []catalog.Bucket{catalog.BucketTech}, MaxPrice: 600, Limit: 1}}
	shelves := NewBuilder(Options{Specs: specs, Logger: quiet()}).Build(context.Background(), sample())
	if got := ids(shelves[0]); !equal(got, []string{"t3"}) {
		t.Fatalf("shelf = %v, want [t3]", got)
	}
}

func TestBuildOverrideTakesPrecedence(t *testing.T) {
	cfg := catalog.ShelfConfig{Categories: []catalog.ShelfOverride{
		{Title: techShelf, ItemIDs: []string{"k2", "missing", "top-06"}},
	}}
	shelves := NewBuilder(Options{Overrides: staticOverrides{cfg: cfg}, Logger: quiet()}).
		Build(context.Background(), sample())

	if got := ids(byTitle(t, shelves, techShelf)); !equal(got, []string{"k2", "top-06"}) {
		t.Fatalf("tech shelf = %v", got)
	}
	if got := ids(byTitle(t, shelves, kitchenShelf)); !equal(got, []string{"k1"}) {
		t.Fatalf("kitchen shelf should lose k2 to the override, got %v", got)
	}
}

func TestBuildOverrideWithOnlyUnknownIDsFallsBackToHeuristic(t *testing.T) {
	cfg := catalog.ShelfConfig{Categories: []catalog.ShelfOverride{{Title: kitchenShelf, ItemIDs: []string{"nope"}}}}
	shelves := NewBuilder(Options{Overrides: staticOverrides{cfg: cfg}, Logger: quiet()}).
		Build(context.Background(), sample())
	if got := ids(byTitle(t, shelves, kitchenShelf)); !equal(got, []string{"k2", "k1"}) {
		t.Fatalf("kitchen shelf = %v", got)
	}
}

func TestBuildOverrideErrorIsIgnored(t *testing.T) {
	shelves := NewBuilder(Options{Overrides: staticOverrides{err: errors.New("neo4j down")}, Logger: quiet()}).
		Build(context.Background(), sample())
	if got := ids(byTitle(t, shelves, techShelf)); !equal(got, []string{"t2", "t3", "t1"}) {
		t.Fatalf("tech shelf = %v", got)
	}
}

func TestBuildPinnedComeFirst(t *testing.T) {
	pin := catalog.PinnedEntry{ID: "p1", Deal: item("p1", "laptop", 1, 50)}
	shelves := NewBuilder(Options{Pinned: staticPinned{live: []catalog.PinnedEntry{pin}}, Logger: quiet()}).
		Build(context.Background(), sample())
	if got := ids(byTitle(t, shelves, techShelf)); !equal(got, []string{"p1", "t2", "t3", "t1"}) {
		t.Fatalf("tech shelf = %v", got)
	}
}

func TestBuildPinnedErrorUsesCache(t *testing.T) {
	pin := catalog.PinnedEntry{ID: "p9", Deal: item("p9", "blender", 1, 50)}
	src := staticPinned{err: errors.New("pg down"), cached: []catalog.PinnedEntry{pin}}
	shelves := NewBuilder(Options{Pinned: src, Logger: quiet()}).Build(context.Background(), sample())
	if got := ids(byTitle(t, shelves, kitchenShelf)); len(got) == 0 || got[0] != "p9" {
		t.Fatalf("kitchen shelf = %v, want p9 first", got)
	}
}

func TestBuildOverrideResolvesPinnedItems(t *testing.T) {
	pin := catalog.PinnedEntry{ID: "p2", Deal: item("p2", "candle", 3, 15)}
	cfg := catalog.ShelfConfig{Categories: []catalog.ShelfOverride{{Title: techShelf, ItemIDs: []string{"p2"}}}}
	shelves := NewBuilder(Options{
		Overrides: staticOverrides{cfg: cfg},
		Pinned:    staticPinned{live: []catalog.PinnedEntry{pin}},
		Logger:    quiet(),
	}).Build(context.Background(), sample())
	if got := ids(byTitle(t, shelves, techShelf)); !equal(got, []string{"p2"}) {
		t.Fatalf("tech shelf = %v", got)
	}
	for _, it := range byTitle(t, shelves, lifestyleShelf).Items {
		if it.ID == "p2" {
			t.Fatal("pinned item placed on two shelves")
		}
	}
}

func TestBuildNeverReusesAnItem(t *testing.T) {
	cfg := catalog.ShelfConfig{Categories: []catalog.ShelfOverride{
		{Title: techShelf, ItemIDs: []string{"t1", "k1"}},
		{Title: kitchenShelf, ItemIDs: []string{"k1", "k2"}},
	}}
	shelves := NewBuilder(Options{Overrides: staticOverrides{cfg: cfg}, Logger: quiet()}).
		Build(context.Background(), sample())
	seen := map[string]string{}
	for _, s := range shelves {
		for _, it := range s.Items {
			if prev, ok := seen[it.Key()]; ok {
				t.Fatalf("%s on %q and %q", it.Key(), prev, s.Title)
			}
			seen[it.Key()] = s.Title
		}
	}
	if got := ids(byTitle(t, shelves, kitchenShelf)); !equal(got, []string{"k2"}) {
		t.Fatalf("kitchen shelf = %v", got)
	}
}

func TestBuildEmptyShelvesFilledFromFallback(t *testing.T) {
	shelves := NewBuilder(Options{Logger: quiet()}).Build(context.Background(), nil)
	seen := map[string]bool{}
	for _, s := range shelves {
		if len(s.Items) == 0 {
			t.Fatalf("shelf %q is empty", s.Title)
		}
		for _, it := range s.Items {
			if it.Source != "fallback" {
				t.Fatalf("unexpected source %q", it.Source)
			}
			if seen[it.ID] {
				t.Fatalf("%s reused", it.ID)
			}
			seen[it.ID] = true
		}
	}
}

func TestBuildReturnsCopies(t *testing.T) {
	items := sample()
	shelves := NewBuilder(Options{Logger: quiet()}).Build(context.Background(), items)
	*byTitle(t, shelves, techShelf).Items[0].GiftScore = 0
	if *items[1].GiftScore != 9 {
		t.Fatal("shelf items share state with input")
	}
}

func TestSpecsDefault(t *testing.T) {
	specs := NewBuilder(Options{}).Specs()
	if len(specs) != 3 || specs[0].Title != techShelf || specs[0].limit() != DefaultLimit {
		t.Fatalf("unexpected default specs %+v", specs)
	}
}

func TestKeywordShelf(t *testing.T) {
	items := []catalog.Item{
		item("e1", "espresso", 8, 120),
		item("e2", "Espresso", 6, 90),
		item("k1", "blender", 9, 60),
		item("t1", "laptop", 9, 500),
	}
	b := NewBuilder(Options{Specs: []Spec{{Title: "Coffee Corner", Keywords: []string{" Espresso "}}}, Logger: quiet()})

	spec := b.Specs()[0]
	if len(spec.Buckets) != 1 || spec.Buckets[0] != catalog.BucketKitchen {
		t.Fatalf("buckets should come from the keywords, got %v", spec.Buckets)
	}
	if !equal(spec.Keywords, []string{"espresso"}) {
		t.Fatalf("keywords should be normalized, got %q", spec.Keywords)
	}

	shelves := b.Build(context.Background(), items)
	got := shelves[0]
	if len(got.Items) != 2 {
		t.Fatalf("expected the two espresso items, got %v", ids(got))
	}
	for _, it := range got.Items {
		if !strings.Contains(strings.ToLower(it.Name), "espresso") {
			t.Fatalf("%s does not mention the keyword", it.ID)
		}
	}
}

func TestBucketsFromTitle(t *testing.T) {
	b := NewBuilder(Options{Specs: []Spec{
		{Title: "Camping Gear"},
		{Title: "Odds and Ends"},
		{Title: "Explicit", Buckets: []catalog.Bucket{catalog.BucketTech}, Keywords: []string{"camping"}},
	}})
	specs := b.Specs()
	if len(specs[0].Buckets) != 1 || specs[0].Buckets[0] != catalog.BucketOutdoor {
		t.Fatalf("title should classify as outdoor, got %v", specs[0].Buckets)
	}
	if len(specs[1].Buckets) != 1 || specs[1].Buckets[0] != catalog.BucketGeneral {
		t.Fatalf("unmatched title should fall back to general, got %v", specs[1].Buckets)
	}
	if len(specs[2].Buckets) != 1 || specs[2].Buckets[0] != catalog.BucketTech {
		t.Fatalf("explicit buckets must win, got %v", specs[2].Buckets)
	}
}

func TestLoadSpecs(t *testing.T) {
	specs, err := LoadSpecs("")
	if err != nil || len(specs) != len(DefaultSpecs()) {
		t.Fatalf("empty path should give defaults: %v", err)
	}

	path := filepath.Join(t.TempDir(), "shelves.yaml")
	doc := "- title: Coffee Corner\n  keywords: [espresso, koffie]\n  max_price: 150\n  limit: 4\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	specs, err = LoadSpecs(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 1 || specs[0].MaxPrice != 150 || specs[0].Limit != 4 || len(specs[0].Keywords) != 2 {
		t.Fatalf("unexpected specs %+v", specs)
	}

	if _, err := ParseSpecs([]byte("- limit: 3\n")); err == nil {
		t.Fatal("expected an error for a spec without title")
	}
	if _, err := LoadSpecs(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
