package curator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/dealshelf/curator/engine/catalog"
	"github.com/dealshelf/curator/engine/feed"
	"github.com/dealshelf/curator/engine/normalize"
	"github.com/dealshelf/curator/engine/rank"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var records = []catalog.Record{
	{"id": "a1", "name": "Noise cancelling headphones", "price": 249, "giftScore": 9, "link": "https://www.amazon.nl/dp/a1"},
	{"id": "b1", "name": "Espresso machine", "price": 120, "giftScore": 7.5, "link": "https://www.bol.com/nl/p/b1"},
	{"id": "c1", "name": "Scented candle", "price": 19, "giftScore": 6, "link": "https://www.coolblue.nl/product/c1"},
}

type countingFeed struct {
	loads atomic.Int32
}

func (c *countingFeed) registration() feed.Registration {
	return feed.Register(feed.Func("test", func(context.Context) ([]catalog.Record, error) {
		c.loads.Add(1)
		return records, nil
	}), normalize.Generic(""))
}

type fakeConn struct {
	published []*nats.Msg
	handler   nats.MsgHandler
	err       error
}

func (f *fakeConn) PublishMsg(m *nats.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, m)
	return nil
}

func (f *fakeConn) Subscribe(_ string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.handler = cb
	return nil, nil
}

type countingCache struct{ n int }

func (c *countingCache) Invalidate() { c.n++ }

func newService(t *testing.T, opts Options) (*Service, *countingFeed, *feed.Aggregator) {
	t.Helper()
	cf := &countingFeed{}
	agg := feed.NewAggregator([]feed.Registration{cf.registration()}, feed.Options{Logger: quiet()})
	if opts.Logger == nil {
		opts.Logger = quiet()
	}
	s, err := New(agg, opts)
	if err != nil {
		t.Fatal(err)
	}
	return s, cf, agg
}

func TestTopDealsLoadsOnce(t *testing.T) {
	s, cf, _ := newService(t, Options{})
	ctx := context.Background()

	if _, ok := s.LastReport(); ok {
		t.Fatal("no report expected before the first load")
	}
	sel := s.TopDeals(ctx, 3)
	if len(sel.Items) != 3 {
		t.Fatalf("expected 3 items, got %v", sel.IDs())
	}
	s.TopDeals(ctx, 3)
	if n := cf.loads.Load(); n != 1 {
		t.Fatalf("expected one feed load, got %d", n)
	}
	r, ok := s.LastReport()
	if !ok || r.Total != 3 {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestTopDealsDefaultsAndCapsK(t *testing.T) {
	s, _, _ := newService(t, Options{})
	ctx := context.Background()

	if got := len(s.TopDeals(ctx, 0).Items); got != rank.DefaultConstraints().K {
		t.Fatalf("k=0 returned %d items", got)
	}
	if got := len(s.TopDeals(ctx, 1000).Items); got > MaxK {
		t.Fatalf("k above MaxK returned %d items", got)
	}
}

func TestDealOfWeekPremium(t *testing.T) {
	s, _, _ := newService(t, Options{})
	p := s.DealOfWeek(context.Background())
	if p.Tier != rank.TierPremium || p.Item.ID != "a1" {
		t.Fatalf("unexpected pick %+v", p)
	}
}

func TestShelves(t *testing.T) {
	s, _, _ := newService(t, Options{})
	shelves := s.Shelves(context.Background())
	if len(shelves) != 3 {
		t.Fatalf("expected 3 shelves, got %d", len(shelves))
	}
	for _, sh := range shelves {
		if len(sh.Items) == 0 {
			t.Fatalf("shelf %q is empty", sh.Title)
		}
	}
}

func TestProductsByDomain(t *testing.T) {
	s, _, _ := newService(t, Options{})
	ctx := context.Background()
	if got := s.Products(ctx, ""); len(got) != 3 {
		t.Fatalf("expected 3 products, got %d", len(got))
	}
	got := s.Products(ctx, "bol")
	if len(got) != 1 || got[0].ID != "b1" {
		t.Fatalf("unexpected bol products %+v", got)
	}
	if got := s.Products(ctx, "nowhere"); len(got) != 0 {
		t.Fatalf("unknown domain should match nothing, got %+v", got)
	}
}

func TestProductsByFeed(t *testing.T) {
	s, _, _ := newService(t, Options{})
	ctx := context.Background()
	if got := s.ProductsByFeed(ctx, "test"); len(got) != 3 {
		t.Fatalf("expected 3 products from feed test, got %d", len(got))
	}
	if got := s.ProductsByFeed(ctx, "other"); len(got) != 0 {
		t.Fatalf("unknown feed should match nothing, got %+v", got)
	}
}

func TestInvalidateClearsAndBroadcasts(t *testing.T) {
	fc := &fakeConn{}
	cache := &countingCache{}
	s, cf, agg := newService(t, Options{NATS: fc, Caches: []Invalidator{cache}, Origin: "node-a"})
	ctx := context.Background()

	s.TopDeals(ctx, 3)
	if err := s.Invalidate(ctx, "manual"); err != nil {
		t.Fatal(err)
	}
	if agg.Loaded() {
		t.Fatal("cache should be empty after Invalidate")
	}
	if cache.n != 1 {
		t.Fatalf("dependent cache invalidated %d times", cache.n)
	}
	if len(fc.published) != 1 || fc.published[0].Subject != InvalidateSubject {
		t.Fatalf("unexpected broadcasts %+v", fc.published)
	}
	var m Invalidation
	if err := json.Unmarshal(fc.published[0].Data, &m); err != nil || m.Origin != "node-a" || m.Reason != "manual" {
		t.Fatalf("unexpected message %+v (%v)", m, err)
	}

	s.TopDeals(ctx, 3)
	if n := cf.loads.Load(); n != 2 {
		t.Fatalf("expected a reload after Invalidate, got %d loads", n)
	}
}

func TestInvalidateBroadcastFailureStillClears(t *testing.T) {
	fc := &fakeConn{err: errors.New("nats closed")}
	s, _, agg := newService(t, Options{NATS: fc})
	s.Refresh(context.Background())
	if err := s.Invalidate(context.Background(), ""); err == nil {
		t.Fatal("expected broadcast error")
	}
	if agg.Loaded() {
		t.Fatal("local cache should be cleared despite the broadcast error")
	}
}

func TestListenAppliesRemoteInvalidations(t *testing.T) {
	fc := &fakeConn{}
	s, _, agg := newService(t, Options{NATS: fc, Origin: "node-a"})
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	deliver := func(origin string) {
		data, _ := json.Marshal(Invalidation{Origin: origin})
		fc.handler(&nats.Msg{Subject: InvalidateSubject, Data: data})
	}

	s.Refresh(context.Background())
	deliver("node-a")
	if !agg.Loaded() {
		t.Fatal("own invalidation should be ignored")
	}
	deliver("node-b")
	if agg.Loaded() {
		t.Fatal("remote invalidation should clear the cache")
	}
}

func TestListenWithoutNATS(t *testing.T) {
	s, _, _ := newService(t, Options{})
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}
	if err := s.Invalidate(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewRejectsInvalidConstraints(t *testing.T) {
	bad := rank.DefaultConstraints()
	bad.DomainFloor = -1
	agg := feed.NewAggregator(nil, feed.Options{Logger: quiet()})
	if _, err := New(agg, Options{Constraints: &bad}); !errors.Is(err, rank.ErrInvalidFloor) {
		t.Fatalf("expected ErrInvalidFloor, got %v", err)
	}
}
