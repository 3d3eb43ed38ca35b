// Package curator is the read path of the deal engine. It owns the feed
// aggregator and answers top-deal, deal-of-week, shelf and product queries,
// loading feeds on first use. Cache invalidation is shared between instances
// over NATS when a connection is configured.
package curator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dealshelf/curator/engine/catalog"
	"github.com/dealshelf/curator/engine/feed"
	"github.com/dealshelf/curator/engine/rank"
	"github.com/dealshelf/curator/engine/shelf"
	"github.com/dealshelf/curator/pkg/natsutil"
)

// InvalidateSubject carries cache invalidations between instances.
const InvalidateSubject = "curator.cache.invalidate"

// MaxK bounds the number of top deals a caller may ask for.
const MaxK = 50

// Invalidation is the message broadcast on InvalidateSubject.
type Invalidation struct {
	Origin string    `json:"origin"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Invalidator is a dependent cache dropped whenever the feed cache is.
type Invalidator interface {
	Invalidate()
}

// Options configures a Service. Zero values select defaults.
type Options struct {
	Constraints *rank.Constraints
	Shelves     *shelf.Builder
	Caches      []Invalidator
	NATS        natsutil.Conn
	Origin      string
	Logger      *slog.Logger
}

// Service answers curation queries over a shared Aggregator.
type Service struct {
	agg     *feed.Aggregator
	cons    rank.Constraints
	shelves *shelf.Builder
	nc      natsutil.Conn
	origin  string
	log     *slog.Logger
	tracer  trace.Tracer

	mu   sync.Mutex
	last *feed.Report
	sub  *nats.Subscription
}

// New builds a Service and hooks opts.Caches into the aggregator's Clear.
func New(agg *feed.Aggregator, opts Options) (*Service, error) {
	cons := rank.DefaultConstraints()
	if opts.Constraints != nil {
		cons = *opts.Constraints
	}
	if err := cons.Validate(); err != nil {
		return nil, fmt.Errorf("curator: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	b := opts.Shelves
	if b == nil {
		b = shelf.NewBuilder(shelf.Options{Logger: log})
	}
	origin := opts.Origin
	if origin == "" {
		origin = uuid.NewString()
	}
	for _, c := range opts.Caches {
		agg.OnClear(c.Invalidate)
	}
	return &Service{
		agg:     agg,
		cons:    cons,
		shelves: b,
		nc:      opts.NATS,
		origin:  origin,
		log:     log,
		tracer:  otel.Tracer("engine/curator"),
	}, nil
}

// Constraints returns the selection constraints in use.
func (s *Service) Constraints() rank.Constraints { return s.cons }

// Refresh reloads every feed.
func (s *Service) Refresh(ctx context.Context) feed.Report {
	ctx, span := s.tracer.Start(ctx, "curator.Refresh")
	defer span.End()

	r := s.agg.Load(ctx)
	span.SetAttributes(
		attribute.Int("items", r.Total),
		attribute.Int("failed_feeds", len(r.Failed())),
	)
	s.mu.Lock()
	s.last = &r
	s.mu.Unlock()
	return r
}

// LastReport returns the report of the most recent Refresh.
func (s *Service) LastReport() (feed.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return feed.Report{}, false
	}
	return *s.last, true
}

// LoadedAt returns when the cached feed generation was loaded; zero when the
// cache is empty.
func (s *Service) LoadedAt() time.Time { return s.agg.LoadedAt() }

func (s *Service) items(ctx context.Context) []catalog.Item {
	if !s.agg.Loaded() {
		s.Refresh(ctx)
	}
	return s.agg.Products()
}

// TopDeals selects k deals; k <= 0 uses the configured K and k > MaxK is
// capped.
func (s *Service) TopDeals(ctx context.Context, k int) rank.Selection {
	ctx, span := s.tracer.Start(ctx, "curator.TopDeals")
	defer span.End()

	if k > MaxK {
		k = MaxK
	}
	sel := rank.TopK(s.items(ctx), s.cons.WithK(k))
	span.SetAttributes(
		attribute.Int("k", len(sel.Items)),
		attribute.Bool("forced", sel.Forced),
		attribute.Int("repaired", sel.Repaired),
		attribute.Int("padded", sel.Padded),
	)
	return sel
}

// DealOfWeek picks the featured deal.
func (s *Service) DealOfWeek(ctx context.Context) rank.WeekPick {
	ctx, span := s.tracer.Start(ctx, "curator.DealOfWeek")
	defer span.End()

	p := rank.PickWeek(s.items(ctx), s.cons.WeekBand)
	span.SetAttributes(attribute.String("tier", string(p.Tier)), attribute.String("id", p.Item.ID))
	return p
}

// Shelves groups the cached items into category shelves.
func (s *Service) Shelves(ctx context.Context) []catalog.Shelf {
	ctx, span := s.tracer.Start(ctx, "curator.Shelves")
	defer span.End()

	out := s.shelves.Build(ctx, s.items(ctx))
	span.SetAttributes(attribute.Int("shelves", len(out)))
	return out
}

// Products returns cached items, restricted to one vendor domain unless
// domain is empty.
func (s *Service) Products(ctx context.Context, domain string) []catalog.Item {
	ctx, span := s.tracer.Start(ctx, "curator.Products")
	defer span.End()

	all := s.items(ctx)
	if domain == "" {
		return all
	}
	span.SetAttributes(attribute.String("domain", domain))
	return s.agg.ProductsBySource(catalog.ParseDomain(domain))
}

// ProductsByFeed returns the cached items loaded from the named feed, loading
// feeds first if needed.
func (s *Service) ProductsByFeed(ctx context.Context, feed string) []catalog.Item {
	ctx, span := s.tracer.Start(ctx, "curator.ProductsByFeed", trace.WithAttributes(attribute.String("feed", feed)))
	defer span.End()

	s.items(ctx)
	return s.agg.ProductsByFeed(feed)
}

// Invalidate clears the local cache and tells other instances to do the
// same. A failed broadcast is returned after the local clear.
func (s *Service) Invalidate(ctx context.Context, reason string) error {
	ctx, span := s.tracer.Start(ctx, "curator.Invalidate")
	defer span.End()

	s.agg.Clear()
	if s.nc == nil {
		return nil
	}
	msg := Invalidation{Origin: s.origin, Reason: reason, At: time.Now().UTC()}
	if err := natsutil.Publish(ctx, s.nc, InvalidateSubject, msg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("curator: broadcast invalidation: %w", err)
	}
	return nil
}

// Listen applies invalidations from other instances until Close. It is a
// no-op without a NATS connection.
func (s *Service) Listen() error {
	if s.nc == nil {
		return nil
	}
	sub, err := natsutil.Subscribe(s.nc, InvalidateSubject, s.log, func(ctx context.Context, m Invalidation) {
		if m.Origin == s.origin {
			return
		}
		_, span := s.tracer.Start(ctx, "curator.RemoteInvalidate")
		defer span.End()
		s.log.Info("curator: remote invalidation", "origin", m.Origin, "reason", m.Reason)
		s.agg.Clear()
	})
	if err != nil {
		return fmt.Errorf("curator: subscribe %s: %w", InvalidateSubject, err)
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// Close stops Listen.
func (s *Service) Close() error {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}
