package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dealshelf/curator/engine/catalog"
	"github.com/dealshelf/curator/engine/classify"
	"github.com/dealshelf/curator/engine/normalize"
	"github.com/dealshelf/curator/pkg/fn"
	"github.com/dealshelf/curator/pkg/metrics"
)

const loadKey = "load"

// SourceOutcome is the per-feed result of one load cycle.
type SourceOutcome struct {
	Source  string `json:"source"`
	Count   int    `json:"count"`
	Dropped int    `json:"dropped"`
	Err     error  `json:"-"`
	Error   string `json:"error,omitempty"`
}

// OK reports whether the feed loaded.
func (o SourceOutcome) OK() bool { return o.Err == nil }

// Report summarises a load cycle.
type Report struct {
	Outcomes []SourceOutcome `json:"outcomes"`
	Total    int             `json:"total"`
	LoadedAt time.Time       `json:"loadedAt"`
	Duration time.Duration   `json:"duration"`
}

// Failed returns the outcomes of feeds that did not load.
func (r Report) Failed() []SourceOutcome {
	return fn.Filter(r.Outcomes, func(o SourceOutcome) bool { return !o.OK() })
}

// Options configures an Aggregator.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Registry
	Now     func() time.Time
}

// Aggregator owns the cached product generation and the in-flight load.
// Construct one per process and share it by pointer.
type Aggregator struct {
	regs []Registration
	log  *slog.Logger
	met  *metrics.Registry
	now  func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	items    []catalog.Item
	loadedAt time.Time
	epoch    uint64
	hooks    []func()
}

// NewAggregator creates an Aggregator over regs. Merge order follows regs.
func NewAggregator(regs []Registration, opts Options) *Aggregator {
	a := &Aggregator{
		regs: regs,
		log:  opts.Logger,
		met:  opts.Metrics,
		now:  opts.Now,
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.met == nil {
		a.met = metrics.New()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Load fetches every feed and replaces the cached generation. Concurrent
// callers share one in-flight load. A failing feed contributes zero items
// and never affects the others; Load itself never fails.
func (a *Aggregator) Load(ctx context.Context) Report {
	ctx = context.WithoutCancel(ctx)
	v, _, _ := a.group.Do(loadKey, func() (any, error) {
		return a.load(ctx), nil
	})
	return v.(Report)
}

type batch struct {
	items   []catalog.Item
	dropped int
}

// load captures the generation it fills once it owns the flight, so a Clear
// that lands before that point does not discard it.
func (a *Aggregator) load(ctx context.Context) Report {
	start := a.now()
	a.mu.RLock()
	epoch := a.epoch
	a.mu.RUnlock()

	loaders := fn.Map(a.regs, func(r Registration) func() fn.Result[batch] {
		return func() fn.Result[batch] { return a.loadOne(ctx, r) }
	})
	results := fn.Settle(loaders...)

	var merged []catalog.Item
	report := Report{Outcomes: make([]SourceOutcome, len(results))}
	for i, res := range results {
		name := a.regs[i].Source.Name()
		out := SourceOutcome{Source: name}
		b, err := res.Unwrap()
		if err != nil {
			var fe *FeedError
			if !errors.As(err, &fe) {
				err = &FeedError{Source: name, Err: err}
			}
			out.Err = err
			out.Error = err.Error()
			a.met.Counter(metrics.WithLabels("curator_feed_errors_total", "source", name), "Failed feed loads by source").Inc()
			a.log.Warn("feed: load failed, contributing no items", "source", name, "err", err)
		} else {
			out.Count = len(b.items)
			out.Dropped = b.dropped
			merged = append(merged, b.items...)
			a.met.Counter(metrics.WithLabels("curator_feed_items_total", "source", name), "Items loaded by source").Add(int64(len(b.items)))
			if b.dropped > 0 {
				a.log.Info("feed: dropped unusable records", "source", name, "dropped", b.dropped)
			}
		}
		report.Outcomes[i] = out
	}

	loadedAt := a.now()
	report.Total = len(merged)
	report.LoadedAt = loadedAt
	report.Duration = loadedAt.Sub(start)
	a.met.Histogram("curator_feed_load_duration_seconds", "Duration of full feed aggregation", nil).Observe(report.Duration.Seconds())

	a.mu.Lock()
	if a.epoch == epoch {
		a.items = merged
		a.loadedAt = loadedAt
		a.met.Gauge("curator_cache_items", "Items in the cached generation").Set(int64(len(merged)))
	} else {
		a.log.Info("feed: cache cleared during load, discarding stale generation")
	}
	a.mu.Unlock()

	a.log.Info("feed: load complete",
		"items", report.Total,
		"failed", len(report.Failed()),
		"duration", report.Duration,
	)
	return report
}

func (a *Aggregator) loadOne(ctx context.Context, r Registration) fn.Result[batch] {
	name := r.Source.Name()
	fetch := fn.Stage[struct{}, []catalog.Record](func(ctx context.Context, _ struct{}) fn.Result[[]catalog.Record] {
		recs, err := r.Source.Load(ctx)
		if err != nil {
			return fn.Err[[]catalog.Record](&FeedError{Source: name, Err: err})
		}
		return fn.Ok(recs)
	})
	norm := fn.MapStage(func(recs []catalog.Record) batch {
		items, dropped := normalize.NormalizeAll(r.Adapter, recs)
		return batch{items: items, dropped: dropped}
	})
	return fn.TracedStage("feed.load."+name, fn.Then(fetch, norm))(ctx, struct{}{})
}

// Products returns a copy of the cached generation; empty before any load.
func (a *Aggregator) Products() []catalog.Item {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return catalog.CloneAll(a.items)
}

// ProductsBySource returns cached items whose affiliate link belongs to d.
func (a *Aggregator) ProductsBySource(d catalog.Domain) []catalog.Item {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []catalog.Item
	for _, it := range a.items {
		if classify.DetectDomain(it.AffiliateLink) == d {
			out = append(out, it.Clone())
		}
	}
	return out
}

// ProductsByFeed returns cached items loaded from the named feed.
func (a *Aggregator) ProductsByFeed(name string) []catalog.Item {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []catalog.Item
	for _, it := range a.items {
		if it.Source == name {
			out = append(out, it.Clone())
		}
	}
	return out
}

// LoadedAt returns when the cached generation was loaded; zero if never.
func (a *Aggregator) LoadedAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loadedAt
}

// Loaded reports whether a generation is cached.
func (a *Aggregator) Loaded() bool {
	return !a.LoadedAt().IsZero()
}

// OnClear registers f to run after every Clear. Dependent caches (pinned
// deals, shelf overrides) hook in here.
func (a *Aggregator) OnClear(f func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, f)
}

// Clear drops the cached generation, its timestamp and the in-flight guard,
// then notifies dependent caches.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.items = nil
	a.loadedAt = time.Time{}
	a.epoch++
	hooks := append([]func(){}, a.hooks...)
	a.met.Gauge("curator_cache_items", "Items in the cached generation").Set(0)
	a.mu.Unlock()

	a.group.Forget(loadKey)
	for _, h := range hooks {
		h()
	}
	a.log.Info("feed: cache cleared", "hooks", len(hooks))
}
