// Package feed loads vendor feeds concurrently and holds the merged product
// generation the rest of the engine reads from.
package feed

import (
	"context"
	"fmt"

	"github.com/dealshelf/curator/engine/catalog"
	"github.com/dealshelf/curator/engine/normalize"
	"github.com/dealshelf/curator/pkg/fn"
	"github.com/dealshelf/curator/pkg/resilience"
)

// Source is one upstream vendor feed.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]catalog.Record, error)
}

// Registration pairs a source with the adapter that normalizes its records.
type Registration struct {
	Source  Source
	Adapter normalize.Adapter
}

// Register builds a Registration, defaulting the adapter's source name.
func Register(src Source, a normalize.Adapter) Registration {
	if a.Source == "" {
		a.Source = src.Name()
	}
	return Registration{Source: src, Adapter: a}
}

// FeedError reports a failed feed load.
type FeedError struct {
	Source string
	Err    error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("feed %s: %v", e.Source, e.Err)
}

func (e *FeedError) Unwrap() error { return e.Err }

// funcSource adapts a plain function to Source.
type funcSource struct {
	name string
	load func(context.Context) ([]catalog.Record, error)
}

// Func wraps load as a Source called name.
func Func(name string, load func(context.Context) ([]catalog.Record, error)) Source {
	return &funcSource{name: name, load: load}
}

func (s *funcSource) Name() string { return s.name }

func (s *funcSource) Load(ctx context.Context) ([]catalog.Record, error) {
	return s.load(ctx)
}

// Static serves a fixed record list. Useful for bundled feeds and tests.
func Static(name string, recs []catalog.Record) Source {
	return Func(name, func(context.Context) ([]catalog.Record, error) {
		return recs, nil
	})
}

// breakerSource short-circuits a feed that keeps failing.
type breakerSource struct {
	Source
	b *resilience.Breaker
}

// WithBreaker guards src with a circuit breaker. While the breaker is open
// the feed fails fast with resilience.ErrCircuitOpen.
func WithBreaker(src Source, b *resilience.Breaker) Source {
	return &breakerSource{Source: src, b: b}
}

func (s *breakerSource) Load(ctx context.Context) ([]catalog.Record, error) {
	return resilience.CallResult(s.b, ctx, func(ctx context.Context) fn.Result[[]catalog.Record] {
		return fn.FromPair(s.Source.Load(ctx))
	}).Unwrap()
}
