package curator

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/dealshelf/curator/engine/feed"
	"github.com/dealshelf/curator/engine/normalize"
	"github.com/dealshelf/curator/engine/pinned"
	"github.com/dealshelf/curator/engine/rank"
	"github.com/dealshelf/curator/engine/shelf"
	"github.com/dealshelf/curator/engine/sources/amazon"
	"github.com/dealshelf/curator/engine/sources/bol"
	"github.com/dealshelf/curator/engine/sources/coolblue"
	"github.com/dealshelf/curator/engine/sources/slygad"
	"github.com/dealshelf/curator/pkg/metrics"
	"github.com/dealshelf/curator/pkg/natsutil"
	"github.com/dealshelf/curator/pkg/pgutil"
	"github.com/dealshelf/curator/pkg/repo"
	"github.com/dealshelf/curator/pkg/resilience"
)

// Config selects the collaborators Setup wires. Empty endpoints disable the
// component that needs them; the bundled Slygad catalog is always served.
type Config struct {
	PostgresDSN string
	Neo4jURL    string
	Neo4jUser   string
	Neo4jPass   string
	Neo4jDB     string
	NATSURL     string

	CoolblueURL string
	CoolblueKey string
	BolListings []string
	SlygadFile  string
	AmazonTag   string

	ConstraintsFile string
	ShelvesFile     string
}

// ConfigFromEnv reads Config from the environment.
func ConfigFromEnv() Config {
	return Config{
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		Neo4jURL:        os.Getenv("NEO4J_URL"),
		Neo4jUser:       envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:       envOr("NEO4J_PASS", "password"),
		Neo4jDB:         os.Getenv("NEO4J_DATABASE"),
		NATSURL:         os.Getenv("NATS_URL"),
		CoolblueURL:     os.Getenv("COOLBLUE_URL"),
		CoolblueKey:     os.Getenv("COOLBLUE_API_KEY"),
		BolListings:     splitList(os.Getenv("BOL_LISTINGS")),
		SlygadFile:      os.Getenv("SLYGAD_FILE"),
		AmazonTag:       envOr("AMAZON_TAG", "dealshelf-21"),
		ConstraintsFile: os.Getenv("CONSTRAINTS_FILE"),
		ShelvesFile:     os.Getenv("SHELVES_FILE"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Runtime is a fully wired Service and the connections behind it.
type Runtime struct {
	Service    *Service
	Aggregator *feed.Aggregator
	Pinned     *pinned.Store
	Overrides  *shelf.OverrideStore
	NATS       *nats.Conn

	closers []func()
}

// Close releases every connection opened by Setup, newest first.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Setup connects the configured stores and feeds and builds the Service.
// On error every connection opened so far is closed.
func Setup(ctx context.Context, cfg Config, log *slog.Logger, reg *metrics.Registry) (_ *Runtime, err error) {
	if log == nil {
		log = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	rt := &Runtime{}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	cons, err := rank.LoadConstraints(cfg.ConstraintsFile)
	if err != nil {
		return nil, err
	}
	specs, err := shelf.LoadSpecs(cfg.ShelvesFile)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = pgutil.Open(ctx, cfg.PostgresDSN, pgutil.DefaultPool)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { db.Close() })

		backend := pinned.NewPGBackend(db)
		if err := backend.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		rt.Pinned = pinned.NewStore(backend, log)
	}

	if cfg.Neo4jURL != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return nil, fmt.Errorf("curator: neo4j driver: %w", err)
		}
		rt.closers = append(rt.closers, func() { driver.Close(context.Background()) })

		var opts []repo.Neo4jOption[shelf.OverrideRecord, string]
		if cfg.Neo4jDB != "" {
			opts = append(opts, repo.WithDatabase[shelf.OverrideRecord, string](cfg.Neo4jDB))
		}
		rt.Overrides = shelf.NewOverrideStore(shelf.NewNeo4jOverrides(driver, opts...), log)
	}

	if cfg.NATSURL != "" {
		nc, err := natsutil.Connect(cfg.NATSURL, "curator", log)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, nc.Close)
		rt.NATS = nc
	}

	regs, breakers, err := registrations(ctx, cfg, db, log, reg)
	if err != nil {
		return nil, err
	}
	rt.Aggregator = feed.NewAggregator(regs, feed.Options{Logger: log, Metrics: reg})

	shelfOpts := shelf.Options{Specs: specs, Logger: log}
	opts := Options{Constraints: &cons, Logger: log}
	for _, b := range breakers {
		opts.Caches = append(opts.Caches, breakerReset{b})
	}
	if rt.Pinned != nil {
		shelfOpts.Pinned = rt.Pinned
		opts.Caches = append(opts.Caches, rt.Pinned)
	}
	if rt.Overrides != nil {
		shelfOpts.Overrides = rt.Overrides
		opts.Caches = append(opts.Caches, rt.Overrides)
	}
	if rt.NATS != nil {
		opts.NATS = rt.NATS
	}
	opts.Shelves = shelf.NewBuilder(shelfOpts)

	rt.Service, err = New(rt.Aggregator, opts)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// registrations builds the feeds in merge order: amazon, coolblue, bol,
// slygad. Every feed sits behind its own circuit breaker.
func registrations(ctx context.Context, cfg Config, db *sql.DB, log *slog.Logger, reg *metrics.Registry) ([]feed.Registration, []*resilience.Breaker, error) {
	var (
		regs     []feed.Registration
		breakers []*resilience.Breaker
	)
	add := func(src feed.Source, a func() normalize.Adapter) {
		b := breaker(src.Name(), log, reg)
		breakers = append(breakers, b)
		regs = append(regs, feed.Register(feed.WithBreaker(src, b), a()))
	}

	if db != nil {
		store := amazon.NewPGStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		src := amazon.New(store, amazon.Config{Tag: cfg.AmazonTag, Logger: log})
		add(src, src.Adapter)
	}
	if cfg.CoolblueURL != "" {
		add(coolblue.New(coolblue.Config{BaseURL: cfg.CoolblueURL, APIKey: cfg.CoolblueKey, Logger: log}), coolblue.Adapter)
	}
	if len(cfg.BolListings) > 0 {
		add(bol.New(bol.Config{Listings: cfg.BolListings, Logger: log}), bol.Adapter)
	}
	add(slygad.New(cfg.SlygadFile), slygad.Adapter)
	return regs, breakers, nil
}

// breakerReset closes a feed breaker whenever the feed cache is cleared, so
// the next load contacts the upstream again.
type breakerReset struct{ b *resilience.Breaker }

func (r breakerReset) Invalidate() { r.b.Reset() }

func breaker(name string, log *slog.Logger, reg *metrics.Registry) *resilience.Breaker {
	open := reg.Gauge(metrics.WithLabels("curator_feed_breaker_open", "source", name), "Whether a feed's circuit breaker is open")
	return resilience.NewBreaker(resilience.BreakerOpts{
		Timeout: 2 * time.Minute,
		OnStateChange: func(from, to resilience.State) {
			log.Warn("feed breaker state change", "source", name, "from", from.String(), "to", to.String())
			if to == resilience.StateOpen {
				open.Set(1)
			} else {
				open.Set(0)
			}
		},
	})
}
