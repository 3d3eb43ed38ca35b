// Command curate loads every configured feed once and writes the curated
// result (top deals, deal of the week, shelves and the load report) as JSON
// to stdout or a file, optionally publishing it to NATS.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dealshelf/curator/engine/catalog"
	"github.com/dealshelf/curator/engine/curator"
	"github.com/dealshelf/curator/engine/feed"
	"github.com/dealshelf/curator/engine/rank"
	"github.com/dealshelf/curator/pkg/metrics"
	"github.com/dealshelf/curator/pkg/natsutil"
)

// SnapshotSubject is the default NATS subject for published snapshots.
const SnapshotSubject = "curator.snapshot"

// Snapshot is the document curate emits.
type Snapshot struct {
	GeneratedAt time.Time       `json:"generatedAt"`
	Top         rank.Selection  `json:"top"`
	Week        rank.WeekPick   `json:"week"`
	Shelves     []catalog.Shelf `json:"shelves"`
	Report      feed.Report     `json:"report"`
}

type options struct {
	k       int
	out     string
	pretty  bool
	subject string
	metrics bool
	cfg     curator.Config
}

func parseFlags(args []string) (options, error) {
	env := curator.ConfigFromEnv()
	fs := flag.NewFlagSet("curate", flag.ContinueOnError)

	var o options
	var bolListings string
	fs.IntVar(&o.k, "k", 0, "number of top deals (0 = configured default)")
	fs.StringVar(&o.out, "out", "", "write JSON to this file instead of stdout")
	fs.BoolVar(&o.pretty, "pretty", false, "indent JSON output")
	fs.StringVar(&o.subject, "subject", SnapshotSubject, "NATS subject to publish the snapshot to")
	fs.BoolVar(&o.metrics, "metrics", false, "print feed metrics to stderr after the run")
	fs.StringVar(&o.cfg.NATSURL, "nats", env.NATSURL, "NATS URL (empty = do not publish)")
	fs.StringVar(&o.cfg.PostgresDSN, "postgres", env.PostgresDSN, "PostgreSQL DSN for the amazon feed and pinned deals")
	fs.StringVar(&o.cfg.Neo4jURL, "neo4j-url", env.Neo4jURL, "Neo4j URL for shelf overrides")
	fs.StringVar(&o.cfg.Neo4jUser, "neo4j-user", env.Neo4jUser, "Neo4j username")
	fs.StringVar(&o.cfg.Neo4jPass, "neo4j-pass", env.Neo4jPass, "Neo4j password")
	fs.StringVar(&o.cfg.CoolblueURL, "coolblue", env.CoolblueURL, "Coolblue product export base URL")
	fs.StringVar(&bolListings, "bol", strings.Join(env.BolListings, ","), "comma-separated bol.com listing URLs")
	fs.StringVar(&o.cfg.SlygadFile, "slygad", env.SlygadFile, "Slygad catalog file (empty = bundled)")
	fs.StringVar(&o.cfg.ConstraintsFile, "constraints", env.ConstraintsFile, "YAML selection constraints")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.k < 0 || o.k > curator.MaxK {
		return options{}, fmt.Errorf("-k must be between 0 and %d", curator.MaxK)
	}

	o.cfg.Neo4jDB = env.Neo4jDB
	o.cfg.CoolblueKey = env.CoolblueKey
	o.cfg.AmazonTag = env.AmazonTag
	for _, l := range strings.Split(bolListings, ",") {
		if l = strings.TrimSpace(l); l != "" {
			o.cfg.BolListings = append(o.cfg.BolListings, l)
		}
	}
	return o, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	o, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "curate:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout, logger); err != nil {
		logger.Error("curate failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, stdout io.Writer, logger *slog.Logger) error {
	reg := metrics.New()
	rt, err := curator.Setup(ctx, o.cfg, logger, reg)
	if err != nil {
		return err
	}
	defer rt.Close()

	snap := build(ctx, rt.Service, o.k)
	if failed := snap.Report.Failed(); len(failed) > 0 {
		logger.Warn("some feeds failed", "failed", len(failed), "total", len(snap.Report.Outcomes))
	}

	if err := write(snap, o, stdout); err != nil {
		return err
	}

	if rt.NATS != nil {
		if err := natsutil.Publish(ctx, rt.NATS, o.subject, snap); err != nil {
			return fmt.Errorf("publish snapshot: %w", err)
		}
		if err := rt.NATS.FlushWithContext(ctx); err != nil {
			return fmt.Errorf("flush nats: %w", err)
		}
		logger.Info("snapshot published", "subject", o.subject)
	}

	if o.metrics {
		fmt.Fprint(os.Stderr, reg.Render())
	}
	return nil
}

func build(ctx context.Context, svc *curator.Service, k int) Snapshot {
	report := svc.Refresh(ctx)
	return Snapshot{
		GeneratedAt: time.Now().UTC(),
		Top:         svc.TopDeals(ctx, k),
		Week:        svc.DealOfWeek(ctx),
		Shelves:     svc.Shelves(ctx),
		Report:      report,
	}
}

func write(snap Snapshot, o options, stdout io.Writer) error {
	w := stdout
	if o.out != "" {
		f, err := os.Create(o.out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	if o.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(snap)
}
