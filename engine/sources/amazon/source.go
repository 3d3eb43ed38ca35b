// Package amazon reads Amazon product documents that an upstream importer
// keeps in PostgreSQL.
package amazon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dealshelf/curator/engine/catalog"
	"github.com/dealshelf/curator/engine/normalize"
)

// Name is the feed name.
const Name = "amazon"

// DocStore returns the raw JSON documents stored for a feed.
type DocStore interface {
	Docs(ctx context.Context, source string) ([][]byte, error)
}

// Config controls link rewriting.
type Config struct {
	// Host is the storefront used when a document has an ASIN but no link.
	Host string
	// Tag is the affiliate tag added to links that carry none.
	Tag    string
	Logger *slog.Logger
}

// Source is the Amazon feed.
type Source struct {
	store DocStore
	cfg   Config
	log   *slog.Logger
}

// New creates the feed over store.
func New(store DocStore, cfg Config) *Source {
	if cfg.Host == "" {
		cfg.Host = "www.amazon.nl"
	}
	if cfg.Tag == "" {
		cfg.Tag = "dealshelf-21"
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Source{store: store, cfg: cfg, log: log.With("source", Name)}
}

func (s *Source) Name() string { return Name }

// Load returns every stored document. Documents that are not JSON objects
// are skipped.
func (s *Source) Load(ctx context.Context) ([]catalog.Record, error) {
	docs, err := s.store.Docs(ctx, Name)
	if err != nil {
		return nil, fmt.Errorf("amazon: load docs: %w", err)
	}
	recs := make([]catalog.Record, 0, len(docs))
	for i, doc := range docs {
		var rec catalog.Record
		if err := json.Unmarshal(doc, &rec); err != nil || rec == nil {
			s.log.Warn("amazon: skipping undecodable document", "index", i, "err", err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Adapter maps Amazon product documents onto Item fields.
func (s *Source) Adapter() normalize.Adapter {
	return normalize.Adapter{
		Source:           Name,
		ID:               []string{"asin", "id"},
		Name:             []string{"title", "name"},
		Description:      []string{"description", "about"},
		ShortDescription: []string{"subtitle"},
		Image:            []string{"main_image.link", "image"},
		ImageURL:         []string{"imageUrl"},
		Images:           []string{"images"},
		Price:            []string{"price.value", "buybox_winner.price.value", "price"},
		OriginalPrice:    []string{"price.before_price", "list_price.value", "listPrice"},
		OnSale:           []string{"is_deal", "isOnSale"},
		Tags:             []string{"tags", "keywords"},
		Category:         []string{"category", "categories_flat"},
		Link:             []string{"link", "url"},
		GiftScore:        []string{"giftScore", "gift_score"},
		Rating:           []string{"rating"},
		ReviewCount:      []string{"ratings_total", "reviews_count", "reviewCount"},
		Finish:           s.finish,
	}
}

func (s *Source) finish(rec catalog.Record, it *catalog.Item) {
	if it.AffiliateLink == "" {
		asin, _ := rec["asin"].(string)
		if asin = strings.TrimSpace(asin); asin == "" {
			return
		}
		it.AffiliateLink = "https://" + s.cfg.Host + "/dp/" + url.PathEscape(asin)
	}
	it.AffiliateLink = Tagged(it.AffiliateLink, s.cfg.Tag)
}

// Tagged adds the affiliate tag to an Amazon link that has none. Other
// links and unparseable input are returned unchanged.
func Tagged(link, tag string) string {
	u, err := url.Parse(link)
	if err != nil || tag == "" || !strings.Contains(strings.ToLower(u.Host), "amazon.") {
		return link
	}
	q := u.Query()
	if q.Get("tag") != "" {
		return link
	}
	q.Set("tag", tag)
	u.RawQuery = q.Encode()
	return u.String()
}
