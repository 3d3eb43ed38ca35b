// Package bol scrapes bol.com listing pages.
package bol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/dealshelf/curator/engine/catalog"
	"github.com/dealshelf/curator/engine/normalize"
)

// Name is the feed name.
const Name = "bol"

const storefront = "https://www.bol.com"

// maxPage caps a listing response body.
const maxPage = 8 << 20

// ErrNoListings is returned when no listing URLs are configured.
var ErrNoListings = errors.New("bol: no listing urls configured")

// Config controls the scraper.
type Config struct {
	Listings []string
	// Interval is the minimum gap between page requests.
	Interval time.Duration
	Client   *http.Client
	Logger   *slog.Logger
}

// Source is the bol.com feed.
type Source struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates the feed.
func New(cfg Config) *Source {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Source{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		log:     log.With("source", Name),
	}
}

func (s *Source) Name() string { return Name }

// Load scrapes every listing page. A page that fails is logged and skipped;
// Load only fails when every page fails.
func (s *Source) Load(ctx context.Context) ([]catalog.Record, error) {
	if len(s.cfg.Listings) == 0 {
		return nil, ErrNoListings
	}

	var (
		out     []catalog.Record
		lastErr error
		ok      int
	)
	seen := make(map[string]bool)
	for _, u := range s.cfg.Listings {
		recs, err := s.fetch(ctx, u)
		if err != nil {
			lastErr = err
			s.log.Warn("bol: listing failed", "url", u, "err", err)
			continue
		}
		ok++
		for _, r := range recs {
			id, _ := r["id"].(string)
			if id != "" && seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, r)
		}
	}
	if ok == 0 {
		return nil, lastErr
	}
	return out, nil
}

func (s *Source) fetch(ctx context.Context, u string) ([]catalog.Record, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; dealshelf-curator/1.0)")
	req.Header.Set("Accept-Language", "nl-NL,nl;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bol: http %d from %s", resp.StatusCode, u)
	}
	return Parse(io.LimitReader(resp.Body, maxPage), resp.Header.Get("Content-Type"))
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	ratingRe     = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*van de 5`)
	reviewsRe    = regexp.MustCompile(`(\d[\d.]*)\s*(?:review|beoordeling)`)
	productIDRe  = regexp.MustCompile(`/p/[^/]+/(\d+)`)
)

// Parse extracts product cards from a listing page, decoding it to UTF-8
// first.
func Parse(r io.Reader, contentType string) ([]catalog.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	enc, _, _ := charset.DetermineEncoding(data, contentType)
	utf8data, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("bol: decode page: %w", err)
		}
		utf8data = data
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(utf8data))
	if err != nil {
		return nil, fmt.Errorf("bol: parse page: %w", err)
	}

	var out []catalog.Record
	doc.Find("li.product-item--row, li[data-test='product-item']").Each(func(_ int, card *goquery.Selection) {
		if rec := parseCard(card); rec != nil {
			out = append(out, rec)
		}
	})
	return out, nil
}

func parseCard(card *goquery.Selection) catalog.Record {
	title := card.Find("a.product-title, a[data-test='product-title']").First()
	name := clean(title.Text())
	if name == "" {
		return nil
	}

	link := strings.TrimSpace(title.AttrOr("href", ""))
	if strings.HasPrefix(link, "/") {
		link = storefront + link
	}

	rec := catalog.Record{
		"name": name,
		"link": link,
	}

	id := card.AttrOr("data-id", "")
	if id == "" {
		if m := productIDRe.FindStringSubmatch(link); m != nil {
			id = m[1]
		}
	}
	if id != "" {
		rec["id"] = id
	}

	if d := clean(card.Find(".product-small-specs, [data-test='product-specs']").Text()); d != "" {
		rec["description"] = d
	}
	if c := clean(card.AttrOr("data-category", "")); c != "" {
		rec["category"] = c
	}

	price := card.Find("meta[itemprop='price']").AttrOr("content", "")
	if price == "" {
		price = priceText(card.Find(".promo-price, [data-test='price']").First())
	}
	if price != "" {
		rec["price"] = price
	}
	if op := priceText(card.Find(".list-price, [data-test='from-price']").First()); op != "" {
		rec["originalPrice"] = op
	}

	img := card.Find("img").First()
	if src := firstNonEmpty(img.AttrOr("data-src", ""), img.AttrOr("src", "")); src != "" {
		rec["image"] = src
	}

	stars := card.Find("[data-test='rating-stars'], .star-rating").First()
	label := firstNonEmpty(stars.AttrOr("title", ""), stars.AttrOr("aria-label", ""))
	if m := ratingRe.FindStringSubmatch(label); m != nil {
		rec["rating"] = strings.Replace(m[1], ",", ".", 1)
	}
	if m := reviewsRe.FindStringSubmatch(strings.ToLower(label)); m != nil {
		rec["reviewCount"] = strings.ReplaceAll(m[1], ".", "")
	}
	return rec
}

// priceText reads a rendered price. bol prints the cents in a <sup>
// ("22 <sup>95</sup>", "22 <sup>-</sup>"), so the fraction is joined back
// with a decimal comma.
func priceText(sel *goquery.Selection) string {
	frac := sel.Find("sup").First()
	if frac.Length() == 0 {
		return clean(sel.Text())
	}
	whole := sel.Clone()
	whole.Find("sup").Remove()
	w := strings.TrimRight(clean(whole.Text()), ".,")
	if w == "" {
		return ""
	}
	f := strings.Trim(clean(frac.Text()), ".,")
	if f == "" || f == "-" {
		f = "00"
	}
	return w + "," + f
}

func clean(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

// Adapter maps scraped cards onto Item fields.
func Adapter() normalize.Adapter {
	return normalize.Generic(Name)
}
