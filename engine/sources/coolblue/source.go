// Package coolblue pulls the Coolblue partner product export over HTTP.
package coolblue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dealshelf/curator/engine/catalog"
	"github.com/dealshelf/curator/engine/normalize"
	"github.com/dealshelf/curator/pkg/fn"
)

// Name is the feed name.
const Name = "coolblue"

const storefront = "https://www.coolblue.nl"

// ErrNoEndpoint is returned when the feed has no base URL configured.
var ErrNoEndpoint = errors.New("coolblue: no endpoint configured")

// StatusError is a non-200 response from the export API.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("coolblue: http %d from %s", e.Code, e.URL)
}

// Temporary reports whether the request is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Config controls the export client.
type Config struct {
	BaseURL  string
	APIKey   string
	PageSize int
	// MaxPages bounds pagination; 0 follows totalPages.
	MaxPages int
	// Rate is requests per second; Burst the bucket size.
	Rate   float64
	Burst  int
	Retry  fn.RetryOpts
	Client *http.Client
	Logger *slog.Logger
}

// Source is the Coolblue feed.
type Source struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates the feed. Zero config values get conservative defaults.
func New(cfg Config) *Source {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 2
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = fn.RetryOpts{MaxAttempts: 3, InitialWait: 500 * time.Millisecond, MaxWait: 5 * time.Second, Jitter: true}
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
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		log:     log.With("source", Name),
	}
}

func (s *Source) Name() string { return Name }

type page struct {
	Products   []catalog.Record `json:"products"`
	Page       int              `json:"currentPage"`
	TotalPages int              `json:"totalPages"`
}

// Load walks the paginated export and returns every product record.
func (s *Source) Load(ctx context.Context) ([]catalog.Record, error) {
	if s.cfg.BaseURL == "" {
		return nil, ErrNoEndpoint
	}

	var out []catalog.Record
	for n := 1; ; n++ {
		p, err := s.fetchPage(ctx, n).Unwrap()
		if err != nil {
			return nil, err
		}
		out = append(out, p.Products...)

		last := p.TotalPages
		if s.cfg.MaxPages > 0 && (last == 0 || last > s.cfg.MaxPages) {
			last = s.cfg.MaxPages
		}
		if n >= last || len(p.Products) == 0 {
			break
		}
	}
	s.log.Debug("coolblue: export loaded", "records", len(out))
	return out, nil
}

func (s *Source) pageURL(n int) string {
	q := url.Values{
		"page":     {strconv.Itoa(n)},
		"pageSize": {strconv.Itoa(s.cfg.PageSize)},
	}
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/products?" + q.Encode()
}

func (s *Source) fetchPage(ctx context.Context, n int) fn.Result[page] {
	opts := s.cfg.Retry
	opts.Retryable = func(err error) bool {
		var se *StatusError
		if errors.As(err, &se) {
			return se.Temporary()
		}
		return ctx.Err() == nil
	}
	u := s.pageURL(n)
	return fn.Retry(ctx, opts, func(ctx context.Context) fn.Result[page] {
		if err := s.limiter.Wait(ctx); err != nil {
			return fn.Err[page](err)
		}
		return s.doGet(ctx, u)
	})
}

func (s *Source) doGet(ctx context.Context, u string) fn.Result[page] {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fn.Err[page](err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "dealshelf-curator/1.0")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fn.Err[page](err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fn.Err[page](&StatusError{Code: resp.StatusCode, URL: u})
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return fn.Err[page](fmt.Errorf("coolblue: decode: %w", err))
	}
	return fn.Ok(p)
}

// Adapter maps export records onto Item fields.
func Adapter() normalize.Adapter {
	return normalize.Adapter{
		Source:           Name,
		ID:               []string{"productId", "id"},
		Name:             []string{"productName", "name"},
		Description:      []string{"description", "pros"},
		ShortDescription: []string{"subtitle"},
		Image:            []string{"image", "productImage"},
		ImageURL:         []string{"imageUrl"},
		Images:           []string{"images"},
		Price:            []string{"salesPrice", "price"},
		OriginalPrice:    []string{"recommendedSalesPrice", "listPrice"},
		OnSale:           []string{"promotion", "isOnSale"},
		Tags:             []string{"highlights", "tags"},
		Category:         []string{"productType", "category"},
		Link:             []string{"url", "productUrl"},
		GiftScore:        []string{"giftScore"},
		Rating:           []string{"reviewRating", "rating"},
		ReviewCount:      []string{"numberOfReviews", "reviewCount"},
		Finish:           finish,
	}
}

// finish absolutises storefront paths and rescales ten-point ratings.
func finish(rec catalog.Record, it *catalog.Item) {
	if strings.HasPrefix(it.AffiliateLink, "/") {
		it.AffiliateLink = storefront + it.AffiliateLink
	}
	if v, ok := rec["reviewRating"].(float64); ok && v > 5 {
		r := min(v, 10) / 2
		it.Rating = &r
	}
}
