package coolblue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dealshelf/curator/engine/normalize"
	"github.com/dealshelf/curator/pkg/fn"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func fastRetry() fn.RetryOpts {
	return fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}
}

func TestLoadFollowsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization header = %q", got)
		}
		p := r.URL.Query().Get("page")
		fmt.Fprintf(w, `{"currentPage":%s,"totalPages":2,"products":[{"productId":"%s-1","productName":"Item %s"}]}`, p, p, p)
	}))
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL, APIKey: "secret", Rate: 1000, Retry: fastRetry(), Logger: quiet()})
	recs, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[1]["productId"] != "2-1" {
		t.Fatalf("unexpected records %v", recs)
	}
}

func TestLoadRespectsMaxPages(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"totalPages":9,"products":[{"productId":"x","productName":"X"}]}`)
	}))
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL, MaxPages: 2, Rate: 1000, Retry: fastRetry(), Logger: quiet()})
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 page requests, got %d", hits.Load())
	}
}

func TestLoadRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"totalPages":1,"products":[{"productId":"ok","productName":"OK"}]}`)
	}))
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL, Rate: 1000, Retry: fastRetry(), Logger: quiet()})
	recs, err := s.Load(context.Background())
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected recovery after retries: %v %v", recs, err)
	}
}

func TestLoadDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL, Rate: 1000, Retry: fastRetry(), Logger: quiet()})
	_, err := s.Load(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Fatalf("expected 403 StatusError, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("client errors must not be retried, got %d requests", hits.Load())
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>maintenance</html>`)
	}))
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL, Rate: 1000, Retry: fn.RetryOpts{MaxAttempts: 1}, Logger: quiet()})
	if _, err := s.Load(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestLoadWithoutEndpoint(t *testing.T) {
	if _, err := New(Config{}).Load(context.Background()); !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("expected ErrNoEndpoint, got %v", err)
	}
}

func TestAdapter(t *testing.T) {
	rec := map[string]any{
		"productId":             float64(829377),
		"productName":           "Philips Hue Starter Kit",
		"salesPrice":            "159,00",
		"recommendedSalesPrice": 189.0,
		"reviewRating":          9.0,
		"numberOfReviews":       3011.0,
		"url":                   "/product/829377/philips-hue.html",
		"highlights":            []any{"Bridge included", "3 bulbs"},
	}
	it, err := normalize.Normalize(Adapter(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if it.ID != "829377" || it.Price != 159 || !it.IsOnSale {
		t.Fatalf("unexpected item %+v", it)
	}
	if it.AffiliateLink != "https://www.coolblue.nl/product/829377/philips-hue.html" {
		t.Fatalf("link = %q", it.AffiliateLink)
	}
	if it.Rating == nil || *it.Rating != 4.5 {
		t.Fatalf("rating should be rescaled, got %v", it.Rating)
	}
}
