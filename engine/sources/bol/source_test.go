package bol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dealshelf/curator/engine/normalize"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func fixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/listing.html")
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestParseListing(t *testing.T) {
	recs, err := Parse(bytes.NewReader(fixture(t)), "text/html; charset=utf-8")
	if err != nil {
		t.Fatal(err)
	}
	// Four titled cards; the untitled one is skipped.
	if len(recs) != 4 {
		t.Fatalf("expected 4 cards, got %d", len(recs))
	}

	sw := recs[0]
	if sw["id"] != "9300000052326488" || sw["name"] != "Nintendo Switch OLED" {
		t.Fatalf("unexpected first card %v", sw)
	}
	if sw["link"] != "https://www.bol.com/nl/nl/p/nintendo-switch-oled/9300000052326488/" {
		t.Fatalf("link = %v", sw["link"])
	}
	if sw["image"] != "https://media.s-bol.com/switch-oled.jpg" {
		t.Fatalf("lazy image should win, got %v", sw["image"])
	}
	if sw["rating"] != "4.8" || sw["reviewCount"] != "9120" || sw["price"] != "319.00" {
		t.Fatalf("signals = rating %v reviews %v price %v", sw["rating"], sw["reviewCount"], sw["price"])
	}

	mol := recs[1]
	if mol["id"] != "9200000011346441" {
		t.Fatalf("id should come from the link, got %v", mol["id"])
	}
	if mol["price"] != "€ 22,95" || mol["originalPrice"] != "€ 27,50" {
		t.Fatalf("prices = %v / %v", mol["price"], mol["originalPrice"])
	}

	moka := recs[2]
	if moka["price"] != "22,95" || moka["originalPrice"] != "35,00" {
		t.Fatalf("superscript prices = %v / %v", moka["price"], moka["originalPrice"])
	}
}

func TestParseSuperscriptFraction(t *testing.T) {
	tests := []struct {
		html string
		want float64
	}{
		{`<span class="promo-price">22 <sup class="promo-price__fraction">95</sup></span>`, 22.95},
		{`<span class="promo-price">1.299 <sup class="promo-price__fraction">-</sup></span>`, 1299},
		{`<span class="promo-price">€ 9,<sup>99</sup></span>`, 9.99},
		{`<span class="promo-price">€ 14,50</span>`, 14.5},
	}
	for _, tt := range tests {
		page := `<ul><li class="product-item--row"><a class="product-title" href="/p/x/1/">Item</a>` + tt.html + `</li></ul>`
		recs, err := Parse(strings.NewReader(page), "text/html")
		if err != nil {
			t.Fatal(err)
		}
		items, _ := normalize.NormalizeAll(Adapter(), recs)
		if len(items) != 1 || items[0].Price != tt.want {
			t.Fatalf("%s: price = %v, want %v (raw %v)", tt.html, items, tt.want, recs)
		}
	}
}

func TestParseDecodesLatin1(t *testing.T) {
	page := []byte("<ul><li class=\"product-item--row\"><a class=\"product-title\" href=\"/p/x/1/\">Caf\xe9 espresso</a></li></ul>")
	recs, err := Parse(bytes.NewReader(page), "text/html; charset=iso-8859-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0]["name"] != "Café espresso" {
		t.Fatalf("unexpected decode %v", recs)
	}
}

func TestAdapterNormalizesCards(t *testing.T) {
	recs, _ := Parse(bytes.NewReader(fixture(t)), "text/html")
	items, dropped := normalize.NormalizeAll(Adapter(), recs)
	if dropped != 0 || len(items) != 4 {
		t.Fatalf("items=%d dropped=%d", len(items), dropped)
	}
	sw, mol := items[0], items[1]
	if sw.Price != 319 || sw.Rating == nil || *sw.Rating != 4.8 || *sw.ReviewCount != 9120 {
		t.Fatalf("unexpected switch item %+v", sw)
	}
	if mol.Price != 22.95 || !mol.IsOnSale || mol.Category != "Lifestyle" {
		t.Fatalf("unexpected notebook item %+v", mol)
	}
	if mol.Source != Name {
		t.Fatalf("source = %q", mol.Source)
	}
	if moka := items[2]; moka.Price != 22.95 || moka.OriginalPrice == nil || *moka.OriginalPrice != 35 || !moka.IsOnSale {
		t.Fatalf("unexpected moka item %+v", moka)
	}
}

func TestLoadDedupesAcrossListings(t *testing.T) {
	page := fixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	}))
	defer srv.Close()

	s := New(Config{
		Listings: []string{srv.URL + "/a", srv.URL + "/broken", srv.URL + "/b"},
		Interval: time.Millisecond,
		Logger:   quiet(),
	})
	recs, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 unique cards across listings, got %d", len(recs))
	}
}

func TestLoadFailsWhenEveryListingFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(Config{Listings: []string{srv.URL}, Interval: time.Millisecond, Logger: quiet()})
	if _, err := s.Load(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	if _, err := New(Config{}).Load(context.Background()); !errors.Is(err, ErrNoListings) {
		t.Fatalf("expected ErrNoListings, got %v", err)
	}
}
