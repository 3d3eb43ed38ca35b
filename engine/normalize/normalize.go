// Package normalize converts raw vendor records into catalog.Items. Each feed
// supplies an Adapter naming its own field layout; Normalize is the shared,
// pure conversion engine.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dealshelf/curator/engine/catalog"
	"github.com/google/uuid"
)

// Placeholder is the image used when a record carries none.
const Placeholder = "/images/placeholder-product.svg"

// SummaryLimit is the number of runes kept before a description is cut.
const SummaryLimit = 140

// Ellipsis terminates truncated descriptions.
const Ellipsis = "…"

// ErrNoName marks a record dropped because it has no usable name.
var ErrNoName = errors.New("record has no usable name")

// Adapter names the raw keys a source uses for each Item field. Every field
// lists candidate keys in preference order; dotted keys ("offer.price")
// descend into nested objects.
type Adapter struct {
	Source           string
	ID               []string
	Name             []string
	Description      []string
	ShortDescription []string
	Image            []string // explicit image field
	ImageURL         []string // URL-style image field
	Images           []string // image list; first entry wins
	Price            []string
	OriginalPrice    []string
	OnSale           []string
	Tags             []string
	Category         []string
	Link             []string
	GiftScore        []string
	Rating           []string
	ReviewCount      []string

	// Finish patches vendor quirks after the generic mapping. Optional.
	Finish func(rec catalog.Record, it *catalog.Item)
}

// Generic covers the common camelCase layout used by hand-authored feeds.
func Generic(source string) Adapter {
	return Adapter{
		Source:           source,
		ID:               []string{"id", "_id", "sku"},
		Name:             []string{"name", "title"},
		Description:      []string{"description"},
		ShortDescription: []string{"shortDescription", "short_description"},
		Image:            []string{"image"},
		ImageURL:         []string{"imageUrl", "image_url", "imageURL"},
		Images:           []string{"images", "imageUrls"},
		Price:            []string{"price"},
		OriginalPrice:    []string{"originalPrice", "original_price", "listPrice"},
		OnSale:           []string{"isOnSale", "onSale", "sale"},
		Tags:             []string{"tags"},
		Category:         []string{"category"},
		Link:             []string{"affiliateLink", "link", "url"},
		GiftScore:        []string{"giftScore", "gift_score"},
		Rating:           []string{"rating"},
		ReviewCount:      []string{"reviewCount", "review_count", "reviews"},
	}
}

// Normalize converts rec into an Item using a. It is pure: the same record
// always yields the same Item.
func Normalize(a Adapter, rec catalog.Record) (catalog.Item, error) {
	name := collapse(str(rec, a.Name))
	if name == "" {
		return catalog.Item{}, ErrNoName
	}

	link := strings.TrimSpace(str(rec, a.Link))
	id := strings.TrimSpace(str(rec, a.ID))
	if id == "" {
		id = DeriveID(a.Source, name, link)
	}

	desc := collapse(str(rec, a.Description))
	short := collapse(str(rec, a.ShortDescription))
	if short == "" {
		short = Summarize(desc)
	} else {
		short = Summarize(short)
	}

	price := ParsePrice(first(rec, a.Price))
	it := catalog.Item{
		ID:               id,
		Source:           a.Source,
		Name:             name,
		Description:      Summarize(desc),
		ShortDescription: short,
		ImageURL:         ResolveImage(rec, a),
		Price:            price,
		Tags:             Tags(first(rec, a.Tags)),
		Category:         strings.TrimSpace(str(rec, a.Category)),
		AffiliateLink:    link,
	}

	if op := ParsePrice(first(rec, a.OriginalPrice)); op > 0 {
		it.OriginalPrice = &op
	}
	if v, ok := boolean(first(rec, a.OnSale)); ok {
		it.IsOnSale = v
	} else if it.OriginalPrice != nil && price > 0 && *it.OriginalPrice > price {
		it.IsOnSale = true
	}
	if gs, ok := number(first(rec, a.GiftScore)); ok {
		gs = clamp(gs, 0, 10)
		it.GiftScore = &gs
	}
	if r, ok := number(first(rec, a.Rating)); ok {
		r = clamp(r, 0, 5)
		it.Rating = &r
	}
	if rc, ok := number(first(rec, a.ReviewCount)); ok {
		n := int(math.Max(0, math.Floor(rc)))
		it.ReviewCount = &n
	}

	if a.Finish != nil {
		a.Finish(rec, &it)
	}
	return it, nil
}

// NormalizeAll converts every record, silently dropping unusable ones.
// It returns the items plus the number of dropped records.
func NormalizeAll(a Adapter, recs []catalog.Record) ([]catalog.Item, int) {
	out := make([]catalog.Item, 0, len(recs))
	dropped := 0
	for _, rec := range recs {
		it, err := Normalize(a, rec)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, it)
	}
	return out, dropped
}

// DeriveID builds a stable id for records that arrive without one.
func DeriveID(source, name, link string) string {
	key := fmt.Sprintf("%s|%s|%s", source, strings.ToLower(name), link)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// Summarize cuts text longer than SummaryLimit runes and appends Ellipsis.
func Summarize(s string) string {
	if utf8.RuneCountInString(s) <= SummaryLimit {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:SummaryLimit]), " ") + Ellipsis
}

// ResolveImage prefers the explicit image field, then a URL field, then the
// first image-list entry, else Placeholder.
func ResolveImage(rec catalog.Record, a Adapter) string {
	if s := strings.TrimSpace(str(rec, a.Image)); s != "" {
		return s
	}
	if s := strings.TrimSpace(str(rec, a.ImageURL)); s != "" {
		return s
	}
	switch list := first(rec, a.Images).(type) {
	case []string:
		for _, s := range list {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	case []any:
		for _, v := range list {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
			if m, ok := v.(map[string]any); ok {
				if s, ok := m["url"].(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s)
				}
			}
		}
	}
	return Placeholder
}

// Tags accepts a list or a comma-separated string and returns trimmed,
// non-empty, de-duplicated tags in their original order.
func Tags(v any) []string {
	var raw []string
	switch tv := v.(type) {
	case []string:
		raw = tv
	case []any:
		for _, e := range tv {
			if s, ok := e.(string); ok {
				raw = append(raw, s)
			}
		}
	case string:
		raw = strings.Split(tv, ",")
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// --- field access ---

// lookup resolves a possibly dotted key against rec.
func lookup(rec catalog.Record, key string) (any, bool) {
	var cur any = map[string]any(rec)
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// first returns the value of the first key present in rec.
func first(rec catalog.Record, keys []string) any {
	for _, k := range keys {
		if v, ok := lookup(rec, k); ok {
			return v
		}
	}
	return nil
}

// str returns the first non-empty string-ish value among keys.
func str(rec catalog.Record, keys []string) string {
	for _, k := range keys {
		v, ok := lookup(rec, k)
		if !ok {
			continue
		}
		var s string
		switch tv := v.(type) {
		case string:
			s = tv
		case float64:
			s = strconv.FormatFloat(tv, 'f', -1, 64)
		case int:
			s = strconv.Itoa(tv)
		case int64:
			s = strconv.FormatInt(tv, 10)
		}
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func number(v any) (float64, bool) {
	switch tv := v.(type) {
	case float64:
		if math.IsNaN(tv) || math.IsInf(tv, 0) {
			return 0, false
		}
	case float32, int, int32, int64, json.Number:
	case string:
		s := strings.TrimSpace(tv)
		if s == "" {
			return 0, false
		}
		// ParsePrice maps garbage to 0; only accept a literal zero.
		if ParsePrice(s) == 0 && strings.Trim(s, "0.,") != "" {
			return 0, false
		}
	default:
		return 0, false
	}
	return ParsePrice(v), true
}

func boolean(v any) (bool, bool) {
	switch tv := v.(type) {
	case bool:
		return tv, true
	case string:
		switch strings.ToLower(strings.TrimSpace(tv)) {
		case "true", "1", "yes", "ja":
			return true, true
		case "false", "0", "no", "nee":
			return false, true
		}
	case float64:
		return tv != 0, true
	}
	return false, false
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// collapse trims and folds internal whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
