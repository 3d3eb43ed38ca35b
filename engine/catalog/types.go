// Package catalog defines the normalized product model shared by every stage
// of the curation engine: feeds, classifier, ranker and shelf builder.
package catalog

import "time"

// Item is a normalized product record. Items are rebuilt on every feed load
// and never mutated across loads.
type Item struct {
	ID               string   `json:"id"`
	Source           string   `json:"source,omitempty"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	ShortDescription string   `json:"shortDescription,omitempty"`
	ImageURL         string   `json:"imageUrl,omitempty"`
	Price            float64  `json:"price"`
	OriginalPrice    *float64 `json:"originalPrice,omitempty"`
	IsOnSale         bool     `json:"isOnSale"`
	Tags             []string `json:"tags"`
	Category         string   `json:"category,omitempty"`
	AffiliateLink    string   `json:"affiliateLink"`
	GiftScore        *float64 `json:"giftScore,omitempty"`
	Rating           *float64 `json:"rating,omitempty"`
	ReviewCount      *int     `json:"reviewCount,omitempty"`
}

// Key identifies an item across sources. IDs are only unique per source.
func (i Item) Key() string {
	if i.Source == "" {
		return i.ID
	}
	return i.Source + ":" + i.ID
}

// GiftScoreOr returns the gift score or def when unset.
func (i Item) GiftScoreOr(def float64) float64 {
	if i.GiftScore == nil {
		return def
	}
	return *i.GiftScore
}

// Clone returns a deep copy so callers can hand items out without sharing
// pointer fields with the cached generation.
func (i Item) Clone() Item {
	out := i
	if i.Tags != nil {
		out.Tags = append([]string(nil), i.Tags...)
	}
	out.OriginalPrice = cloneFloat(i.OriginalPrice)
	out.GiftScore = cloneFloat(i.GiftScore)
	out.Rating = cloneFloat(i.Rating)
	if i.ReviewCount != nil {
		n := *i.ReviewCount
		out.ReviewCount = &n
	}
	return out
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// CloneAll deep-copies a slice of items.
func CloneAll(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// Bucket is a coarse interest category used for diversity caps.
type Bucket string

const (
	BucketTech      Bucket = "tech"
	BucketKitchen   Bucket = "kitchen"
	BucketSmartHome Bucket = "smartHome"
	BucketLifestyle Bucket = "lifestyle"
	BucketGaming    Bucket = "gaming"
	BucketKids      Bucket = "kids"
	BucketOutdoor   Bucket = "outdoor"
	BucketBeauty    Bucket = "beauty"
	BucketWellness  Bucket = "wellness"
	BucketGeneral   Bucket = "general"
)

// AllBuckets lists every bucket in declaration order.
var AllBuckets = []Bucket{
	BucketTech, BucketKitchen, BucketSmartHome, BucketLifestyle, BucketGaming,
	BucketKids, BucketOutdoor, BucketBeauty, BucketWellness, BucketGeneral,
}

// Domain is the vendor identity inferred from an affiliate link.
type Domain string

const (
	DomainAmazon   Domain = "amazon"
	DomainCoolblue Domain = "coolblue"
	DomainBol      Domain = "bol"
	DomainOther    Domain = "other"
)

// ParseDomain maps a free-form name onto a Domain; unknown names are other.
func ParseDomain(s string) Domain {
	switch Domain(s) {
	case DomainAmazon, DomainCoolblue, DomainBol:
		return Domain(s)
	}
	return DomainOther
}

// ScoreMeta is the per-run ranking view of an item. Never persisted.
type ScoreMeta struct {
	Item     Item    `json:"item"`
	Bucket   Bucket  `json:"bucket"`
	Domain   Domain  `json:"domain"`
	Score    float64 `json:"score"`
	Price    float64 `json:"price"`
	IsOnSale bool    `json:"isOnSale"`
}

// PinnedEntry is an item an editor pinned to the shelves.
type PinnedEntry struct {
	ID       string    `json:"id"`
	Deal     Item      `json:"deal"`
	PinnedAt time.Time `json:"pinnedAt"`
}

// Shelf is a named, ordered group of items.
type Shelf struct {
	Title string `json:"title"`
	Items []Item `json:"items"`
}

// ShelfOverride is a manual, ordered id list for one shelf title.
type ShelfOverride struct {
	Title   string   `json:"title"`
	ItemIDs []string `json:"itemIds"`
}

// ShelfConfig is the manual-curation document for all shelves.
type ShelfConfig struct {
	Categories []ShelfOverride `json:"categories"`
}

// Lookup returns the override for title, if any.
func (c ShelfConfig) Lookup(title string) (ShelfOverride, bool) {
	for _, o := range c.Categories {
		if o.Title == title {
			return o, true
		}
	}
	return ShelfOverride{}, false
}

// Float returns a pointer to v. Handy for literals of optional fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Record is one raw, loosely typed product record as a feed returns it.
type Record map[string]any
