// Package slygad serves the hand-curated Slygad catalog bundled with the
// binary. A JSON file on disk can replace the bundled copy.
package slygad

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dealshelf/curator/engine/catalog"
	"github.com/dealshelf/curator/engine/normalize"
)

// Name is the feed name.
const Name = "slygad"

//go:embed products.json
var bundled []byte

// Source is the Slygad feed.
type Source struct {
	path string
}

// New returns the feed. An empty path serves the bundled catalog.
func New(path string) *Source {
	return &Source{path: path}
}

func (s *Source) Name() string { return Name }

// Load reads the catalog file or the bundled copy.
func (s *Source) Load(ctx context.Context) ([]catalog.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := bundled
	if s.path != "" {
		b, err := os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("slygad: read catalog: %w", err)
		}
		data = b
	}
	return Decode(data)
}

// Decode accepts either {"products": [...]} or a bare array.
func Decode(data []byte) ([]catalog.Record, error) {
	var doc struct {
		Products []catalog.Record `json:"products"`
	}
	if err := json.Unmarshal(data, &doc); err == nil {
		return doc.Products, nil
	}
	var list []catalog.Record
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("slygad: decode catalog: %w", err)
	}
	return list, nil
}

// Adapter maps Slygad catalog entries onto Item fields.
func Adapter() normalize.Adapter {
	a := normalize.Generic(Name)
	a.Name = []string{"title", "name"}
	a.Description = []string{"summary", "description"}
	a.OriginalPrice = []string{"was", "originalPrice"}
	a.Tags = []string{"labels", "tags"}
	a.Link = []string{"affiliate_url", "affiliateLink", "link"}
	a.GiftScore = []string{"curation.score", "giftScore"}
	a.Rating = []string{"curation.stars", "rating"}
	a.ReviewCount = []string{"curation.reviews", "reviewCount"}
	return a
}
