// Package rank scores items and selects the ranked top-K list and the deal of
// the week under bucket and vendor diversity constraints.
package rank

import (
	"math"

	"github.com/dealshelf/curator/engine/catalog"
	"github.com/dealshelf/curator/engine/classify"
)

const (
	maxRatingBonus = 3.0
	maxReviewBonus = 1.5
	saleBonus      = 1.5
)

// Score is the composite quality score of an item. Missing signals add
// nothing and the result is never negative.
func Score(it catalog.Item) float64 {
	s := clamp(it.GiftScoreOr(0), 0, 10)
	if it.Rating != nil {
		s += clamp(*it.Rating/5*maxRatingBonus, 0, maxRatingBonus)
	}
	if it.ReviewCount != nil && *it.ReviewCount > 0 {
		s += math.Min(maxReviewBonus, math.Log10(float64(*it.ReviewCount)+1))
	}
	if it.IsOnSale {
		s += saleBonus
	}
	return s
}

// Meta builds the ranking view of it.
func Meta(it catalog.Item) catalog.ScoreMeta {
	return catalog.ScoreMeta{
		Item:     it,
		Bucket:   classify.Bucket(it),
		Domain:   classify.DetectDomain(it.AffiliateLink),
		Score:    Score(it),
		Price:    it.Price,
		IsOnSale: it.IsOnSale,
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
