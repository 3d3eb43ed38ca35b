package rank

import (
	"github.com/dealshelf/curator/engine/catalog"
	"github.com/dealshelf/curator/engine/fallback"
)

// Tier names which rule picked the deal of the week.
type Tier string

const (
	TierPremium  Tier = "premium"
	TierRelaxed  Tier = "relaxed"
	TierFallback Tier = "fallback"
)

// WeekPick is the deal of the week and how it was chosen.
type WeekPick struct {
	Item catalog.Item `json:"item"`
	Tier Tier         `json:"tier"`
}

// PickWeek chooses the deal of the week: the best premium-band item by gift
// score (sale items first on ties), else the best item above the relaxed
// score, else the static fallback pick.
func PickWeek(items []catalog.Item, band WeekBand) WeekPick {
	var premium, relaxed []catalog.Item
	for _, it := range items {
		g := it.GiftScoreOr(0)
		if it.Price >= band.MinPrice && it.Price <= band.MaxPrice && g >= band.MinGiftScore {
			premium = append(premium, it)
		}
		if g >= band.RelaxedMinScore {
			relaxed = append(relaxed, it)
		}
	}
	if best, ok := bestByGift(premium); ok {
		return WeekPick{Item: best.Clone(), Tier: TierPremium}
	}
	if best, ok := bestByGift(relaxed); ok {
		return WeekPick{Item: best.Clone(), Tier: TierRelaxed}
	}
	return WeekPick{Item: fallback.DealOfWeek(), Tier: TierFallback}
}

// DealOfWeek returns only the item of PickWeek.
func DealOfWeek(items []catalog.Item, band WeekBand) catalog.Item {
	return PickWeek(items, band).Item
}

func bestByGift(items []catalog.Item) (catalog.Item, bool) {
	if len(items) == 0 {
		return catalog.Item{}, false
	}
	best := items[0]
	for _, it := range items[1:] {
		if giftBefore(it, best) {
			best = it
		}
	}
	return best, true
}

func giftBefore(a, b catalog.Item) bool {
	ga, gb := a.GiftScoreOr(0), b.GiftScoreOr(0)
	if ga != gb {
		return ga > gb
	}
	if a.IsOnSale != b.IsOnSale {
		return a.IsOnSale
	}
	return a.Key() < b.Key()
}
