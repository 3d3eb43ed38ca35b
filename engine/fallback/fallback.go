// Package fallback holds the hand-authored catalog served whenever live feeds
// cannot fill a result. Everything here is static and needs no I/O.
package fallback

import "github.com/dealshelf/curator/engine/catalog"

// Source is the feed name stamped on fallback items.
const Source = "fallback"

var items = []catalog.Item{
	{
		ID: "top-01", Name: "Apple AirPods Pro (2nd generation)",
		Description: "Noise-cancelling wireless earbuds with adaptive transparency and USB-C charging case.",
		Price: 249, OriginalPrice: catalog.Float(279), IsOnSale: true,
		Tags: []string{"audio", "wireless", "earbuds"}, Category: "Tech",
		AffiliateLink: "https://www.amazon.nl/dp/B0CHWRXH8B?tag=dealshelf-21",
		GiftScore:     catalog.Float(9.2), Rating: catalog.Float(4.7), ReviewCount: catalog.Int(48210),
	},
	{
		ID: "top-02", Name: "Philips Airfryer XXL",
		Description: "Large-capacity air fryer for crispy results with up to 90% less fat.",
		Price: 199, Tags: []string{"kitchen", "cooking"}, Category: "Kitchen",
		AffiliateLink: "https://www.amazon.nl/dp/B08C4KWM9T?tag=dealshelf-21",
		GiftScore:     catalog.Float(8.6), Rating: catalog.Float(4.6), ReviewCount: catalog.Int(12877),
	},
	{
		ID: "top-03", Name: "Philips Hue White and Color Ambiance Starter Kit",
		Description: "Smart lighting starter kit with bridge and three colour bulbs.",
		Price: 159, OriginalPrice: catalog.Float(189), IsOnSale: true,
		Tags: []string{"smart home", "lighting"}, Category: "Smart Home",
		AffiliateLink: "https://www.coolblue.nl/product/829377",
		GiftScore:     catalog.Float(8.4), Rating: catalog.Float(4.5), ReviewCount: catalog.Int(3011),
	},
	{
		ID: "top-04", Name: "Nintendo Switch OLED",
		Description: "Hybrid gaming console with a 7-inch OLED screen.",
		Price: 319, Tags: []string{"gaming", "console"}, Category: "Gaming",
		AffiliateLink: "https://www.bol.com/nl/nl/p/nintendo-switch-oled/9300000052326488/",
		GiftScore:     catalog.Float(9), Rating: catalog.Float(4.8), ReviewCount: catalog.Int(9120),
	},
	{
		ID: "top-05", Name: "LEGO Creator 3-in-1 Space Shuttle",
		Description: "Build a space shuttle, an astronaut or a spaceship. For kids aged 8 and up.",
		Price: 49.99, Tags: []string{"lego", "kids", "toy"}, Category: "Kids",
		AffiliateLink: "https://www.amazon.nl/dp/B0BBSBG7JZ?tag=dealshelf-21",
		GiftScore:     catalog.Float(8.1), Rating: catalog.Float(4.8), ReviewCount: catalog.Int(2204),
	},
	{
		ID: "top-06", Name: "Moleskine Classic Notebook",
		Description: "Hard cover ruled notebook, a timeless everyday carry.",
		Price: 22.95, Tags: []string{"stationery", "gift"}, Category: "Lifestyle",
		AffiliateLink: "https://www.bol.com/nl/nl/p/moleskine-classic-notitieboek/9200000011346441/",
		GiftScore:     catalog.Float(7.4), Rating: catalog.Float(4.6), ReviewCount: catalog.Int(7640),
	},
	{
		ID: "top-07", Name: "Therabody Theragun Mini",
		Description: "Compact percussive massage device for on-the-go muscle recovery.",
		Price: 179, OriginalPrice: catalog.Float(199), IsOnSale: true,
		Tags: []string{"massage", "recovery"}, Category: "Wellness",
		AffiliateLink: "https://www.coolblue.nl/product/901245",
		GiftScore:     catalog.Float(8), Rating: catalog.Float(4.4), ReviewCount: catalog.Int(1380),
	},
	{
		ID: "top-08", Name: "Stanley Quencher Tumbler 1.18L",
		Description: "Insulated stainless steel tumbler for hiking, camping and the office.",
		Price: 44.95, Tags: []string{"outdoor", "drinkware"}, Category: "Outdoor",
		AffiliateLink: "https://www.amazon.nl/dp/B0CJZMP7L1?tag=dealshelf-21",
		GiftScore:     catalog.Float(7.6), Rating: catalog.Float(4.7), ReviewCount: catalog.Int(15530),
	},
	{
		ID: "top-09", Name: "Rituals The Ritual of Sakura Gift Set",
		Description: "Skincare gift set with shower foam, body cream and scrub.",
		Price: 29.9, Tags: []string{"skincare", "gift set"}, Category: "Beauty",
		AffiliateLink: "https://www.bol.com/nl/nl/p/rituals-sakura-giftset/9300000130421144/",
		GiftScore:     catalog.Float(7.8), Rating: catalog.Float(4.7), ReviewCount: catalog.Int(860),
	},
	{
		ID: "top-10", Name: "Kindle Paperwhite",
		Description: "Waterproof e-reader with a 6.8-inch glare-free display and adjustable warm light.",
		Price: 169.99, Tags: []string{"e-reader", "books"}, Category: "Tech",
		AffiliateLink: "https://www.amazon.nl/dp/B08N3J8GTX?tag=dealshelf-21",
		GiftScore:     catalog.Float(8.8), Rating: catalog.Float(4.7), ReviewCount: catalog.Int(35120),
	},
}

var weekItem = catalog.Item{
	ID: "week-fallback", Name: "Sony WH-1000XM5 Wireless Headphones",
	Description: "Industry-leading noise cancelling over-ear headphones with 30 hours of battery life.",
	Price: 329, OriginalPrice: catalog.Float(419), IsOnSale: true,
	Tags: []string{"audio", "headphones", "noise cancelling"}, Category: "Tech",
	AffiliateLink: "https://www.amazon.nl/dp/B09Y2MYL5C?tag=dealshelf-21",
	GiftScore:     catalog.Float(9.4), Rating: catalog.Float(4.6), ReviewCount: catalog.Int(21400),
}

// Items returns a fresh copy of the fallback catalog, ids top-01 … top-10.
func Items() []catalog.Item {
	return stamp(catalog.CloneAll(items))
}

// DealOfWeek returns the static deal-of-the-week pick.
func DealOfWeek() catalog.Item {
	it := weekItem.Clone()
	it.Source = Source
	return it
}

func stamp(in []catalog.Item) []catalog.Item {
	for i := range in {
		in[i].Source = Source
	}
	return in
}
