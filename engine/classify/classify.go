// Package classify assigns items to interest buckets and vendor domains using
// keyword heuristics. Rule data lives in an ordered table; the matcher is a
// generic first-match reducer.
package classify

import (
	"strings"

	"github.com/dealshelf/curator/engine/catalog"
)

// Rule maps a bucket to the keywords that select it.
type Rule struct {
	Bucket   catalog.Bucket
	Keywords []string
}

// Rules is evaluated top to bottom; the first rule with any keyword present
// in the haystack wins. Order matters on overlapping keywords.
var Rules = []Rule{
	{catalog.BucketKids, []string{
		"kids", "kinder", "child", "baby", "speelgoed", "toy", "lego", "playmobil", "puzzle",
	}},
	{catalog.BucketGaming, []string{
		"gaming", "game", "console", "nintendo", "playstation", "xbox", "controller", "steam deck",
	}},
	{catalog.BucketKitchen, []string{
		"kitchen", "keuken", "airfryer", "air fryer", "coffee", "koffie", "espresso",
		"blender", "cook", "kook", "mixer", "knife", "mes ", "pannen", "waterkoker",
	}},
	{catalog.BucketSmartHome, []string{
		"smart home", "smart plug", "smart light", "slimme", "hue", "alexa", "echo dot",
		"google nest", "thermostat", "doorbell", "deurbel", "robot vacuum", "robotstofzuiger",
	}},
	{catalog.BucketLifestyle, []string{
		"lifestyle", "stationery", "journal", "diary", "notebook", "candle", "kaars",
		"wallet", "portemonnee", "decor", "plaid", "boek", "novel",
	}},
	{catalog.BucketBeauty, []string{
		"beauty", "skincare", "huidverzorging", "makeup", "make-up", "parfum", "perfume",
		"rituals", "hair dryer", "hairdryer", "föhn", "shaver", "scheer",
	}},
	{catalog.BucketOutdoor, []string{
		"outdoor", "camping", "hiking", "wandel", "bbq", "barbecue", "garden", "tuin",
		"bike", "fiets", "picnic",
	}},
	{catalog.BucketTech, []string{
		"tech", "gadget", "headphone", "koptelefoon", "earbuds", "speaker", "laptop",
		"tablet", "smartphone", "smartwatch", "camera", "charger", "oplader", "usb",
		"bluetooth", "e-reader", "kindle", "monitor", "keyboard", "toetsenbord", "drone",
	}},
	{catalog.BucketWellness, []string{
		"wellness", "massage", "fitness", "yoga", "sleep", "slaap", "meditation",
		"recovery", "health", "gezondheid",
	}},
}

// Match returns the bucket of the first rule matching haystack, or def.
// haystack must already be lowercase.
func Match(rules []Rule, haystack string, def catalog.Bucket) catalog.Bucket {
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(haystack, kw) {
				return r.Bucket
			}
		}
	}
	return def
}

// Haystack builds the lowercase text the rules are evaluated against.
func Haystack(it catalog.Item) string {
	parts := []string{it.Name, it.Category, it.Description, it.ShortDescription, strings.Join(it.Tags, " ")}
	return strings.ToLower(strings.Join(parts, " "))
}

// Bucket classifies an item using the default rule table.
func Bucket(it catalog.Item) catalog.Bucket {
	return Match(Rules, Haystack(it), catalog.BucketGeneral)
}

// ClassifyText classifies free text, e.g. a shelf title or search phrase.
func ClassifyText(text string) catalog.Bucket {
	return Match(Rules, strings.ToLower(text), catalog.BucketGeneral)
}
