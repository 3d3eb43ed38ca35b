package classify

import (
	"strings"

	"github.com/dealshelf/curator/engine/catalog"
)

var vendorMarkers = []struct {
	marker string
	domain catalog.Domain
}{
	{"amazon.", catalog.DomainAmazon},
	{"coolblue.", catalog.DomainCoolblue},
	{"bol.", catalog.DomainBol},
}

// DetectDomain extracts the vendor from an affiliate link.
func DetectDomain(link string) catalog.Domain {
	l := strings.ToLower(link)
	for _, m := range vendorMarkers {
		if strings.Contains(l, m.marker) {
			return m.domain
		}
	}
	return catalog.DomainOther
}

// DomainOf is DetectDomain for loosely typed links; non-strings are other.
func DomainOf(v any) catalog.Domain {
	s, ok := v.(string)
	if !ok {
		return catalog.DomainOther
	}
	return DetectDomain(s)
}
