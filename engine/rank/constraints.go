package rank

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dealshelf/curator/engine/catalog"
)

var (
	ErrInvalidK     = errors.New("k must be positive")
	ErrNegativeCap  = errors.New("cap must not be negative")
	ErrInvalidFloor = errors.New("domain floor must not be negative")
	ErrInvalidBand  = errors.New("week band is empty")
)

// ConfigError reports an invalid constraint setting.
type ConfigError struct {
	Field   string
	Wrapped error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rank: %s: %s", e.Field, e.Wrapped)
}

func (e *ConfigError) Unwrap() error { return e.Wrapped }

// BucketTarget is how many items the priority pass takes from a bucket.
type BucketTarget struct {
	Bucket catalog.Bucket `yaml:"bucket" json:"bucket"`
	Target int            `yaml:"target" json:"target"`
}

// WeekBand bounds the deal-of-the-week candidates.
type WeekBand struct {
	MinPrice        float64 `yaml:"minPrice" json:"minPrice"`
	MaxPrice        float64 `yaml:"maxPrice" json:"maxPrice"`
	MinGiftScore    float64 `yaml:"minGiftScore" json:"minGiftScore"`
	RelaxedMinScore float64 `yaml:"relaxedMinScore" json:"relaxedMinScore"`
}

// Constraints tunes the top-K selection. A nil cap means unlimited; a
// bucket or domain missing from its map is unlimited as well.
type Constraints struct {
	K              int                     `json:"k"`
	BucketCaps     map[catalog.Bucket]*int `json:"bucketCaps"`
	DomainCaps     map[catalog.Domain]*int `json:"domainCaps"`
	Priority       []BucketTarget          `json:"priority"`
	PriorityDomain catalog.Domain          `json:"priorityDomain"`
	DomainFloor    int                     `json:"domainFloor"`
	WeekBand       WeekBand                `json:"weekBand"`
}

// DefaultWeekBand is the premium band: €150-500 with a gift score of 8+,
// relaxed to 7+ at any price.
var DefaultWeekBand = WeekBand{MinPrice: 150, MaxPrice: 500, MinGiftScore: 8, RelaxedMinScore: 7}

// DefaultConstraints returns a fresh copy of the stock configuration.
func DefaultConstraints() Constraints {
	caps := make(map[catalog.Bucket]*int, len(catalog.AllBuckets))
	for _, b := range catalog.AllBuckets {
		caps[b] = catalog.Int(2)
	}
	caps[catalog.BucketGeneral] = catalog.Int(3)

	return Constraints{
		K:          10,
		BucketCaps: caps,
		DomainCaps: map[catalog.Domain]*int{
			catalog.DomainAmazon:   nil,
			catalog.DomainCoolblue: catalog.Int(4),
			catalog.DomainBol:      catalog.Int(4),
			catalog.DomainOther:    catalog.Int(4),
		},
		Priority: []BucketTarget{
			{catalog.BucketTech, 2},
			{catalog.BucketKitchen, 2},
			{catalog.BucketLifestyle, 2},
			{catalog.BucketSmartHome, 1},
			{catalog.BucketGaming, 1},
			{catalog.BucketKids, 1},
			{catalog.BucketOutdoor, 1},
			{catalog.BucketBeauty, 1},
			{catalog.BucketWellness, 1},
			{catalog.BucketGeneral, 1},
		},
		PriorityDomain: catalog.DomainAmazon,
		DomainFloor:    3,
		WeekBand:       DefaultWeekBand,
	}
}

// WithK returns a copy of c selecting k items; k <= 0 keeps c.K.
func (c Constraints) WithK(k int) Constraints {
	if k > 0 {
		c.K = k
	}
	return c
}

// Validate reports the first invalid setting.
func (c Constraints) Validate() error {
	if c.K <= 0 {
		return &ConfigError{Field: "k", Wrapped: ErrInvalidK}
	}
	for b, v := range c.BucketCaps {
		if v != nil && *v < 0 {
			return &ConfigError{Field: "bucketCaps." + string(b), Wrapped: ErrNegativeCap}
		}
	}
	for d, v := range c.DomainCaps {
		if v != nil && *v < 0 {
			return &ConfigError{Field: "domainCaps." + string(d), Wrapped: ErrNegativeCap}
		}
	}
	if c.DomainFloor < 0 {
		return &ConfigError{Field: "domainFloor", Wrapped: ErrInvalidFloor}
	}
	if c.WeekBand.MaxPrice < c.WeekBand.MinPrice {
		return &ConfigError{Field: "weekBand", Wrapped: ErrInvalidBand}
	}
	return nil
}

func (c Constraints) bucketCap(b catalog.Bucket) (int, bool) {
	v := c.BucketCaps[b]
	if v == nil {
		return 0, false
	}
	return *v, true
}

func (c Constraints) domainCap(d catalog.Domain) (int, bool) {
	v := c.DomainCaps[d]
	if v == nil {
		return 0, false
	}
	return *v, true
}

// constraintsFile is the YAML shape. Pointers tell "absent" from zero.
type constraintsFile struct {
	K              *int                    `yaml:"k"`
	BucketCaps     map[catalog.Bucket]*int `yaml:"bucketCaps"`
	DomainCaps     map[catalog.Domain]*int `yaml:"domainCaps"`
	Priority       []BucketTarget          `yaml:"priority"`
	PriorityDomain *catalog.Domain         `yaml:"priorityDomain"`
	DomainFloor    *int                    `yaml:"domainFloor"`
	WeekBand       *WeekBand               `yaml:"weekBand"`
}

// ParseConstraints decodes YAML over the defaults. Keys absent from the
// document keep their default; an explicit null cap means unlimited.
func ParseConstraints(data []byte) (Constraints, error) {
	var f constraintsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Constraints{}, fmt.Errorf("rank: parse constraints: %w", err)
	}

	c := DefaultConstraints()
	if f.K != nil {
		c.K = *f.K
	}
	for b, v := range f.BucketCaps {
		c.BucketCaps[b] = v
	}
	for d, v := range f.DomainCaps {
		c.DomainCaps[d] = v
	}
	if f.Priority != nil {
		c.Priority = f.Priority
	}
	if f.PriorityDomain != nil {
		c.PriorityDomain = *f.PriorityDomain
	}
	if f.DomainFloor != nil {
		c.DomainFloor = *f.DomainFloor
	}
	if f.WeekBand != nil {
		c.WeekBand = *f.WeekBand
	}
	if err := c.Validate(); err != nil {
		return Constraints{}, err
	}
	return c, nil
}

// LoadConstraints reads a YAML constraints file. An empty path yields the
// defaults.
func LoadConstraints(path string) (Constraints, error) {
	if path == "" {
		return DefaultConstraints(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Constraints{}, fmt.Errorf("rank: read constraints: %w", err)
	}
	return ParseConstraints(data)
}
