package rank

import (
	"sort"

	"github.com/dealshelf/curator/engine/catalog"
	"github.com/dealshelf/curator/engine/fallback"
)

// Selection is the outcome of a top-K run.
type Selection struct {
	Items []catalog.Item      `json:"items"`
	Metas []catalog.ScoreMeta `json:"-"`
	// Forced is set when caps had to be relaxed to reach K.
	Forced bool `json:"forced"`
	// Repaired counts evictions made to honour the priority-domain floor.
	Repaired int `json:"repaired"`
	// CapsRelaxed is set when a floor repair pushed a bucket over its cap.
	CapsRelaxed bool `json:"capsRelaxed"`
	// Padded counts fallback catalog items appended.
	Padded int `json:"padded"`
}

// IDs returns the selected item ids in order.
func (s Selection) IDs() []string {
	out := make([]string, len(s.Items))
	for i, it := range s.Items {
		out[i] = it.ID
	}
	return out
}

// byBucketRank orders items inside one bucket: sale first, then score,
// then cheaper first.
func byBucketRank(a, b catalog.ScoreMeta) bool {
	if a.IsOnSale != b.IsOnSale {
		return a.IsOnSale
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.Item.Key() < b.Item.Key()
}

// byScore is the plain score order used by the forced pass and repair.
func byScore(a, b catalog.ScoreMeta) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.IsOnSale != b.IsOnSale {
		return a.IsOnSale
	}
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.Item.Key() < b.Item.Key()
}

// preferDomain puts d ahead of everything else, then falls back to byScore.
func preferDomain(d catalog.Domain) func(a, b catalog.ScoreMeta) bool {
	return func(a, b catalog.ScoreMeta) bool {
		if pa, pb := a.Domain == d, b.Domain == d; pa != pb {
			return pa
		}
		return byScore(a, b)
	}
}

func sortMetas(ms []catalog.ScoreMeta, less func(a, b catalog.ScoreMeta) bool) {
	sort.SliceStable(ms, func(i, j int) bool { return less(ms[i], ms[j]) })
}

// selector is the mutable state of one TopK run.
type selector struct {
	c       Constraints
	picked  []catalog.ScoreMeta
	locked  map[string]bool
	ids     map[string]bool
	buckets map[catalog.Bucket]int
	domains map[catalog.Domain]int
}

func (s *selector) full() bool { return len(s.picked) >= s.c.K }

func (s *selector) fits(m catalog.ScoreMeta) bool {
	if n, ok := s.c.bucketCap(m.Bucket); ok && s.buckets[m.Bucket] >= n {
		return false
	}
	if n, ok := s.c.domainCap(m.Domain); ok && s.domains[m.Domain] >= n {
		return false
	}
	return true
}

func (s *selector) add(m catalog.ScoreMeta) {
	s.picked = append(s.picked, m)
	s.ids[m.Item.ID] = true
	s.buckets[m.Bucket]++
	s.domains[m.Domain]++
}

func (s *selector) replace(i int, m catalog.ScoreMeta) {
	old := s.picked[i]
	delete(s.ids, old.Item.ID)
	s.buckets[old.Bucket]--
	s.domains[old.Domain]--

	s.picked[i] = m
	s.ids[m.Item.ID] = true
	s.buckets[m.Bucket]++
	s.domains[m.Domain]++
}

func (s *selector) remaining(all []catalog.ScoreMeta) []catalog.ScoreMeta {
	var out []catalog.ScoreMeta
	for _, m := range all {
		if !s.ids[m.Item.ID] {
			out = append(out, m)
		}
	}
	return out
}

// TopK selects up to c.K items maximising score under bucket and domain
// caps, guarantees the priority-domain floor where candidates allow it,
// and pads short results from the fallback catalog. Selected ids are
// distinct; when two items share an id the better ranked one wins.
func TopK(items []catalog.Item, c Constraints) Selection {
	if c.K <= 0 {
		c.K = DefaultConstraints().K
	}

	all := make([]catalog.ScoreMeta, len(items))
	for i, it := range items {
		all[i] = Meta(it)
	}

	s := &selector{
		c:       c,
		locked:  make(map[string]bool),
		ids:     make(map[string]bool),
		buckets: make(map[catalog.Bucket]int),
		domains: make(map[catalog.Domain]int),
	}

	groups := make(map[catalog.Bucket][]catalog.ScoreMeta)
	for _, m := range all {
		groups[m.Bucket] = append(groups[m.Bucket], m)
	}
	for b := range groups {
		sortMetas(groups[b], byBucketRank)
	}

	// Priority pass. The first pick of each bucket is protected from eviction.
	for _, t := range c.Priority {
		taken := 0
		for _, m := range groups[t.Bucket] {
			if taken >= t.Target || s.full() {
				break
			}
			if s.ids[m.Item.ID] || !s.fits(m) {
				continue
			}
			s.add(m)
			if taken == 0 {
				s.locked[m.Item.ID] = true
			}
			taken++
		}
	}

	// Fill pass, still capped, preferring the priority domain.
	if !s.full() {
		rest := s.remaining(all)
		sortMetas(rest, preferDomain(c.PriorityDomain))
		for _, m := range rest {
			if s.full() {
				break
			}
			if s.ids[m.Item.ID] || !s.fits(m) {
				continue
			}
			s.add(m)
		}
	}

	// Forced pass, caps off.
	forced := false
	if !s.full() {
		forced = true
		rest := s.remaining(all)
		sortMetas(rest, byScore)
		for _, m := range rest {
			if s.full() {
				break
			}
			if !s.ids[m.Item.ID] {
				s.add(m)
			}
		}
	}

	repaired, relaxed := s.repairFloor(all)

	sortMetas(s.picked, preferDomain(c.PriorityDomain))

	sel := Selection{Forced: forced, Repaired: repaired, CapsRelaxed: relaxed}
	if len(s.picked) == 0 {
		for _, it := range fallback.Items() {
			if len(sel.Items) >= c.K {
				break
			}
			sel.Items = append(sel.Items, it)
			sel.Metas = append(sel.Metas, Meta(it))
		}
		sel.Padded = len(sel.Items)
		return sel
	}

	for _, m := range s.picked {
		sel.Items = append(sel.Items, m.Item.Clone())
		sel.Metas = append(sel.Metas, m)
	}
	for _, it := range fallback.Items() {
		if len(sel.Items) >= c.K {
			break
		}
		if s.ids[it.ID] {
			continue
		}
		s.ids[it.ID] = true
		sel.Items = append(sel.Items, it)
		sel.Metas = append(sel.Metas, Meta(it))
		sel.Padded++
	}
	return sel
}

// repairFloor swaps unlocked non-priority members for priority-domain
// candidates until the floor is met. A first round only makes swaps that
// keep the bucket caps; a second round may break them, and reports so.
// Locked members are never evicted, so the floor can stay unmet.
func (s *selector) repairFloor(all []catalog.ScoreMeta) (repaired int, relaxed bool) {
	d := s.c.PriorityDomain
	if d == "" || s.c.DomainFloor <= 0 {
		return 0, false
	}

	available := make(map[string]bool)
	for _, m := range all {
		if m.Domain == d {
			available[m.Item.ID] = true
		}
	}
	floor := min(s.c.DomainFloor, len(available))

	candidates := filterDomain(s.remaining(all), d)
	sortMetas(candidates, byScore)

	for _, strict := range []bool{true, false} {
		for _, cand := range candidates {
			if s.domains[d] >= floor {
				return repaired, relaxed
			}
			if s.ids[cand.Item.ID] {
				continue
			}
			if i := s.victim(cand, strict); i >= 0 {
				s.replace(i, cand)
				repaired++
				if n, ok := s.c.bucketCap(cand.Bucket); ok && s.buckets[cand.Bucket] > n {
					relaxed = true
				}
			}
		}
	}
	return repaired, relaxed
}

// victim returns the index of the lowest-scoring unlocked non-priority
// member cand may replace, or -1. With strict set, only members whose
// eviction keeps cand's bucket within its cap qualify.
func (s *selector) victim(cand catalog.ScoreMeta, strict bool) int {
	worst := -1
	for i, m := range s.picked {
		if m.Domain == s.c.PriorityDomain || s.locked[m.Item.ID] {
			continue
		}
		if strict && m.Bucket != cand.Bucket {
			if n, ok := s.c.bucketCap(cand.Bucket); ok && s.buckets[cand.Bucket] >= n {
				continue
			}
		}
		if worst < 0 || byScore(s.picked[worst], m) {
			worst = i
		}
	}
	return worst
}

func filterDomain(ms []catalog.ScoreMeta, d catalog.Domain) []catalog.ScoreMeta {
	var out []catalog.ScoreMeta
	for _, m := range ms {
		if m.Domain == d {
			out = append(out, m)
		}
	}
	return out
}
