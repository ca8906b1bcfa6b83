package richlist

import "sort"

// Policy decides which discovered addresses get a fresh on-chain balance in a pass.
// Addresses seen rarely are always refreshed. Frequently seen ones are sampled so the
// RPC load stays bounded as the address set grows.
type Policy struct {
	NewVisits       int
	FrequentVisits  int
	MidProbability  float64
	HighProbability float64
	// NearCapacity is the fraction of Capacity above which frequent addresses are skipped.
	NearCapacity float64
	Capacity     int
	// RetainFraction is the share of Capacity kept on eviction.
	RetainFraction float64
}

// DefaultPolicy returns the stock sampling thresholds.
func DefaultPolicy() Policy {
	return Policy{
		NewVisits:       3,
		FrequentVisits:  10,
		MidProbability:  0.3,
		HighProbability: 0.1,
		NearCapacity:    0.9,
		Capacity:        100_000,
		RetainFraction:  0.75,
	}
}

// ShouldRefresh reports whether an address with prior visits is refreshed.
// cached is the current size of the visit cache and roll draws from [0, 1).
func (p Policy) ShouldRefresh(visits, cached int, roll func() float64) bool {
	switch {
	case visits < p.NewVisits:
		return true
	case visits < p.FrequentVisits:
		return roll() < p.MidProbability
	case p.nearCapacity(cached):
		return false
	default:
		return roll() < p.HighProbability
	}
}

func (p Policy) nearCapacity(cached int) bool {
	if p.Capacity <= 0 {
		return false
	}
	return float64(cached) >= p.NearCapacity*float64(p.Capacity)
}

// retainCount is the number of entries kept when the cache is over capacity.
func (p Policy) retainCount() int {
	keep := int(float64(p.Capacity) * p.RetainFraction)
	if keep < 0 {
		keep = 0
	}
	if keep > p.Capacity {
		keep = p.Capacity
	}
	return keep
}

// visitCache counts how often each address was discovered.
type visitCache struct {
	counts map[string]int
}

func newVisitCache() *visitCache {
	return &visitCache{counts: make(map[string]int)}
}

func (c *visitCache) len() int {
	return len(c.counts)
}

// visit returns the visits before this one and records the new visit.
func (c *visitCache) visit(address string) int {
	prior := c.counts[address]
	c.counts[address] = prior + 1
	return prior
}

// evict keeps the keep entries with the highest counts once size exceeds capacity.
// Ties keep the lower address.
func (c *visitCache) evict(capacity, keep int) int {
	if capacity <= 0 || len(c.counts) <= capacity {
		return 0
	}
	type entry struct {
		address string
		count   int
	}
	entries := make([]entry, 0, len(c.counts))
	for address, count := range c.counts {
		entries = append(entries, entry{address: address, count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].address < entries[j].address
	})

	removed := len(entries) - keep
	retained := make(map[string]int, keep)
	for _, e := range entries[:keep] {
		retained[e.address] = e.count
	}
	c.counts = retained
	return removed
}
