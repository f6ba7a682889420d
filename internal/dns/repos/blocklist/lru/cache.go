package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-dnstun/internal/dns/domain"
	"github.com/haukened/rr-dnstun/internal/dns/repos/blocklist"
)

// decisionCache keeps recent egress verdicts by canonical host.
type decisionCache struct {
	lru       *lru.Cache[string, domain.BlockDecision]
	capacity  int
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// disabledCache always misses. Returned for size <= 0.
type disabledCache struct{}

func New(size int) (blocklist.DecisionCache, error) {
	if size <= 0 {
		return disabledCache{}, nil
	}
	dc := &decisionCache{capacity: size}
	cache, err := lru.NewWithEvict(size, func(string, domain.BlockDecision) {
		dc.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return dc, nil
}

func (c *decisionCache) Get(host string) (domain.BlockDecision, bool) {
	if d, ok := c.lru.Get(host); ok {
		c.hits.Add(1)
		return d, true
	}
	c.misses.Add(1)
	return domain.BlockDecision{}, false
}

func (c *decisionCache) Put(host string, d domain.BlockDecision) { c.lru.Add(host, d) }

func (c *decisionCache) Len() int { return c.lru.Len() }

// Purge drops every entry; each one counts as an eviction.
func (c *decisionCache) Purge() { c.lru.Purge() }

func (c *decisionCache) Stats() blocklist.CacheStats {
	return blocklist.CacheStats{
		Capacity:  c.capacity,
		Size:      c.lru.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

func (disabledCache) Get(string) (domain.BlockDecision, bool) { return domain.BlockDecision{}, false }
func (disabledCache) Put(string, domain.BlockDecision)        {}
func (disabledCache) Len() int                                { return 0 }
func (disabledCache) Purge()                                  {}
func (disabledCache) Stats() blocklist.CacheStats             { return blocklist.CacheStats{} }

var _ blocklist.DecisionCache = (*decisionCache)(nil)
var _ blocklist.DecisionCache = disabledCache{}
