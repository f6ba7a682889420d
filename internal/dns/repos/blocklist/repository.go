package blocklist

import (
	"strings"
	"sync"

	"github.com/haukened/rr-dnstun/internal/dns/common/utils"
	"github.com/haukened/rr-dnstun/internal/dns/domain"
	"github.com/haukened/rr-dnstun/internal/dns/services/relay"
)

// DefaultFPRate is the bloom false positive target used when rebuilding.
const DefaultFPRate = 0.001

// repository applies a bloom → cache → store pipeline on reads and swaps
// the whole rule set atomically on writes.
type repository struct {
	mu      sync.RWMutex
	store   Store
	cache   DecisionCache
	bloom   BloomFilter
	factory BloomFactory
	fpRate  float64
}

// NewRepository constructs a Repository. Until UpdateAll runs there is no
// bloom filter and every lookup goes to the cache and store.
func NewRepository(store Store, cache DecisionCache, factory BloomFactory, fpRate float64) *repository {
	if !(fpRate > 0 && fpRate < 1) {
		fpRate = DefaultFPRate
	}
	return &repository{store: store, cache: cache, factory: factory, fpRate: fpRate}
}

// Decide returns the verdict for host. Store errors allow the request.
func (r *repository) Decide(host string) domain.BlockDecision {
	h := utils.CanonicalHost(host)
	if h == "" {
		return domain.Allow()
	}
	if !r.checkBloom(h) {
		return domain.Allow()
	}
	if d, ok := r.cache.Get(h); ok {
		return d
	}
	dec := r.checkStore(h)
	r.cache.Put(h, dec)
	return dec
}

// UpdateAll rebuilds the store, then swaps in a fresh bloom filter and
// purges cached decisions.
func (r *repository) UpdateAll(rules []domain.EgressRule, version uint64, updatedUnix int64) error {
	if err := r.store.RebuildAll(rules, version, updatedUnix); err != nil {
		return err
	}

	bf := r.factory.New(uint64(len(rules)), r.fpRate)
	for _, ru := range rules {
		bf.Add(bloomKey(ru.Host, ru.Kind))
	}

	r.mu.Lock()
	r.bloom = bf
	r.mu.Unlock()
	r.cache.Purge()
	return nil
}

func (r *repository) Stats() RepoStats {
	return RepoStats{Cache: r.cache.Stats(), Store: r.store.Stats()}
}

// bloomKey namespaces exact and suffix anchors so one filter serves both.
func bloomKey(host string, kind domain.RuleKind) []byte {
	if kind == domain.RuleSuffix {
		return []byte("*." + host)
	}
	return []byte("=" + host)
}

// checkBloom reports whether the store may hold a rule for host. Without
// a filter it always does.
func (r *repository) checkBloom(host string) bool {
	r.mu.RLock()
	bf := r.bloom
	r.mu.RUnlock()
	if bf == nil {
		return true
	}
	if bf.MightContain(bloomKey(host, domain.RuleExact)) {
		return true
	}
	for a := host; a != ""; {
		if bf.MightContain(bloomKey(a, domain.RuleSuffix)) {
			return true
		}
		i := strings.IndexByte(a, '.')
		if i < 0 {
			break
		}
		a = a[i+1:]
	}
	return false
}

func (r *repository) checkStore(host string) domain.BlockDecision {
	rule, ok, err := r.store.GetFirstMatch(host)
	if err == nil && ok {
		return domain.Block(rule)
	}
	return domain.Allow()
}

var _ Repository = (*repository)(nil)
var _ relay.Blocklist = (*repository)(nil)
