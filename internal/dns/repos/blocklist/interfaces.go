package blocklist

import "github.com/haukened/rr-dnstun/internal/dns/domain"

// BloomFilter is the pre-filter consulted before the cache and the store.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds a filter sized for capacity keys at the target false positive rate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// DecisionCache caches verdicts by canonical host.
type DecisionCache interface {
	Get(host string) (domain.BlockDecision, bool)
	Put(host string, d domain.BlockDecision)
	Len() int
	Purge()
	Stats() CacheStats
}

// Store is the persistent rule index.
//   - RebuildAll replaces every rule in one transaction.
//   - GetFirstMatch returns the most specific rule covering host.
type Store interface {
	RebuildAll(rules []domain.EgressRule, version uint64, updatedUnix int64) error
	GetFirstMatch(host string) (domain.EgressRule, bool, error)
	Stats() StoreStats
	Close() error
}

// Repository wires bloom → cache → store.
type Repository interface {
	Decide(host string) domain.BlockDecision
	UpdateAll(rules []domain.EgressRule, version uint64, updatedUnix int64) error
	Stats() RepoStats
}

// CacheStats reports decision cache counters.
type CacheStats struct {
	Capacity  int
	Size      int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// StoreStats reports rule counts and snapshot metadata.
type StoreStats struct {
	Version     uint64
	UpdatedUnix int64
	ExactKeys   uint64
	SuffixKeys  uint64
}

// RepoStats combines cache and store stats.
type RepoStats struct {
	Cache CacheStats
	Store StoreStats
}
