package bloom

import (
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/rr-dnstun/internal/dns/repos/blocklist"
)

// factory implements blocklist.BloomFactory on top of bits-and-blooms.
type factory struct{}

func NewFactory() blocklist.BloomFactory { return factory{} }

// New returns a filter sized by the library's own estimates. Out of range
// inputs are clamped to one key and a 1% false positive rate.
func (factory) New(capacity uint64, fpRate float64) blocklist.BloomFilter {
	if capacity == 0 {
		capacity = 1
	}
	if !(fpRate > 0 && fpRate < 1) {
		fpRate = 0.01
	}
	return &filter{bf: bitsbloom.NewWithEstimates(uint(capacity), fpRate)}
}

// filter serializes writes; reads share the lock.
type filter struct {
	mu sync.RWMutex
	bf *bitsbloom.BloomFilter
}

func (f *filter) Add(key []byte) {
	f.mu.Lock()
	f.bf.Add(key)
	f.mu.Unlock()
}

func (f *filter) MightContain(key []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.Test(key)
}
