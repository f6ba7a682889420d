package replaycache

import (
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-dnstun/internal/dns/common/clock"
	"github.com/haukened/rr-dnstun/internal/dns/services/relay"
)

var ErrInvalidTTL = errors.New("replay cache ttl must be positive")

type entry struct {
	payload   []byte
	expiresAt time.Time
}

// replayCache is an in-memory LRU of packed tunnel answers, keyed by the
// decoded request bytes. Entries expire ttl after they were stored.
type replayCache struct {
	lru   *lru.Cache[string, entry]
	ttl   time.Duration
	clock clock.Clock
}

// New returns a replay cache holding up to size answers for ttl each.
func New(size int, ttl time.Duration, clk clock.Clock) (*replayCache, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	cache, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &replayCache{lru: cache, ttl: ttl, clock: clk}, nil
}

// Set stores payload under key, replacing any previous answer.
func (c *replayCache) Set(key string, payload []byte) {
	c.lru.Add(key, entry{payload: payload, expiresAt: c.clock.Now().Add(c.ttl)})
}

// Get returns the answer for key if present and not expired.
// Expired entries are removed.
func (c *replayCache) Get(key string) ([]byte, bool) {
	e, found := c.lru.Get(key)
	if !found {
		return nil, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.payload, true
}

// Len returns the number of stored answers, expired ones included.
func (c *replayCache) Len() int {
	return c.lru.Len()
}

var _ relay.Cache = (*replayCache)(nil)
