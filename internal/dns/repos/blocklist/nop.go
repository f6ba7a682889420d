package blocklist

import (
	"github.com/haukened/rr-dnstun/internal/dns/domain"
	"github.com/haukened/rr-dnstun/internal/dns/services/relay"
)

// NoopBlocklist allows every host. Used when no rule directory is configured.
type NoopBlocklist struct{}

func (n *NoopBlocklist) Decide(string) domain.BlockDecision {
	return domain.Allow()
}

var _ relay.Blocklist = (*NoopBlocklist)(nil)
