package relay

import (
	"context"

	"github.com/haukened/rr-dnstun/internal/dns/domain"
)

// Executor performs the outbound HTTP call for an embedded request.
// Implementations never fail; errors come back as synthesized responses.
type Executor interface {
	Execute(ctx context.Context, req domain.EmbeddedHTTPRequest) domain.UpstreamResponse
}

// Blocklist decides whether an egress host may be contacted.
// The host is already canonical: lower case, no port, no trailing dot.
type Blocklist interface {
	Decide(host string) domain.BlockDecision
}

// Cache holds packed answers for retransmitted tunnel requests.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, payload []byte)
}
