package wire

import (
	"github.com/haukened/rr-dnstun/internal/dns/domain"
)

type DNSCodec interface {
	// Relay functions
	// These methods read inbound tunnel queries and build the single-answer replies.
	DecodeQuery(data []byte) (domain.DNSQuery, error)
	EncodeResponse(resp domain.DNSResponse) ([]byte, error)

	// Client functions
	// DecodeResponse reads a relay reply back into its question echo and answer payload.
	DecodeResponse(data []byte) (domain.DNSResponse, error)
}
