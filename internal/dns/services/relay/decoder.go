package relay

import (
	"encoding/base32"
	"strings"

	"github.com/haukened/rr-dnstun/internal/dns/domain"
)

// DefaultCarriers are the domain suffixes that mark a query as tunnel traffic.
var DefaultCarriers = []string{"amnupower.com", "amnupower.net"}

// ExtractPayload pulls the tunnel data token out of a query addressed to one
// of the carriers. It returns nil when the name does not mention a carrier or
// when the leftmost label is not valid base-32. The reconstructed name is
// always returned for logging.
func ExtractPayload(query domain.DNSQuery, carriers []string) (*domain.TunnelPayload, string) {
	name := query.Name()
	carrier := matchCarrier(name, carriers)
	if carrier == "" {
		return nil, name
	}

	token, _, _ := strings.Cut(name, ".")
	data, err := decodeToken(token)
	if err != nil {
		return nil, name
	}
	return &domain.TunnelPayload{
		Data:    data,
		Domain:  name,
		Carrier: carrier,
	}, name
}

// matchCarrier returns the first carrier contained anywhere in name, compared
// in lower case, or "" when there is none.
func matchCarrier(name string, carriers []string) string {
	lower := strings.ToLower(name)
	for _, c := range carriers {
		if c != "" && strings.Contains(lower, strings.ToLower(c)) {
			return c
		}
	}
	return ""
}

// decodeToken decodes an unpadded, case-insensitive base-32 label.
func decodeToken(token string) ([]byte, error) {
	token = strings.ToUpper(token)
	if rem := len(token) % 8; rem != 0 {
		token += strings.Repeat("=", 8-rem)
	}
	return base32.StdEncoding.DecodeString(token)
}
