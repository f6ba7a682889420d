package utils

import (
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// CanonicalHost normalizes the value of an HTTP Host header for policy lookups.
// The port is dropped, IPv6 brackets are removed, and unicode names are mapped
// to their ASCII (punycode) form before CanonicalDNSName is applied.
// Names that fail IDNA mapping are returned in plain canonical form.
func CanonicalHost(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if net.ParseIP(host) != nil {
		return strings.ToLower(host)
	}
	if ascii, err := idna.Lookup.ToASCII(CanonicalDNSName(host)); err == nil {
		return CanonicalDNSName(ascii)
	}
	return CanonicalDNSName(host)
}
