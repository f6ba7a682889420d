package utils

import "golang.org/x/net/publicsuffix"

// GetApexDomain returns the registrable domain (eTLD+1) of name, or the
// canonical name itself when no public suffix rule applies.
func GetApexDomain(name string) string {
	name = CanonicalDNSName(name)
	apexDomain, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		apexDomain = name
	}
	return apexDomain
}
