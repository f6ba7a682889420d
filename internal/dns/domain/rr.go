package domain

import "fmt"

// RRType is a DNS resource record type code.
type RRType uint16

// RRTypeTXT is the type carried by every relay answer.
const RRTypeTXT RRType = 16

func (t RRType) String() string {
	if t == RRTypeTXT {
		return "TXT"
	}
	return fmt.Sprintf("TYPE%d", uint16(t))
}

// RRClass is a DNS class code.
type RRClass uint16

// RRClassIN is the Internet class.
const RRClassIN RRClass = 1

func (c RRClass) String() string {
	if c == RRClassIN {
		return "IN"
	}
	return fmt.Sprintf("CLASS%d", uint16(c))
}
