package domain

import "strings"

// DNSQuery is the part of an inbound datagram the relay cares about.
// It is produced by the wire codec only for buffers of at least 12 bytes.
type DNSQuery struct {
	ID    uint16
	Flags uint16
	// Labels holds the question name as read from the wire. A label whose
	// declared length ran past the buffer end is not included.
	Labels []string
	// Question is the raw question section, echoed back verbatim in the reply.
	Question []byte
	Raw      []byte
}

// Name joins the question labels with dots.
func (q DNSQuery) Name() string {
	return strings.Join(q.Labels, ".")
}

// IsResponse reports whether the QR bit is set on the inbound message.
func (q DNSQuery) IsResponse() bool {
	return q.Flags&0x8000 != 0
}
