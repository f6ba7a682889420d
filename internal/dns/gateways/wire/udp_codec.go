// Package wire provides encoding and decoding of relay DNS messages for UDP transport.
// It handles the subset of the RFC 1035 wire format the relay speaks: one question in,
// one opaque answer record out.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/haukened/rr-dnstun/internal/dns/common/log"
	"github.com/haukened/rr-dnstun/internal/dns/domain"
)

const (
	headerLen = 12

	// responseFlags: QR=1, RD=1, RA=1, RCODE=NOERROR.
	responseFlags uint16 = 0x8180

	// answerType is TXT, used here as a carrier for an arbitrary byte payload.
	answerType  = domain.RRTypeTXT
	answerClass = domain.RRClassIN

	// answerNamePointer points at the question name, which always starts right after the header.
	answerNamePointer uint16 = 0xC000 | headerLen

	maxPointerHops = 16
)

var (
	ErrQueryTooShort    = errors.New("query too short")
	ErrResponseTooShort = errors.New("response too short")
	ErrNoAnswer         = errors.New("response carries no answer record")
)

// udpCodec implements the DNSCodec interface for relay DNS messages over UDP.
type udpCodec struct {
	logger log.Logger
}

// NewUDPCodec creates and returns a new instance of udpCodec using the provided logger.
func NewUDPCodec(logger log.Logger) *udpCodec {
	return &udpCodec{
		logger: logger,
	}
}

// DecodeQuery parses the header and question name of an inbound datagram.
// Buffers shorter than the 12 byte header fail with ErrQueryTooShort. A label whose
// length byte runs past the end of the buffer ends the scan; the labels read so far
// are kept and no error is returned.
func (c *udpCodec) DecodeQuery(data []byte) (domain.DNSQuery, error) {
	if len(data) < headerLen {
		return domain.DNSQuery{}, ErrQueryTooShort
	}

	labels, nameEnd, complete := scanLabels(data, headerLen)

	// QTYPE and QCLASS follow the terminator. A truncated name echoes whatever is left.
	questionEnd := len(data)
	if complete {
		questionEnd = min(nameEnd+4, len(data))
	}
	question := make([]byte, questionEnd-headerLen)
	copy(question, data[headerLen:questionEnd])

	q := domain.DNSQuery{
		ID:       binary.BigEndian.Uint16(data[0:2]),
		Flags:    binary.BigEndian.Uint16(data[2:4]),
		Labels:   labels,
		Question: question,
		Raw:      data,
	}

	if !complete {
		c.logger.Debug(map[string]any{
			"id":     q.ID,
			"labels": len(labels),
			"size":   len(data),
		}, "Question name ran past end of datagram, using partial name")
	}

	return q, nil
}

// scanLabels reads length-prefixed labels starting at offset. It returns the labels,
// the offset just past the zero terminator, and whether a terminator was found.
func scanLabels(data []byte, offset int) ([]string, int, bool) {
	var labels []string
	for offset < len(data) {
		length := int(data[offset])
		if length == 0 {
			return labels, offset + 1, true
		}
		start := offset + 1
		if start+length > len(data) {
			break
		}
		labels = append(labels, string(data[start:start+length]))
		offset = start + length
	}
	return labels, len(data), false
}

// EncodeResponse serializes a relay reply: header, echoed question and one answer record
// whose name points back at the question.
func (c *udpCodec) EncodeResponse(resp domain.DNSResponse) ([]byte, error) {
	payloadLen := len(resp.Payload)
	if payloadLen > 0xFFFF {
		return nil, fmt.Errorf("answer payload too large: %d bytes (max 65535)", payloadLen)
	}

	var buf bytes.Buffer
	buf.Grow(headerLen + len(resp.Question) + 12 + payloadLen)

	_ = binary.Write(&buf, binary.BigEndian, resp.ID)
	_ = binary.Write(&buf, binary.BigEndian, responseFlags)
	_ = binary.Write(&buf, binary.BigEndian, uint16(1)) // QDCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(1)) // ANCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0)) // NSCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0)) // ARCOUNT

	buf.Write(resp.Question)

	_ = binary.Write(&buf, binary.BigEndian, answerNamePointer)
	_ = binary.Write(&buf, binary.BigEndian, uint16(answerType))
	_ = binary.Write(&buf, binary.BigEndian, uint16(answerClass))
	_ = binary.Write(&buf, binary.BigEndian, domain.AnswerTTL)
	_ = binary.Write(&buf, binary.BigEndian, uint16(payloadLen))
	buf.Write(resp.Payload)

	c.logger.Debug(map[string]any{
		"id":       resp.ID,
		"question": len(resp.Question),
		"payload":  payloadLen,
		"size":     buf.Len(),
	}, "Encoded relay response")

	return buf.Bytes(), nil
}

// DecodeResponse parses a relay reply: it skips the echoed questions and returns the
// rdata of the first answer record as the payload.
func (c *udpCodec) DecodeResponse(data []byte) (domain.DNSResponse, error) {
	if len(data) < headerLen {
		return domain.DNSResponse{}, ErrResponseTooShort
	}
	id := binary.BigEndian.Uint16(data[0:2])
	qdCount := binary.BigEndian.Uint16(data[4:6])
	anCount := binary.BigEndian.Uint16(data[6:8])

	offset := headerLen
	for i := 0; i < int(qdCount); i++ {
		_, next, err := decodeName(data, offset)
		if err != nil {
			return domain.DNSResponse{}, fmt.Errorf("failed to decode question %d: %w", i, err)
		}
		offset = next + 4
		if offset > len(data) {
			return domain.DNSResponse{}, errors.New("truncated question section")
		}
	}
	question := data[headerLen:offset]

	if anCount == 0 {
		return domain.DNSResponse{}, ErrNoAnswer
	}

	_, offset, err := decodeName(data, offset)
	if err != nil {
		return domain.DNSResponse{}, fmt.Errorf("failed to decode answer name: %w", err)
	}
	if offset+10 > len(data) {
		return domain.DNSResponse{}, errors.New("truncated answer record")
	}
	rdLen := int(binary.BigEndian.Uint16(data[offset+8 : offset+10]))
	offset += 10
	if offset+rdLen > len(data) {
		return domain.DNSResponse{}, errors.New("truncated rdata")
	}

	payload := make([]byte, rdLen)
	copy(payload, data[offset:offset+rdLen])

	return domain.DNSResponse{
		ID:       id,
		Question: append([]byte(nil), question...),
		Payload:  payload,
	}, nil
}

// decodeName decodes a domain name at offset, following compression pointers,
// and returns the offset just past the name in the original position.
func decodeName(data []byte, offset int) (string, int, error) {
	var labels []string
	end := -1
	for hops := 0; ; {
		if offset >= len(data) {
			return "", 0, errors.New("offset out of bounds")
		}
		length := int(data[offset])
		if length == 0 {
			offset++
			break
		}
		if length&0xC0 == 0xC0 {
			if offset+1 >= len(data) {
				return "", 0, errors.New("compression pointer out of bounds")
			}
			hops++
			if hops > maxPointerHops {
				return "", 0, errors.New("too many compression pointers")
			}
			if end < 0 {
				end = offset + 2
			}
			offset = int(binary.BigEndian.Uint16(data[offset:offset+2]) & 0x3FFF)
			continue
		}
		offset++
		if offset+length > len(data) {
			return "", 0, errors.New("label length out of bounds")
		}
		labels = append(labels, string(data[offset:offset+length]))
		offset += length
	}
	if end < 0 {
		end = offset
	}
	return strings.Join(labels, "."), end, nil
}

var _ DNSCodec = &udpCodec{}
