package domain

// AnswerTTL is the TTL in seconds carried by every relay answer record.
const AnswerTTL uint32 = 60

// DNSResponse is a relay reply: one echoed question and one opaque answer.
type DNSResponse struct {
	ID       uint16
	Question []byte
	Payload  []byte
}

// NewDNSResponse builds the reply for query carrying payload.
func NewDNSResponse(query DNSQuery, payload []byte) DNSResponse {
	return DNSResponse{
		ID:       query.ID,
		Question: query.Question,
		Payload:  payload,
	}
}
