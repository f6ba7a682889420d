package relay

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/haukened/rr-dnstun/internal/dns/domain"
	"github.com/haukened/rr-dnstun/internal/dns/infra/metrics"
)

const (
	// DefaultPayloadLimit is the largest packed response carried in one answer.
	DefaultPayloadLimit = 400
	// TruncationMarker is appended to a packed response cut at the limit.
	TruncationMarker = "...[truncated]"
)

// hop-by-hop headers never copied into a packed response
var strippedHeaders = []string{"Transfer-Encoding", "Connection"}

// Pack serializes resp as raw HTTP/1.1 response bytes. When the result is
// longer than limit it is cut to exactly limit bytes and TruncationMarker is
// appended. A limit of zero or less disables truncation.
func Pack(resp domain.UpstreamResponse, limit int) []byte {
	var buf bytes.Buffer
	buf.WriteString("HTTP/1.1 ")
	buf.WriteString(strconv.Itoa(resp.StatusCode))
	buf.WriteByte(' ')
	buf.WriteString(resp.Reason)
	buf.WriteString("\r\n")
	for _, h := range resp.Headers {
		if isStripped(h.Name) {
			continue
		}
		buf.WriteString(h.Name)
		buf.WriteString(": ")
		buf.WriteString(h.Value)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(resp.Body)

	out := buf.Bytes()
	if limit > 0 && len(out) > limit {
		metrics.ObserveTruncated()
		truncated := make([]byte, 0, limit+len(TruncationMarker))
		truncated = append(truncated, out[:limit]...)
		return append(truncated, TruncationMarker...)
	}
	return out
}

func isStripped(name string) bool {
	for _, s := range strippedHeaders {
		if strings.EqualFold(name, s) {
			return true
		}
	}
	return false
}
