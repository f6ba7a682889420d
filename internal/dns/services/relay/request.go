package relay

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/haukened/rr-dnstun/internal/dns/domain"
)

var (
	// ErrMalformedRequestLine is returned when the first line is not "METHOD TARGET VERSION".
	ErrMalformedRequestLine = errors.New("malformed request line")
	// ErrNoHost is returned when no Host header is present.
	ErrNoHost = errors.New("no host")
	// ErrInvalidEncoding is returned when the request head is not valid UTF-8.
	ErrInvalidEncoding = errors.New("request head is not valid utf-8")
)

var headEnd = []byte("\r\n\r\n")

const (
	crlf       = "\r\n"
	headerSep  = ": "
	hostHeader = "Host"
)

// ParseRequest interprets raw as a literal HTTP/1.x request. Header lines
// without a ": " separator are skipped. A repeated header name keeps its
// first position and takes the last value. The body is whatever follows the
// first blank line.
func ParseRequest(raw []byte) (domain.EmbeddedHTTPRequest, error) {
	head, body, _ := bytes.Cut(raw, headEnd)
	if !utf8.Valid(head) {
		return domain.EmbeddedHTTPRequest{}, ErrInvalidEncoding
	}

	lines := strings.Split(string(head), crlf)
	fields := strings.Fields(lines[0])
	if len(fields) != 3 {
		return domain.EmbeddedHTTPRequest{}, ErrMalformedRequestLine
	}

	req := domain.EmbeddedHTTPRequest{
		Method:  fields[0],
		Path:    fields[1],
		Version: fields[2],
	}

	hasHost := false
	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, headerSep)
		if !ok {
			continue
		}
		req.Headers = req.Headers.Set(name, value)
		if strings.EqualFold(name, hostHeader) {
			req.Host = value
			hasHost = true
		}
	}
	if !hasHost {
		return domain.EmbeddedHTTPRequest{}, ErrNoHost
	}

	if len(body) > 0 {
		req.Body = body
	}
	return req, nil
}
