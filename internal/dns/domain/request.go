package domain

import (
	"strings"
)

// Header is a single HTTP header line, name case preserved.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header list.
type Headers []Header

// Get returns the value of the first header matching name case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value, true
		}
	}
	return "", false
}

// Set replaces the value of an existing header with the exact same name,
// keeping its position, or appends a new one.
func (h Headers) Set(name, value string) Headers {
	for i := range h {
		if h[i].Name == name {
			h[i].Value = value
			return h
		}
	}
	return append(h, Header{Name: name, Value: value})
}

// EmbeddedHTTPRequest is the literal HTTP/1.x request carried inside a tunnel payload.
type EmbeddedHTTPRequest struct {
	Method  string
	Path    string
	Version string
	Headers Headers
	Host    string
	Body    []byte
}

// URL returns the request target. Targets that already carry a scheme are
// used as is, anything else is resolved against http://Host.
func (r EmbeddedHTTPRequest) URL() string {
	if hasScheme(r.Path) {
		return r.Path
	}
	return "http://" + r.Host + r.Path
}

func hasScheme(target string) bool {
	i := strings.Index(target, "://")
	if i <= 0 {
		return false
	}
	for n, c := range target[:i] {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case n > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}
