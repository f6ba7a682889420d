package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDNSQuery_Name(t *testing.T) {
	q := DNSQuery{Labels: []string{"AEBAGBAF", "amnupower", "com"}}
	assert.Equal(t, "AEBAGBAF.amnupower.com", q.Name())
	assert.Equal(t, "", DNSQuery{}.Name())
}

func TestDNSQuery_IsResponse(t *testing.T) {
	assert.False(t, DNSQuery{Flags: 0x0100}.IsResponse())
	assert.True(t, DNSQuery{Flags: 0x8180}.IsResponse())
}

func TestNewDNSResponse(t *testing.T) {
	q := DNSQuery{ID: 7, Question: []byte{1, 'a', 0, 0, 16, 0, 1}}
	resp := NewDNSResponse(q, []byte("OK"))
	assert.Equal(t, uint16(7), resp.ID)
	assert.Equal(t, q.Question, resp.Question)
	assert.Equal(t, []byte("OK"), resp.Payload)
}

func TestHeaders_GetSet(t *testing.T) {
	var h Headers
	h = h.Set("Accept", "*/*")
	h = h.Set("X-Id", "1")
	h = h.Set("Accept", "text/plain")

	assert.Len(t, h, 2)
	assert.Equal(t, "Accept", h[0].Name)
	assert.Equal(t, "text/plain", h[0].Value)

	v, ok := h.Get("x-id")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = h.Get("Missing")
	assert.False(t, ok)

	// Set matches names exactly, so a different case appends.
	h = h.Set("accept", "a")
	assert.Len(t, h, 3)
}

func TestEmbeddedHTTPRequest_URL(t *testing.T) {
	cases := []struct {
		host, path, want string
	}{
		{"example.com", "/", "http://example.com/"},
		{"127.0.0.1:8080", "/a?b=c", "http://127.0.0.1:8080/a?b=c"},
		{"ignored", "https://api.example.com/v1", "https://api.example.com/v1"},
		{"h", "/redirect?to=http://x", "http://h/redirect?to=http://x"},
		{"h", "://bad", "http://h://bad"},
	}
	for _, tc := range cases {
		r := EmbeddedHTTPRequest{Host: tc.host, Path: tc.path}
		assert.Equal(t, tc.want, r.URL(), tc.path)
	}
}

func TestOutcome_IsTunnel(t *testing.T) {
	tunnel := []Outcome{OutcomeBlocked, OutcomeTunnel, OutcomeUpstreamError, OutcomeReplayed}
	for _, o := range tunnel {
		assert.True(t, o.IsTunnel(), o)
	}
	plain := []Outcome{OutcomePassThrough, OutcomeUndecodable, OutcomeBadRequest}
	for _, o := range plain {
		assert.False(t, o.IsTunnel(), o)
	}
}

func TestUpstreamResponse(t *testing.T) {
	ok := NewSyntheticResponse(403, "nope")
	assert.Equal(t, "Forbidden", ok.Reason)
	assert.Empty(t, ok.Headers)
	assert.False(t, ok.Failed())

	failed := NewUpstreamErrorResponse(errors.New("dial tcp: refused"))
	assert.Equal(t, 500, failed.StatusCode)
	assert.Equal(t, "Internal Server Error", failed.Reason)
	assert.Equal(t, "dial tcp: refused", string(failed.Body))
	assert.True(t, failed.Failed())
}
