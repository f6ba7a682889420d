// Package tunnelclient sends embedded HTTP requests through a relay as DNS queries.
package tunnelclient

import (
	"context"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/haukened/rr-dnstun/internal/dns/common/log"
	"github.com/haukened/rr-dnstun/internal/dns/gateways/wire"
)

// MaxLabelLen is the longest DNS label, and so the longest data token.
const MaxLabelLen = 63

const (
	defaultTimeout = 35 * time.Second
	readBufferSize = 4096
)

var (
	ErrTokenTooLong = errors.New("encoded request does not fit in one label")
	ErrInvalidName  = errors.New("invalid query name")
	ErrIDMismatch   = errors.New("reply id does not match query")
)

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeName returns the fully qualified query name carrying request under carrier.
func EncodeName(request []byte, carrier string) (string, error) {
	token := tokenEncoding.EncodeToString(request)
	if len(token) > MaxLabelLen {
		return "", fmt.Errorf("%w: %d characters", ErrTokenTooLong, len(token))
	}
	name := dns.Fqdn(token + "." + strings.Trim(carrier, "."))
	if _, ok := dns.IsDomainName(name); !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

// BuildRequest renders a minimal GET request for host and path.
func BuildRequest(host, path string) []byte {
	if path == "" {
		path = "/"
	}
	return []byte("GET " + path + " HTTP/1.1\r\nHost: " + host + "\r\n\r\n")
}

// Client queries one relay over UDP.
type Client struct {
	server  string
	timeout time.Duration
	codec   wire.DNSCodec
	dialer  *net.Dialer
}

type Option func(*Client)

// WithTimeout bounds each exchange when the context carries no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		c.codec = wire.NewUDPCodec(logger)
	}
}

func NewClient(server string, opts ...Option) *Client {
	c := &Client{
		server:  server,
		timeout: defaultTimeout,
		codec:   wire.NewUDPCodec(log.NewNoopLogger()),
		dialer:  &net.Dialer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch encodes request under carrier and returns the relay's answer payload.
func (c *Client) Fetch(ctx context.Context, request []byte, carrier string) ([]byte, error) {
	name, err := EncodeName(request, carrier)
	if err != nil {
		return nil, err
	}
	return c.Exchange(ctx, name)
}

// Exchange sends a TXT query for name and returns the raw answer payload.
// The reply is decoded by the relay codec because the payload is not valid TXT rdata.
func (c *Client) Exchange(ctx context.Context, name string) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	m.Id = dns.Id()
	m.RecursionDesired = true
	out, err := m.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack query: %w", err)
	}

	conn, err := c.dialer.DialContext(ctx, "udp", c.server)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(out); err != nil {
		return nil, fmt.Errorf("send query: %w", err)
	}

	buf := make([]byte, readBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if n >= 2 && binary.BigEndian.Uint16(buf[:2]) != m.Id {
		return nil, ErrIDMismatch
	}

	resp, err := c.codec.DecodeResponse(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return resp.Payload, nil
}
