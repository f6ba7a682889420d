// Package transport owns the relay's listening socket. It receives datagrams, turns
// them into domain queries through the wire codec, hands each one to a RequestHandler
// on its own goroutine and writes exactly one reply back to the sender.
package transport

import (
	"context"
	"net"

	"github.com/haukened/rr-dnstun/internal/dns/domain"
)

// ServerTransport defines the interface for relay transport implementations.
type ServerTransport interface {
	// Start begins listening for queries and handling them via the provided handler.
	Start(ctx context.Context, handler RequestHandler) error

	// Stop stops receiving and closes the socket immediately.
	Stop() error

	// Shutdown stops receiving, waits for in-flight queries until ctx expires,
	// then closes the socket.
	Shutdown(ctx context.Context) error

	// Address returns the network address the transport is bound to.
	Address() string
}

// RequestHandler turns a decoded query into the reply to send. It must always return
// a response; failures are expected to be folded into the payload by the handler.
type RequestHandler interface {
	HandleQuery(ctx context.Context, query domain.DNSQuery, clientAddr net.Addr) domain.DNSResponse
}

// RequestHandlerFunc adapts a plain function to RequestHandler.
type RequestHandlerFunc func(ctx context.Context, query domain.DNSQuery, clientAddr net.Addr) domain.DNSResponse

func (f RequestHandlerFunc) HandleQuery(ctx context.Context, query domain.DNSQuery, clientAddr net.Addr) domain.DNSResponse {
	return f(ctx, query, clientAddr)
}
