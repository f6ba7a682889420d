package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/haukened/rr-dnstun/internal/dns/common/log"
	"github.com/haukened/rr-dnstun/internal/dns/gateways/wire"
	"github.com/haukened/rr-dnstun/internal/dns/infra/metrics"
)

const (
	// maxDatagramSize is the classic non-EDNS0 DNS message limit.
	maxDatagramSize = 512

	// DefaultMaxInFlight bounds concurrently handled queries when no option overrides it.
	DefaultMaxInFlight = 512
)

// UDPTransport is the relay's query dispatcher. Every datagram is copied out of the
// receive buffer and handled on its own goroutine; a weighted semaphore caps how many
// of those goroutines exist at once. When the cap is reached the receive loop waits,
// leaving further datagrams in the socket buffer.
type UDPTransport struct {
	addr        string
	conn        *net.UDPConn
	codec       wire.DNSCodec
	logger      log.Logger
	maxInFlight int64
	sem         *semaphore.Weighted
	inflight    sync.WaitGroup

	mu         sync.RWMutex
	running    bool
	stopCh     chan struct{}
	loopDone   chan struct{}
	cancelLoop context.CancelFunc
}

// Option configures a UDPTransport.
type Option func(*UDPTransport)

// WithMaxInFlight caps the number of queries handled concurrently. Values below 1 are ignored.
func WithMaxInFlight(n int64) Option {
	return func(t *UDPTransport) {
		if n > 0 {
			t.maxInFlight = n
		}
	}
}

// NewUDPTransport creates a new UDP transport instance.
func NewUDPTransport(addr string, codec wire.DNSCodec, logger log.Logger, opts ...Option) *UDPTransport {
	t := &UDPTransport{
		addr:        addr,
		codec:       codec,
		logger:      logger,
		maxInFlight: DefaultMaxInFlight,
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.sem = semaphore.NewWeighted(t.maxInFlight)
	return t
}

// Start binds the UDP socket and starts the receive loop.
func (t *UDPTransport) Start(ctx context.Context, handler RequestHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("UDP transport already running")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", t.addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP socket on %s: %w", t.addr, err)
	}

	t.conn = conn
	t.running = true
	t.stopCh = make(chan struct{})
	t.loopDone = make(chan struct{})

	// halt cancels loopCtx so a receive loop waiting for a free slot exits too.
	loopCtx, cancel := context.WithCancel(ctx)
	t.cancelLoop = cancel

	t.logger.Info(map[string]any{
		"transport":    "udp",
		"address":      conn.LocalAddr().String(),
		"max_inflight": t.maxInFlight,
	}, "DNS transport started")

	go t.unblockOnCancel(loopCtx, conn, t.stopCh)
	go t.listenLoop(loopCtx, conn, handler)

	return nil
}

// Stop stops receiving and closes the socket without waiting for in-flight queries.
func (t *UDPTransport) Stop() error {
	if !t.halt() {
		return nil
	}
	<-t.loopDone

	closeErr := t.conn.Close()
	if closeErr != nil {
		t.logger.Warn(map[string]any{
			"error": closeErr.Error(),
		}, "Error closing UDP connection")
	}

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   t.addr,
	}, "DNS transport stopped")

	return closeErr
}

// Shutdown stops receiving, then waits for in-flight queries to send their replies
// before closing the socket. If ctx expires first the socket is closed anyway and
// late replies are lost.
func (t *UDPTransport) Shutdown(ctx context.Context) error {
	if !t.halt() {
		return nil
	}

	drained := make(chan struct{})
	go func() {
		<-t.loopDone
		t.inflight.Wait()
		close(drained)
	}()

	var drainErr error
	select {
	case <-drained:
	case <-ctx.Done():
		drainErr = fmt.Errorf("in-flight queries not drained: %w", ctx.Err())
		t.logger.Warn(map[string]any{"error": drainErr.Error()}, "Closing UDP socket with queries in flight")
	}

	closeErr := t.conn.Close()

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   t.addr,
	}, "DNS transport stopped")

	return errors.Join(drainErr, closeErr)
}

// halt flips the transport out of the running state and unblocks the receive loop.
// It reports false when the transport was not running.
func (t *UDPTransport) halt() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return false
	}
	t.running = false
	close(t.stopCh)
	t.cancelLoop()
	_ = t.conn.SetReadDeadline(time.Now())
	return true
}

// Address returns the bound address once started, otherwise the configured one.
func (t *UDPTransport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.running && t.conn != nil {
		return t.conn.LocalAddr().String()
	}
	return t.addr
}

// unblockOnCancel interrupts a pending read when ctx is cancelled so the loop can exit.
func (t *UDPTransport) unblockOnCancel(ctx context.Context, conn *net.UDPConn, stop <-chan struct{}) {
	select {
	case <-ctx.Done():
		_ = conn.SetReadDeadline(time.Now())
	case <-stop:
	}
}

// listenLoop receives datagrams and dispatches each one to its own goroutine.
func (t *UDPTransport) listenLoop(ctx context.Context, conn *net.UDPConn, handler RequestHandler) {
	defer close(t.loopDone)

	// In-flight queries always run to completion; shutdown only stops new ones.
	workCtx := context.WithoutCancel(ctx)
	buffer := make([]byte, maxDatagramSize)

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug(nil, "UDP transport stopping due to context cancellation")
			return
		case <-t.stopCh:
			t.logger.Debug(nil, "UDP transport stopping due to stop signal")
			return
		default:
		}

		n, clientAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if t.stopping() || ctx.Err() != nil {
				continue
			}
			t.logger.Warn(map[string]any{
				"error": err.Error(),
			}, "Failed to read UDP packet")
			continue
		}

		packet := make([]byte, n)
		copy(packet, buffer[:n])

		if err := t.sem.Acquire(ctx, 1); err != nil {
			return
		}
		t.inflight.Add(1)
		go func() {
			done := metrics.TrackInFlight()
			defer func() {
				done()
				t.sem.Release(1)
				t.inflight.Done()
			}()
			t.handlePacket(workCtx, conn, packet, clientAddr, handler)
		}()
	}
}

func (t *UDPTransport) stopping() bool {
	select {
	case <-t.stopCh:
		return true
	default:
		return false
	}
}

// handlePacket runs one query through decode, handler and encode and sends the reply.
// A panic anywhere in the pipeline is logged and swallowed.
func (t *UDPTransport) handlePacket(ctx context.Context, conn *net.UDPConn, data []byte, clientAddr *net.UDPAddr, handler RequestHandler) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ObservePanic()
			t.logger.Error(map[string]any{
				"client": clientAddr.String(),
				"panic":  fmt.Sprint(r),
				"stack":  string(debug.Stack()),
			}, "Recovered from panic while handling DNS query")
		}
	}()

	t.logger.Debug(map[string]any{
		"client": clientAddr.String(),
		"size":   len(data),
		"raw":    fmt.Sprintf("%x", data),
	}, "Received raw DNS query data")

	query, err := t.codec.DecodeQuery(data)
	if err != nil {
		metrics.ObserveDropped()
		t.logger.Warn(map[string]any{
			"client": clientAddr.String(),
			"error":  err.Error(),
			"size":   len(data),
		}, "Failed to decode DNS query")
		return
	}

	response := handler.HandleQuery(ctx, query, clientAddr)

	responseData, err := t.codec.EncodeResponse(response)
	if err != nil {
		t.logger.Error(map[string]any{
			"client":   clientAddr.String(),
			"query_id": query.ID,
			"error":    err.Error(),
		}, "Failed to encode DNS response")
		return
	}

	if _, err := conn.WriteToUDP(responseData, clientAddr); err != nil {
		t.logger.Error(map[string]any{
			"client":   clientAddr.String(),
			"query_id": response.ID,
			"error":    err.Error(),
		}, "Failed to send DNS response")
		return
	}

	t.logger.Debug(map[string]any{
		"client":   clientAddr.String(),
		"query_id": response.ID,
		"payload":  len(response.Payload),
		"size":     len(responseData),
	}, "Sent DNS response")
}

var _ ServerTransport = (*UDPTransport)(nil)
