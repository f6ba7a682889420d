package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/haukened/rr-dnstun/internal/dns/common/log"
	"github.com/haukened/rr-dnstun/internal/dns/domain"
	"github.com/haukened/rr-dnstun/internal/dns/infra/metrics"
	"github.com/haukened/rr-dnstun/internal/dns/services/relay"
)

// Defaults applied by NewExecutor when an option is left at its zero value.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 64 << 10
)

// Error message constants for consistent error handling
const (
	errBuildRequest = "build request: %w"
	errRateLimited  = "rate limit wait: %w"
	errRoundTrip    = "request failed: %w"
	errReadBody     = "read body: %w"
)

// Executor performs the real outbound HTTP call for an embedded request.
// It never returns an error; every failure becomes a synthesized 500.
type Executor struct {
	client  *http.Client
	timeout time.Duration
	maxBody int64
	limiter *rate.Limiter
	logger  log.Logger
}

// Options defines configuration parameters for the upstream executor.
type Options struct {
	// required parameters
	Timeout      time.Duration
	Insecure     bool
	MaxBodyBytes int64
	// QPS of zero or less disables the token bucket.
	QPS   float64
	Burst int
	// options to inject for testing purposes
	Client *http.Client
	Logger log.Logger
}

// NewExecutor creates an executor with the specified options.
// When no client is injected one is built that skips certificate
// verification if Insecure is set.
func NewExecutor(opts Options) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Client == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.Insecure} //nolint:gosec // relay targets arbitrary hosts
		opts.Client = &http.Client{Transport: tr, Timeout: opts.Timeout}
	}

	var limiter *rate.Limiter
	if opts.QPS > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.QPS), burst)
	}

	return &Executor{
		client:  opts.Client,
		timeout: opts.Timeout,
		maxBody: opts.MaxBodyBytes,
		limiter: limiter,
		logger:  opts.Logger,
	}
}

// ensureContextDeadline ensures the context has a deadline, adding the executor's default timeout if needed.
func (e *Executor) ensureContextDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok {
		return context.WithTimeout(ctx, e.timeout)
	}
	return ctx, nil
}

// Execute issues req against its target and captures the real response.
func (e *Executor) Execute(ctx context.Context, req domain.EmbeddedHTTPRequest) domain.UpstreamResponse {
	ctx, cancel := e.ensureContextDeadline(ctx)
	if cancel != nil {
		defer cancel()
	}

	start := time.Now()
	resp, err := e.do(ctx, req)
	if err != nil {
		e.logger.Debug(map[string]any{
			"method": req.Method,
			"url":    req.URL(),
			"error":  err.Error(),
		}, "Upstream request failed")
		resp = domain.NewUpstreamErrorResponse(err)
	}
	metrics.ObserveUpstream(resp.StatusCode, time.Since(start))

	e.logger.Debug(map[string]any{
		"method": req.Method,
		"url":    req.URL(),
		"status": resp.StatusCode,
		"took":   time.Since(start).String(),
	}, "Upstream request completed")
	return resp
}

func (e *Executor) do(ctx context.Context, req domain.EmbeddedHTTPRequest) (domain.UpstreamResponse, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return domain.UpstreamResponse{}, fmt.Errorf(errRateLimited, err)
		}
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL(), body)
	if err != nil {
		return domain.UpstreamResponse{}, fmt.Errorf(errBuildRequest, err)
	}
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "Host") {
			httpReq.Host = h.Value
			continue
		}
		httpReq.Header.Add(h.Name, h.Value)
	}

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		return domain.UpstreamResponse{}, fmt.Errorf(errRoundTrip, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, e.maxBody))
	if err != nil {
		return domain.UpstreamResponse{}, fmt.Errorf(errReadBody, err)
	}

	return domain.UpstreamResponse{
		StatusCode: httpResp.StatusCode,
		Reason:     reasonPhrase(httpResp),
		Headers:    sortedHeaders(httpResp.Header),
		Body:       data,
	}, nil
}

// reasonPhrase extracts the reason from a status line such as "404 Not Found".
func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return reason
}

func sortedHeaders(h http.Header) domain.Headers {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(domain.Headers, 0, len(names))
	for _, name := range names {
		for _, v := range h[name] {
			out = append(out, domain.Header{Name: name, Value: v})
		}
	}
	return out
}

var _ relay.Executor = (*Executor)(nil)
