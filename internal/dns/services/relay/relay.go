package relay

import (
	"context"
	"errors"
	"net"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/haukened/rr-dnstun/internal/dns/common/log"
	"github.com/haukened/rr-dnstun/internal/dns/common/utils"
	"github.com/haukened/rr-dnstun/internal/dns/domain"
	"github.com/haukened/rr-dnstun/internal/dns/infra/metrics"
)

// PassThroughPayload answers every query that does not produce a tunnel response.
const PassThroughPayload = "OK"

// BlockedBody is the body of the 403 returned for hosts denied by the blocklist.
const BlockedBody = "blocked by egress policy"

var errExecutorRequired = errors.New("relay: executor is required")

// Options is the immutable configuration captured by NewRelay.
type Options struct {
	Carriers     []string
	PayloadLimit int
	Executor     Executor
	// Blocklist and Cache are optional.
	Blocklist Blocklist
	Cache     Cache
	Logger    log.Logger
}

// Relay turns tunnel queries into real HTTP calls and packs the result into
// the answer payload. It always produces a response.
type Relay struct {
	carriers  []string
	limit     int
	executor  Executor
	blocklist Blocklist
	cache     Cache
	group     singleflight.Group
	logger    log.Logger
}

// NewRelay validates opts and builds a Relay. Carriers default to
// DefaultCarriers and PayloadLimit to DefaultPayloadLimit.
func NewRelay(opts Options) (*Relay, error) {
	if opts.Executor == nil {
		return nil, errExecutorRequired
	}
	carriers := opts.Carriers
	if len(carriers) == 0 {
		carriers = DefaultCarriers
	}
	if opts.PayloadLimit <= 0 {
		opts.PayloadLimit = DefaultPayloadLimit
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Relay{
		carriers:  append([]string(nil), carriers...),
		limit:     opts.PayloadLimit,
		executor:  opts.Executor,
		blocklist: opts.Blocklist,
		cache:     opts.Cache,
		logger:    log.With(opts.Logger, map[string]any{"component": "relay"}),
	}, nil
}

// HandleQuery runs one query through the relay pipeline.
func (r *Relay) HandleQuery(ctx context.Context, query domain.DNSQuery, clientAddr net.Addr) domain.DNSResponse {
	payload, outcome := r.Process(ctx, query)
	metrics.ObserveOutcome(outcome)

	fields := map[string]any{
		"id":      query.ID,
		"name":    query.Name(),
		"outcome": string(outcome),
		"size":    len(payload),
	}
	if clientAddr != nil {
		fields["client"] = clientAddr.String()
	}
	if outcome.IsTunnel() {
		r.logger.Info(fields, "Answered tunnel query")
	} else {
		r.logger.Debug(fields, "Answered query")
	}
	return domain.NewDNSResponse(query, payload)
}

// Process computes the answer payload for query and reports how it was produced.
func (r *Relay) Process(ctx context.Context, query domain.DNSQuery) ([]byte, domain.Outcome) {
	tunnel, name := ExtractPayload(query, r.carriers)
	if tunnel == nil {
		if matchCarrier(name, r.carriers) != "" {
			r.logger.Debug(map[string]any{"name": name}, "Carrier query with undecodable token")
			return []byte(PassThroughPayload), domain.OutcomeUndecodable
		}
		return []byte(PassThroughPayload), domain.OutcomePassThrough
	}

	req, err := ParseRequest(tunnel.Data)
	if err != nil {
		r.logger.Debug(map[string]any{
			"name":  name,
			"error": err.Error(),
			"size":  len(tunnel.Data),
		}, "Tunnel payload is not an HTTP request")
		return []byte(PassThroughPayload), domain.OutcomeBadRequest
	}

	if r.cache == nil {
		return r.exchange(ctx, req)
	}

	key := string(tunnel.Data)
	if payload, ok := r.cache.Get(key); ok {
		return payload, domain.OutcomeReplayed
	}

	type result struct {
		payload []byte
		outcome domain.Outcome
	}
	leader := false
	v, _, _ := r.group.Do(key, func() (any, error) {
		leader = true
		payload, outcome := r.exchange(ctx, req)
		if outcome != domain.OutcomeUpstreamError {
			r.cache.Set(key, payload)
		}
		return result{payload: payload, outcome: outcome}, nil
	})
	res := v.(result)
	if !leader && res.outcome != domain.OutcomeUpstreamError {
		return res.payload, domain.OutcomeReplayed
	}
	return res.payload, res.outcome
}

// exchange applies the egress policy, executes req and packs the response.
func (r *Relay) exchange(ctx context.Context, req domain.EmbeddedHTTPRequest) ([]byte, domain.Outcome) {
	host := utils.CanonicalHost(req.Host)
	fields := map[string]any{
		"method": req.Method,
		"host":   host,
		"apex":   utils.GetApexDomain(host),
		"path":   req.Path,
	}

	if r.blocklist != nil {
		if d := r.blocklist.Decide(host); d.IsBlocked() {
			fields["rule"] = d.Rule.Host
			fields["source"] = d.Rule.Source
			r.logger.Warn(fields, "Egress host blocked")
			return Pack(domain.NewSyntheticResponse(http.StatusForbidden, BlockedBody), r.limit), domain.OutcomeBlocked
		}
	}

	resp := r.executor.Execute(ctx, req)
	fields["status"] = resp.StatusCode
	if resp.Failed() {
		fields["error"] = resp.Err.Error()
		r.logger.Warn(fields, "Upstream request failed")
		return Pack(resp, r.limit), domain.OutcomeUpstreamError
	}
	r.logger.Debug(fields, "Upstream request completed")
	return Pack(resp, r.limit), domain.OutcomeTunnel
}
