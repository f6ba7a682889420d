package domain

// Outcome classifies how the relay answered a query.
type Outcome string

const (
	OutcomePassThrough   Outcome = "passthrough"
	OutcomeUndecodable   Outcome = "undecodable"
	OutcomeBadRequest    Outcome = "malformed_request"
	OutcomeBlocked       Outcome = "blocked"
	OutcomeTunnel        Outcome = "tunnel"
	OutcomeUpstreamError Outcome = "upstream_error"
	OutcomeReplayed      Outcome = "replayed"
)

// IsTunnel reports whether the answer payload carries an HTTP response.
func (o Outcome) IsTunnel() bool {
	switch o {
	case OutcomeBlocked, OutcomeTunnel, OutcomeUpstreamError, OutcomeReplayed:
		return true
	default:
		return false
	}
}
