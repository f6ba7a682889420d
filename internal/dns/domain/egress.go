package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RuleKind defines how an egress rule matches a host.
type RuleKind uint8

const (
	// RuleExact matches the host only.
	RuleExact RuleKind = iota
	// RuleSuffix matches the host and every name below it.
	RuleSuffix
)

func (k RuleKind) String() string {
	switch k {
	case RuleExact:
		return "exact"
	case RuleSuffix:
		return "suffix"
	default:
		return fmt.Sprintf("RuleKind(%d)", k)
	}
}

var (
	ErrRuleHostEmpty   = errors.New("rule host must not be empty")
	ErrRuleSourceEmpty = errors.New("rule source must not be empty")
	ErrRuleTimeUnset   = errors.New("rule addedAt must be set")
)

// EgressRule denies outbound HTTP to a host, or to a host and its subdomains.
// Host is canonical: lower case, ASCII, no port, no trailing dot.
type EgressRule struct {
	Host    string
	Kind    RuleKind
	Source  string // file the rule was read from
	AddedAt time.Time
}

// NewEgressRule builds and validates a rule.
func NewEgressRule(host string, kind RuleKind, source string, addedAt time.Time) (EgressRule, error) {
	r := EgressRule{
		Host:    strings.TrimSpace(host),
		Kind:    kind,
		Source:  strings.TrimSpace(source),
		AddedAt: addedAt,
	}
	if err := r.Validate(); err != nil {
		return EgressRule{}, err
	}
	return r, nil
}

func (r EgressRule) Validate() error {
	switch {
	case r.Host == "":
		return ErrRuleHostEmpty
	case r.Source == "":
		return ErrRuleSourceEmpty
	case r.AddedAt.IsZero():
		return ErrRuleTimeUnset
	}
	if r.Kind != RuleExact && r.Kind != RuleSuffix {
		return fmt.Errorf("unsupported rule kind: %d", r.Kind)
	}
	return nil
}

// Matches reports whether host, already canonical, falls under the rule.
func (r EgressRule) Matches(host string) bool {
	if host == r.Host {
		return true
	}
	return r.Kind == RuleSuffix && strings.HasSuffix(host, "."+r.Host)
}

// BlockDecision is the egress verdict for one host.
type BlockDecision struct {
	Blocked bool
	Rule    EgressRule // zero unless Blocked
}

// Allow is the decision for hosts no rule matches.
func Allow() BlockDecision { return BlockDecision{} }

// Block returns a blocking decision attributed to rule.
func Block(rule EgressRule) BlockDecision {
	return BlockDecision{Blocked: true, Rule: rule}
}

func (d BlockDecision) IsBlocked() bool { return d.Blocked }
