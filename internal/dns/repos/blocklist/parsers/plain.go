package parsers

import (
	"io"
	"time"

	"github.com/haukened/rr-dnstun/internal/dns/common/log"
	"github.com/haukened/rr-dnstun/internal/dns/domain"
)

// ParsePlainList reads one host per line. Names prefixed with "*." or "."
// become suffix rules, everything else is exact. '#' starts a comment.
// Invalid names are skipped; the first occurrence of a duplicate wins.
func ParsePlainList(r io.Reader, source string, logger log.Logger, now time.Time) ([]domain.EgressRule, error) {
	set := newRuleSet()
	logger.Debug(map[string]any{"source": source}, "parse_plain_list_start")

	err := scanRuleLines(r, logger, func(lineNum int, line string) {
		kind := ruleKindFromRaw(line)
		host := normalizeHost(line)
		if !isValidHost(host) {
			logger.Debug(map[string]any{"line": lineNum, "raw": line}, "skip_invalid_host")
			return
		}
		rule, err := domain.NewEgressRule(host, kind, source, now)
		if err != nil {
			logger.Debug(map[string]any{"line": lineNum, "host": host, "error": err.Error()}, "skip_constructor_error")
			return
		}
		if !set.add(rule) {
			logger.Debug(map[string]any{"line": lineNum, "host": host, "kind": kind.String()}, "skip_duplicate")
		}
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(map[string]any{"source": source, "count": len(set.rules)}, "parse_plain_list_done")
	return set.rules, nil
}
