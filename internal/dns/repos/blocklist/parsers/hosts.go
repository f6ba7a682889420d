package parsers

import (
	"io"
	"strings"
	"time"

	"github.com/haukened/rr-dnstun/internal/dns/common/log"
	"github.com/haukened/rr-dnstun/internal/dns/domain"
)

// ParseHostsFile reads /etc/hosts style lines ("IP name [name...]") and
// returns an exact rule per valid name. The address is ignored. Wildcards
// and names starting with '.' are not hosts syntax and are skipped.
func ParseHostsFile(r io.Reader, source string, logger log.Logger, now time.Time) ([]domain.EgressRule, error) {
	set := newRuleSet()
	logger.Debug(map[string]any{"source": source}, "parse_hosts_start")

	err := scanRuleLines(r, logger, func(lineNum int, line string) {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			logger.Debug(map[string]any{"line": lineNum}, "hosts_no_hostnames")
			return
		}
		for _, raw := range fields[1:] {
			if strings.HasPrefix(raw, ".") || strings.Contains(raw, "*") {
				logger.Debug(map[string]any{"line": lineNum, "raw": raw}, "hosts_skip_invalid_token")
				continue
			}
			host := normalizeHost(raw)
			if !isValidHost(host) {
				logger.Debug(map[string]any{"line": lineNum, "host": host}, "hosts_skip_invalid_host")
				continue
			}
			rule, err := domain.NewEgressRule(host, domain.RuleExact, source, now)
			if err != nil {
				logger.Debug(map[string]any{"line": lineNum, "host": host, "error": err.Error()}, "hosts_skip_constructor_error")
				continue
			}
			if !set.add(rule) {
				logger.Debug(map[string]any{"line": lineNum, "host": host}, "hosts_skip_duplicate")
			}
		}
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(map[string]any{"source": source, "count": len(set.rules)}, "parse_hosts_done")
	return set.rules, nil
}
