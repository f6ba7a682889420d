package parsers

import (
	"bufio"
	"io"
	"strings"
	"unicode"

	"github.com/haukened/rr-dnstun/internal/dns/common/log"
	"github.com/haukened/rr-dnstun/internal/dns/common/utils"
	"github.com/haukened/rr-dnstun/internal/dns/domain"
)

// scanRuleLines feeds every non-empty, non-comment line of r to emit with
// inline comments and a leading BOM removed. Line numbers start at 1.
func scanRuleLines(r io.Reader, logger log.Logger, emit func(lineNum int, line string)) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimPrefix(scanner.Text(), "\uFEFF")
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			logger.Debug(map[string]any{"line": lineNum}, "skip_blank_or_comment")
			continue
		}
		emit(lineNum, line)
	}
	return scanner.Err()
}

// ruleKindFromRaw returns RuleSuffix for names written as "*.name" or ".name".
func ruleKindFromRaw(raw string) domain.RuleKind {
	if strings.HasPrefix(raw, "*.") || strings.HasPrefix(raw, ".") {
		return domain.RuleSuffix
	}
	return domain.RuleExact
}

// normalizeHost strips suffix markers and maps the name to the canonical
// host form the relay uses for lookups.
func normalizeHost(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "*.")
	raw = strings.TrimPrefix(raw, ".")
	if raw == "" {
		return ""
	}
	return utils.CanonicalHost(raw)
}

// isValidHost accepts names of at most 255 bytes with at least two labels
// of 1 to 63 bytes each, the first starting with a letter or digit.
func isValidHost(name string) bool {
	if name == "" || len(name) > 255 {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
	}
	first := []rune(labels[0])[0]
	return unicode.IsLetter(first) || unicode.IsDigit(first)
}

// ruleSet collects rules, dropping duplicates of the same host and kind.
type ruleSet struct {
	seen  map[string]struct{}
	rules []domain.EgressRule
}

func newRuleSet() *ruleSet {
	return &ruleSet{seen: make(map[string]struct{}), rules: make([]domain.EgressRule, 0, 64)}
}

// add reports whether the rule was new.
func (s *ruleSet) add(r domain.EgressRule) bool {
	key := r.Host + "|" + r.Kind.String()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.rules = append(s.rules, r)
	return true
}
