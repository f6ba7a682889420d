package blocklist

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haukened/rr-dnstun/internal/dns/common/log"
	"github.com/haukened/rr-dnstun/internal/dns/domain"
	"github.com/haukened/rr-dnstun/internal/dns/repos/blocklist/parsers"
)

// LoadDirectory parses every regular file in dir, in name order. Files whose
// name starts with "hosts" use hosts syntax; all others are plain lists.
// Hidden files are skipped. A rule repeated across files keeps its first source.
func LoadDirectory(dir string, logger log.Logger, now time.Time) ([]domain.EgressRule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read blocklist directory: %w", err)
	}

	seen := make(map[string]struct{})
	var rules []domain.EgressRule
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		fileRules, err := loadFile(filepath.Join(dir, name), logger, now)
		if err != nil {
			return nil, err
		}
		for _, r := range fileRules {
			key := r.Host + "|" + r.Kind.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			rules = append(rules, r)
		}
		logger.Info(map[string]any{"file": name, "rules": len(fileRules)}, "Loaded blocklist file")
	}
	return rules, nil
}

func loadFile(path string, logger log.Logger, now time.Time) ([]domain.EgressRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blocklist file: %w", err)
	}
	defer f.Close()

	source := filepath.Base(path)
	var rules []domain.EgressRule
	if strings.HasPrefix(strings.ToLower(source), "hosts") {
		rules, err = parsers.ParseHostsFile(f, source, logger, now)
	} else {
		rules, err = parsers.ParsePlainList(f, source, logger, now)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}
	return rules, nil
}
