package bolt

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/haukened/rr-dnstun/internal/dns/domain"
)

func tempDB(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "bl.db")
}

func openStore(t testing.TB) *boltStore {
	t.Helper()
	st, err := New(tempDB(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestNew_InvalidPath(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing", "dir", "bl.db")); err == nil {
		t.Fatal("expected error for unwritable path")
	}
}

func TestBoltStore_GetFirstMatch_ExactAndSuffix(t *testing.T) {
	st := openStore(t)

	if _, ok, err := st.GetFirstMatch("a.example.com"); err != nil || ok {
		t.Fatalf("expected empty miss, got ok=%v err=%v", ok, err)
	}

	now := time.Unix(1723550000, 0)
	rules := []domain.EgressRule{
		{Host: "a.example.com", Kind: domain.RuleExact, Source: "exact.txt", AddedAt: now},
		{Host: "example.net", Kind: domain.RuleSuffix, Source: "suffix.txt", AddedAt: now},
		{Host: "deep.example.net", Kind: domain.RuleSuffix, Source: "deep.txt", AddedAt: now},
	}
	if err := st.RebuildAll(rules, 7, now.Unix()); err != nil {
		t.Fatalf("RebuildAll: %v", err)
	}

	r, ok, err := st.GetFirstMatch("a.example.com")
	if err != nil || !ok || r.Host != "a.example.com" || r.Kind != domain.RuleExact || r.Source != "exact.txt" {
		t.Fatalf("exact unexpected: r=%+v ok=%v err=%v", r, ok, err)
	}
	if !r.AddedAt.Equal(now) {
		t.Fatalf("AddedAt = %v, want %v", r.AddedAt, now)
	}

	if _, ok, _ := st.GetFirstMatch("b.a.example.com"); ok {
		t.Fatal("exact rule must not match subdomains")
	}

	r, ok, err = st.GetFirstMatch("example.net")
	if err != nil || !ok || r.Host != "example.net" || r.Kind != domain.RuleSuffix {
		t.Fatalf("suffix apex unexpected: r=%+v ok=%v err=%v", r, ok, err)
	}

	r, ok, _ = st.GetFirstMatch("x.deep.example.net")
	if !ok || r.Host != "deep.example.net" || r.Source != "deep.txt" {
		t.Fatalf("most specific suffix expected, got %+v", r)
	}

	if _, ok, err = st.GetFirstMatch("nope.tld"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if _, ok, _ = st.GetFirstMatch("badexample.net"); ok {
		t.Fatal("suffix must respect label boundaries")
	}
}

func TestBoltStore_RebuildAllReplaces(t *testing.T) {
	st := openStore(t)
	now := time.Unix(1723550000, 0)

	first := []domain.EgressRule{{Host: "old.test", Kind: domain.RuleExact, Source: "f", AddedAt: now}}
	if err := st.RebuildAll(first, 1, now.Unix()); err != nil {
		t.Fatalf("RebuildAll: %v", err)
	}
	second := []domain.EgressRule{{Host: "new.test", Kind: domain.RuleSuffix, Source: "f", AddedAt: now}}
	if err := st.RebuildAll(second, 2, now.Unix()+60); err != nil {
		t.Fatalf("RebuildAll: %v", err)
	}

	if _, ok, _ := st.GetFirstMatch("old.test"); ok {
		t.Fatal("old rule survived rebuild")
	}
	if _, ok, _ := st.GetFirstMatch("a.new.test"); !ok {
		t.Fatal("new rule missing after rebuild")
	}

	stats := st.Stats()
	if stats.Version != 2 || stats.UpdatedUnix != now.Unix()+60 || stats.ExactKeys != 0 || stats.SuffixKeys != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestBoltStore_StatsEmpty(t *testing.T) {
	st := openStore(t)
	stats := st.Stats()
	if stats.Version != 0 || stats.UpdatedUnix != 0 || stats.ExactKeys != 0 || stats.SuffixKeys != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestBoltStore_Reopen(t *testing.T) {
	path := tempDB(t)
	st, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Unix(1723550000, 0)
	rules := []domain.EgressRule{{Host: "kept.test", Kind: domain.RuleExact, Source: "f", AddedAt: now}}
	if err := st.RebuildAll(rules, 3, now.Unix()); err != nil {
		t.Fatalf("RebuildAll: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	if _, ok, _ := st.GetFirstMatch("kept.test"); !ok {
		t.Fatal("rule not persisted")
	}
}

func BenchmarkBoltStore_GetFirstMatch(b *testing.B) {
	st := openStore(b)
	now := time.Now()
	rules := make([]domain.EgressRule, 0, 1000)
	for i := 0; i < 1000; i++ {
		kind := domain.RuleExact
		if i%2 == 0 {
			kind = domain.RuleSuffix
		}
		rules = append(rules, domain.EgressRule{Host: fmt.Sprintf("h%d.example.test", i), Kind: kind, Source: "bench", AddedAt: now})
	}
	if err := st.RebuildAll(rules, 1, now.Unix()); err != nil {
		b.Fatalf("RebuildAll: %v", err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = st.GetFirstMatch(fmt.Sprintf("x.h%d.example.test", i%1000))
	}
}
