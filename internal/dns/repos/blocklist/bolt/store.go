package bolt

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-dnstun/internal/dns/domain"
	"github.com/haukened/rr-dnstun/internal/dns/repos/blocklist"
)

var (
	bucketExact  = []byte("exact")
	bucketSuffix = []byte("suffix")
	bucketMeta   = []byte("meta")

	metaVersion = []byte("version")
	metaUpdated = []byte("updated")
)

// boltStore keeps egress rules in bbolt, host → source file, one bucket per kind.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) the database at path and ensures buckets exist.
func New(path string) (*boltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open blocklist db: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketExact, bucketSuffix, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// RebuildAll drops every rule and writes rules plus metadata in one transaction.
func (s *boltStore) RebuildAll(rules []domain.EgressRule, version uint64, updatedUnix int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketExact, bucketSuffix} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return err
				}
			}
		}
		exact, err := tx.CreateBucket(bucketExact)
		if err != nil {
			return err
		}
		suffix, err := tx.CreateBucket(bucketSuffix)
		if err != nil {
			return err
		}

		for _, r := range rules {
			b := exact
			if r.Kind == domain.RuleSuffix {
				b = suffix
			}
			if err := b.Put([]byte(r.Host), []byte(r.Source)); err != nil {
				return fmt.Errorf("put %s rule %q: %w", r.Kind, r.Host, err)
			}
		}

		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if err := meta.Put(metaVersion, u64(version)); err != nil {
			return err
		}
		return meta.Put(metaUpdated, u64(uint64(updatedUnix)))
	})
}

// GetFirstMatch looks for an exact rule, then walks host and its parents
// from most to least specific looking for a suffix rule.
func (s *boltStore) GetFirstMatch(host string) (domain.EgressRule, bool, error) {
	var (
		rule  domain.EgressRule
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		addedAt := time.Unix(readInt(tx.Bucket(bucketMeta), metaUpdated), 0)

		if b := tx.Bucket(bucketExact); b != nil {
			if v := b.Get([]byte(host)); v != nil {
				rule = domain.EgressRule{Host: host, Kind: domain.RuleExact, Source: string(v), AddedAt: addedAt}
				found = true
				return nil
			}
		}

		b := tx.Bucket(bucketSuffix)
		if b == nil {
			return nil
		}
		for a := host; a != ""; {
			if v := b.Get([]byte(a)); v != nil {
				rule = domain.EgressRule{Host: a, Kind: domain.RuleSuffix, Source: string(v), AddedAt: addedAt}
				found = true
				return nil
			}
			i := strings.IndexByte(a, '.')
			if i < 0 {
				break
			}
			a = a[i+1:]
		}
		return nil
	})
	return rule, found, err
}

func (s *boltStore) Stats() blocklist.StoreStats {
	var st blocklist.StoreStats
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketExact); b != nil {
			st.ExactKeys = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketSuffix); b != nil {
			st.SuffixKeys = uint64(b.Stats().KeyN)
		}
		meta := tx.Bucket(bucketMeta)
		st.Version = uint64(readInt(meta, metaVersion))
		st.UpdatedUnix = readInt(meta, metaUpdated)
		return nil
	})
	return st
}

func u64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func readInt(b *bbolt.Bucket, key []byte) int64 {
	if b == nil {
		return 0
	}
	if v := b.Get(key); len(v) == 8 {
		return int64(binary.BigEndian.Uint64(v))
	}
	return 0
}

var _ blocklist.Store = (*boltStore)(nil)
