// Package pebblestore is a durable encryptedir.Store on a local Pebble database.
//
// Records live under "key:<key_id>" and audit entries under "audit:<seq>" with the
// sequence zero-padded, so iteration order is Seq order. Values are JSON.
package pebblestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pebble "github.com/cockroachdb/pebble"

	"github.com/ai8future/encryptedir"
)

const (
	recordPrefix = "key:"
	auditPrefix  = "audit:"
)

func recordKey(keyID string) []byte {
	return []byte(recordPrefix + keyID)
}

func auditKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", auditPrefix, seq))
}

// prefixBounds returns the iterator bounds covering every key with prefix.
func prefixBounds(prefix string) *pebble.IterOptions {
	upper := []byte(prefix)
	upper[len(upper)-1]++
	return &pebble.IterOptions{LowerBound: []byte(prefix), UpperBound: upper}
}

// Store persists records and audit entries in Pebble. Every Commit is one synced batch.
type Store struct {
	db *pebble.DB
}

var _ encryptedir.Store = (*Store)(nil)

// Open opens or creates a database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebblestore: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) GetRecord(keyID string) (*encryptedir.StoredRecord, error) {
	v, closer, err := s.db.Get(recordKey(keyID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, &encryptedir.NotFoundError{KeyID: keyID}
		}
		return nil, err
	}
	defer closer.Close()

	var rec encryptedir.StoredRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("pebblestore: decode record %s: %w", keyID, err)
	}
	return &rec, nil
}

func (s *Store) ListRecords() ([]*encryptedir.StoredRecord, error) {
	var out []*encryptedir.StoredRecord
	err := s.iterate(recordPrefix, func(k string, v []byte) error {
		var rec encryptedir.StoredRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("pebblestore: decode record %s: %w", k, err)
		}
		out = append(out, &rec)
		return nil
	})
	return out, err
}

func (s *Store) Commit(records []*encryptedir.StoredRecord, entries []encryptedir.AuditEntry) error {
	b := s.db.NewBatch()
	defer b.Close()

	for _, rec := range records {
		v, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Set(recordKey(rec.KeyID), v, nil); err != nil {
			return err
		}
	}
	for _, e := range entries {
		v, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := b.Set(auditKey(e.Seq), v, nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

func (s *Store) ListAudit() ([]encryptedir.AuditEntry, error) {
	var out []encryptedir.AuditEntry
	err := s.iterate(auditPrefix, func(k string, v []byte) error {
		var e encryptedir.AuditEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return fmt.Errorf("pebblestore: decode audit entry %s: %w", k, err)
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// iterate calls fn for every key under prefix in key order. The value slice is only
// valid during the call.
func (s *Store) iterate(prefix string, fn func(key string, value []byte) error) error {
	it, err := s.db.NewIter(prefixBounds(prefix))
	if err != nil {
		return err
	}
	defer it.Close()
	for ok := it.First(); ok; ok = it.Next() {
		if err := fn(strings.TrimPrefix(string(it.Key()), prefix), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
