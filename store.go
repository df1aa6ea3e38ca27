package encryptedir

import (
	"sort"
	"sync"
)

// Store persists wrapped key records and the audit log for a Manager.
// Implementations must be safe for concurrent use and must copy data in and out.
type Store interface {
	// GetRecord returns the record for keyID, or an error matching ErrKeyNotFound.
	GetRecord(keyID string) (*StoredRecord, error)

	// ListRecords returns every record in KeyID order.
	ListRecords() ([]*StoredRecord, error)

	// Commit upserts records and appends entries atomically: either all of
	// them become visible or none do.
	Commit(records []*StoredRecord, entries []AuditEntry) error

	// ListAudit returns the full audit log in ascending Seq order.
	ListAudit() ([]AuditEntry, error)

	Close() error
}

// MemoryStore is the default Store. State is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*StoredRecord
	audit   []AuditEntry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*StoredRecord)}
}

func (s *MemoryStore) GetRecord(keyID string) (*StoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[keyID]
	if !ok {
		return nil, &NotFoundError{KeyID: keyID}
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) ListRecords() ([]*StoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*StoredRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KeyID < out[j].KeyID })
	return out, nil
}

func (s *MemoryStore) Commit(records []*StoredRecord, entries []AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.records[rec.KeyID] = rec.Clone()
	}
	s.audit = append(s.audit, entries...)
	return nil
}

func (s *MemoryStore) ListAudit() ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out, nil
}

// Close wipes the wrapped key bytes held in memory.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.records {
		wipe(rec.WrappedKey)
		delete(s.records, id)
	}
	s.audit = nil
	return nil
}
