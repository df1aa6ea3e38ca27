// Package storetest holds the behavior every encryptedir.Store must share.
// Backends call Run from their own tests.
package storetest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ai8future/encryptedir"
)

// Opener returns an empty store. Run closes it.
type Opener func(t *testing.T) encryptedir.Store

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Record returns a populated record for keyID.
func Record(keyID string) *encryptedir.StoredRecord {
	return &encryptedir.StoredRecord{
		KeyRecord: encryptedir.KeyRecord{
			KeyID:          keyID,
			KeyType:        encryptedir.KeyTypeBlindIndex,
			KeySize:        32,
			Description:    "test key " + keyID,
			CreatedAt:      baseTime,
			LastRotated:    baseTime,
			RotationPeriod: 90 * 24 * time.Hour,
			Active:         true,
			AccessCount:    3,
		},
		WrappedKey: []byte("wrapped-" + keyID),
	}
}

// Entry returns an audit entry with the given sequence number.
func Entry(seq uint64, keyID, op string) encryptedir.AuditEntry {
	return encryptedir.AuditEntry{
		ID:        uuid.New(),
		Seq:       seq,
		Timestamp: baseTime.Add(time.Duration(seq) * time.Second),
		KeyID:     keyID,
		Operation: op,
		Success:   true,
		Details:   "entry",
	}
}

// RequireRecordEqual compares records, treating times by instant.
func RequireRecordEqual(t *testing.T, want, got *encryptedir.StoredRecord) {
	t.Helper()
	require.Equal(t, want.KeyID, got.KeyID)
	require.Equal(t, want.KeyType, got.KeyType)
	require.Equal(t, want.KeySize, got.KeySize)
	require.Equal(t, want.Description, got.Description)
	require.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", want.CreatedAt, got.CreatedAt)
	require.True(t, want.LastRotated.Equal(got.LastRotated), "last_rotated %v != %v", want.LastRotated, got.LastRotated)
	if want.ExpiresAt == nil {
		require.Nil(t, got.ExpiresAt)
	} else {
		require.NotNil(t, got.ExpiresAt)
		require.True(t, want.ExpiresAt.Equal(*got.ExpiresAt))
	}
	require.Equal(t, want.RotationPeriod, got.RotationPeriod)
	require.Equal(t, want.Active, got.Active)
	require.Equal(t, want.AccessCount, got.AccessCount)
	require.Equal(t, want.WrappedKey, got.WrappedKey)
}

// Run exercises the Store contract against stores returned by open.
func Run(t *testing.T, open Opener) {
	t.Run("GetRecordMissing", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		_, err := s.GetRecord("missing")
		require.ErrorIs(t, err, encryptedir.ErrKeyNotFound)
		require.True(t, encryptedir.IsNotFound(err))
	})

	t.Run("CommitAndRead", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		rec := Record("blind_index_a")
		expires := baseTime.Add(48 * time.Hour)
		rec.ExpiresAt = &expires
		require.NoError(t, s.Commit([]*encryptedir.StoredRecord{rec}, []encryptedir.AuditEntry{Entry(1, rec.KeyID, encryptedir.OpCreate)}))

		got, err := s.GetRecord(rec.KeyID)
		require.NoError(t, err)
		RequireRecordEqual(t, rec, got)
	})

	t.Run("CommitUpserts", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		rec := Record("ope_a")
		require.NoError(t, s.Commit([]*encryptedir.StoredRecord{rec}, nil))

		rec.Active = false
		rec.AccessCount = 10
		rec.Description = "retired"
		require.NoError(t, s.Commit([]*encryptedir.StoredRecord{rec}, nil))

		got, err := s.GetRecord(rec.KeyID)
		require.NoError(t, err)
		RequireRecordEqual(t, rec, got)

		all, err := s.ListRecords()
		require.NoError(t, err)
		require.Len(t, all, 1)
	})

	t.Run("ListRecordsSorted", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		all, err := s.ListRecords()
		require.NoError(t, err)
		require.Empty(t, all)

		for _, id := range []string{"c", "a", "b"} {
			require.NoError(t, s.Commit([]*encryptedir.StoredRecord{Record(id)}, nil))
		}
		all, err = s.ListRecords()
		require.NoError(t, err)
		ids := make([]string, len(all))
		for i, rec := range all {
			ids[i] = rec.KeyID
		}
		require.Equal(t, []string{"a", "b", "c"}, ids)
	})

	t.Run("AuditInSeqOrder", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		entries, err := s.ListAudit()
		require.NoError(t, err)
		require.Empty(t, entries)

		// Seq 10 sorts after 9 regardless of how the backend encodes it.
		first := []encryptedir.AuditEntry{}
		for seq := uint64(1); seq <= 9; seq++ {
			first = append(first, Entry(seq, "k", encryptedir.OpGet))
		}
		require.NoError(t, s.Commit(nil, first))
		require.NoError(t, s.Commit(nil, []encryptedir.AuditEntry{Entry(10, "k", encryptedir.OpDelete), Entry(11, "*", encryptedir.OpExport)}))

		entries, err = s.ListAudit()
		require.NoError(t, err)
		require.Len(t, entries, 11)
		for i, e := range entries {
			require.Equal(t, uint64(i+1), e.Seq)
		}
		want := first[0]
		got := entries[0]
		require.Equal(t, want.ID, got.ID)
		require.Equal(t, want.KeyID, got.KeyID)
		require.Equal(t, want.Operation, got.Operation)
		require.Equal(t, want.Success, got.Success)
		require.Equal(t, want.Details, got.Details)
		require.True(t, want.Timestamp.Equal(got.Timestamp))
		require.Equal(t, encryptedir.OpExport, entries[10].Operation)
	})

	t.Run("CommitIsAtomic", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		a, b := Record("a"), Record("b")
		require.NoError(t, s.Commit([]*encryptedir.StoredRecord{a, b}, []encryptedir.AuditEntry{
			Entry(1, "a", encryptedir.OpCreate),
			Entry(2, "b", encryptedir.OpCreate),
		}))

		all, err := s.ListRecords()
		require.NoError(t, err)
		require.Len(t, all, 2)
		entries, err := s.ListAudit()
		require.NoError(t, err)
		require.Len(t, entries, 2)
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		rec := Record("k")
		require.NoError(t, s.Commit([]*encryptedir.StoredRecord{rec}, nil))
		rec.WrappedKey[0] ^= 0xFF

		got, err := s.GetRecord("k")
		require.NoError(t, err)
		require.Equal(t, []byte("wrapped-k"), got.WrappedKey)

		got.WrappedKey[0] ^= 0xFF
		got.Active = false
		again, err := s.GetRecord("k")
		require.NoError(t, err)
		require.Equal(t, []byte("wrapped-k"), again.WrappedKey)
		require.True(t, again.Active)
	})

	t.Run("Manager", func(t *testing.T) {
		s := open(t)
		m, err := encryptedir.NewManager(
			encryptedir.WithMasterKey(make([]byte, 32)),
			encryptedir.WithStore(s),
		)
		require.NoError(t, err)
		defer m.Close()

		id, err := m.CreateKey(encryptedir.KeyTypeSearchable, 32, 0, "managed")
		require.NoError(t, err)
		key, err := m.GetKey(id)
		require.NoError(t, err)
		require.Len(t, key, 32)

		newID, err := m.RotateKey(id)
		require.NoError(t, err)
		_, err = m.GetKey(id)
		require.ErrorIs(t, err, encryptedir.ErrKeyInactive)
		_, err = m.GetKey(newID)
		require.NoError(t, err)

		rec, err := m.Metadata(id)
		require.NoError(t, err)
		require.Equal(t, uint64(1), rec.AccessCount)

		entries, err := m.AuditLog("", 0)
		require.NoError(t, err)
		require.Len(t, entries, 5)
		require.Equal(t, uint64(5), entries[0].Seq)
	})
}
