package encryptedir

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Key types used by the FromManager constructors. Any non-empty string is a valid key type.
const (
	KeyTypeBlindIndex    = "blind_index"
	KeyTypeOPE           = "ope"
	KeyTypeSearchable    = "searchable"
	KeyTypeDeterministic = "deterministic"
)

const (
	// DefaultRotationPeriod applies when CreateKey is given a non-positive period.
	DefaultRotationPeriod = 90 * 24 * time.Hour

	minManagedKeySize = 16
	maxManagedKeySize = 64

	keyIDHashChars = 16
)

// KeyRecord is the metadata of a managed key. It never carries key bytes.
type KeyRecord struct {
	KeyID          string        `json:"key_id"`
	KeyType        string        `json:"key_type"`
	KeySize        int           `json:"key_size"`
	Description    string        `json:"description"`
	CreatedAt      time.Time     `json:"created_at"`
	LastRotated    time.Time     `json:"last_rotated"`
	ExpiresAt      *time.Time    `json:"expires_at,omitempty"`
	RotationPeriod time.Duration `json:"rotation_period"`
	Active         bool          `json:"active"`
	AccessCount    uint64        `json:"access_count"`
}

// IsExpired reports whether the record has an expiry at or before now.
func (r *KeyRecord) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// NeedsRotation reports whether an active record's rotation period has elapsed at now.
func (r *KeyRecord) NeedsRotation(now time.Time) bool {
	return r.Active && now.Sub(r.LastRotated) >= r.RotationPeriod
}

// StoredRecord is what a Store persists: the record plus its key bytes wrapped
// under the manager's master key (nonce||AES-GCM(key), AAD = KeyID).
type StoredRecord struct {
	KeyRecord
	WrappedKey []byte `json:"wrapped_key"`
}

// Clone returns a deep copy, so stores never share buffers with callers.
func (r *StoredRecord) Clone() *StoredRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	c.WrappedKey = cloneBytes(r.WrappedKey)
	return &c
}

// newKeyID returns <keyType>_<16 hex chars of SHA-256(keyType ":" timestamp || nonce)>.
func newKeyID(keyType string, now time.Time) (string, error) {
	nonce, err := randomBytes(16)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(keyType))
	h.Write([]byte{':'})
	h.Write([]byte(now.Format(time.RFC3339Nano)))
	h.Write(nonce)
	return keyType + "_" + hex.EncodeToString(h.Sum(nil))[:keyIDHashChars], nil
}
