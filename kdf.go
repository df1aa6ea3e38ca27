package encryptedir

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// Info strings for HKDF derivation - distinct strings ensure separate keys
const (
	infoDocumentEncryption = "encryptedir-searchable-encryption"
	infoSearchTokens       = "encryptedir-searchable-tokens"
)

const (
	masterKeySize = 32
	saltSize      = 32

	// MinPBKDF2Iterations is the lowest iteration count accepted for password-derived keys.
	MinPBKDF2Iterations = 480000
)

// searchKeys holds the document-encryption and token keys split from one managed key.
type searchKeys struct {
	encryption [32]byte // AES-256-GCM key for document bodies
	search     [32]byte // HMAC-SHA256 key for keyword tokens
}

// deriveSearchKeys derives the searchable codec's two keys from a 32-byte key using HKDF-SHA256.
//
// The derivation uses distinct info strings to ensure cryptographic separation:
//   - Encryption key: HKDF(key, info="encryptedir-searchable-encryption")
//   - Search key: HKDF(key, info="encryptedir-searchable-tokens")
func deriveSearchKeys(key []byte) (*searchKeys, error) {
	if len(key) != masterKeySize {
		return nil, invalid(ErrInvalidKeySize, "searchable master key must be 32 bytes, got %d", len(key))
	}

	keys := &searchKeys{}
	if err := hkdfDerive(key, infoDocumentEncryption, keys.encryption[:]); err != nil {
		return nil, err
	}
	if err := hkdfDerive(key, infoSearchTokens, keys.search[:]); err != nil {
		return nil, err
	}
	return keys, nil
}

// hkdfDerive performs HKDF-SHA256 key derivation with the given info string.
// No salt is used (nil salt means HKDF uses a zero-filled salt of HashLen bytes).
func hkdfDerive(masterKey []byte, info string, out []byte) error {
	reader := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	_, err := io.ReadFull(reader, out)
	return err
}

// deriveFieldKey computes HMAC-SHA256(masterKey, tenantID ":" fieldName).
// Changing any one of the three inputs changes the output.
func deriveFieldKey(masterKey []byte, tenantID, fieldName string) []byte {
	h := hmac.New(sha256.New, masterKey)
	h.Write([]byte(tenantID))
	h.Write([]byte{':'})
	h.Write([]byte(fieldName))
	return h.Sum(nil)
}

// hmacSHA256 computes HMAC-SHA256 with the given key.
func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// DeriveMasterKey derives a 32-byte master key from a password with PBKDF2-HMAC-SHA256
// at MinPBKDF2Iterations. A nil salt generates a fresh random 32-byte salt, which is returned
// alongside the key so the derivation can be repeated.
func DeriveMasterKey(password string, salt []byte) (key, usedSalt []byte, err error) {
	if salt == nil {
		salt, err = randomBytes(saltSize)
		if err != nil {
			return nil, nil, err
		}
	}
	return passwordKey(password, salt, MinPBKDF2Iterations), salt, nil
}

// GenerateMasterKey returns 32 random bytes suitable for any 256-bit key in this package.
func GenerateMasterKey() ([]byte, error) {
	return randomBytes(masterKeySize)
}

func passwordKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, masterKeySize, sha256.New)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}
