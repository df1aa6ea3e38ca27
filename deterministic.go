package encryptedir

import (
	"encoding/base64"

	"github.com/tink-crypto/tink-go/v2/daead/subtle"
)

// DeterministicKeySize is the AES-SIV key size: two 256-bit AES keys.
const DeterministicKeySize = subtle.AESSIVKeySize

// Deterministic is an AES-SIV deterministic AEAD: the same plaintext and associated data
// always produce the same ciphertext, so ciphertexts double as equality indexes.
// Unlike a blind index, the value can be decrypted. It is safe for concurrent use.
type Deterministic struct {
	siv *subtle.AESSIV
}

// NewDeterministic creates a deterministic cipher from a 64-byte key.
func NewDeterministic(key []byte) (*Deterministic, error) {
	if len(key) != DeterministicKeySize {
		return nil, invalid(ErrInvalidKeySize, "deterministic key must be %d bytes, got %d", DeterministicKeySize, len(key))
	}
	siv, err := subtle.NewAESSIV(key)
	if err != nil {
		return nil, invalid(ErrInvalidKeySize, "aes-siv: %v", err)
	}
	return &Deterministic{siv: siv}, nil
}

// Encrypt seals plaintext bound to associatedData (which may be nil).
func (d *Deterministic) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	return d.siv.EncryptDeterministically(plaintext, associatedData)
}

// Decrypt opens a ciphertext from Encrypt. Any mismatch in key, data or associatedData
// returns an *AuthenticationError.
func (d *Deterministic) Decrypt(ciphertext, associatedData []byte) ([]byte, error) {
	pt, err := d.siv.DecryptDeterministically(ciphertext, associatedData)
	if err != nil {
		return nil, &AuthenticationError{Op: "deterministic decrypt"}
	}
	return pt, nil
}

// EncryptBase64 is Encrypt with base64 output.
func (d *Deterministic) EncryptBase64(plaintext, associatedData []byte) (string, error) {
	ct, err := d.Encrypt(plaintext, associatedData)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecryptBase64 is Decrypt for base64 input.
func (d *Deterministic) DecryptBase64(ciphertext string, associatedData []byte) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, invalid(ErrInvalidFormat, "ciphertext is not base64")
	}
	return d.Decrypt(ct, associatedData)
}

// SearchIndex returns the base64 deterministic ciphertext of plaintext, usable as an equality index.
func (d *Deterministic) SearchIndex(plaintext []byte) (string, error) {
	return d.EncryptBase64(plaintext, nil)
}
