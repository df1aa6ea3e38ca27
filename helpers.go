package encryptedir

import (
	"encoding/binary"
	"encoding/json"
)

// IndexedValue holds an encrypted field with its blind index for equality search.
type IndexedValue struct {
	Ciphertext []byte // Searchable document frame of the original value
	BlindIndex string // base64 blind index of the normalized value
	KeyID      string // blind index key version, stored next to the index
}

// SealIndexed encrypts value with s and computes its blind index with g.
// The original string is preserved in the ciphertext; only the blind index is normalized.
//
// Example:
//
//	v, err := encryptedir.SealIndexed(docs, ssnIndex, keyID, "123-45-6789", encryptedir.SSNIndexConfig())
//	// v.Ciphertext holds "123-45-6789"
//	// v.BlindIndex = index of "123456789"
func SealIndexed(s *Searchable, g *BlindIndexGenerator, keyID, value string, cfg BlindIndexConfig) (*IndexedValue, error) {
	idx, err := g.CreateIndex(value, cfg)
	if err != nil {
		return nil, err
	}
	doc, err := s.EncryptDocument([]byte(value), []string{})
	if err != nil {
		return nil, err
	}
	return &IndexedValue{
		Ciphertext: doc.Ciphertext,
		BlindIndex: idx,
		KeyID:      keyID,
	}, nil
}

// OpenIndexed decrypts the value of an IndexedValue.
func OpenIndexed(s *Searchable, v *IndexedValue) (string, error) {
	plaintext, err := s.DecryptDocument(v.Ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptJSON encrypts a JSON-serializable value as a searchable document.
// keywords are tokenized as given; nil extracts them from the JSON text.
func EncryptJSON[T any](s *Searchable, data T, keywords []string) (*EncryptedDocument, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	defer wipe(jsonBytes)
	return s.EncryptDocument(jsonBytes, keywords)
}

// DecryptJSON decrypts and unmarshals a document sealed by EncryptJSON.
func DecryptJSON[T any](s *Searchable, ciphertext []byte) (T, error) {
	var zero T
	plaintext, err := s.DecryptDocument(ciphertext)
	if err != nil {
		return zero, err
	}
	defer wipe(plaintext)

	var result T
	if err := json.Unmarshal(plaintext, &result); err != nil {
		return zero, err
	}
	return result, nil
}

// EncryptString is Encrypt for a string value with no associated data.
func (d *Deterministic) EncryptString(s string) ([]byte, error) {
	return d.Encrypt([]byte(s), nil)
}

// DecryptString decrypts to a string value.
func (d *Deterministic) DecryptString(ciphertext []byte) (string, error) {
	plaintext, err := d.Decrypt(ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptInt64 encrypts an int64 value as 8 big-endian bytes.
func (d *Deterministic) EncryptInt64(n int64) ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return d.Encrypt(buf, nil)
}

// DecryptInt64 decrypts to an int64 value.
func (d *Deterministic) DecryptInt64(ciphertext []byte) (int64, error) {
	plaintext, err := d.Decrypt(ciphertext, nil)
	if err != nil {
		return 0, err
	}
	if len(plaintext) != 8 {
		return 0, invalid(ErrInvalidFormat, "int64 plaintext is %d bytes", len(plaintext))
	}
	return int64(binary.BigEndian.Uint64(plaintext)), nil
}
