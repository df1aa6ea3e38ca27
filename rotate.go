package encryptedir

// Helpers for migrating stored values after Manager.RotateKey. Build one codec from the
// old key (fetched before rotating, or from an export bundle) and one from the successor,
// then rewrite each stored value. Decryption failures are returned as-is.

// RotateDocument decrypts a document sealed by from and re-encrypts it under to.
// Keywords are re-tokenized with to's search key; pass nil to extract them from the plaintext.
func RotateDocument(from, to *Searchable, ciphertext []byte, keywords []string) (*EncryptedDocument, error) {
	plaintext, err := from.DecryptDocument(ciphertext)
	if err != nil {
		return nil, err
	}
	defer wipe(plaintext)
	return to.EncryptDocument(plaintext, keywords)
}

// RotateDeterministic re-encrypts a deterministic ciphertext under to.
// Returns nil if ciphertext is nil (NULL stays NULL).
func RotateDeterministic(from, to *Deterministic, ciphertext, associatedData []byte) ([]byte, error) {
	if ciphertext == nil {
		return nil, nil
	}
	plaintext, err := from.Decrypt(ciphertext, associatedData)
	if err != nil {
		return nil, err
	}
	defer wipe(plaintext)
	return to.Encrypt(plaintext, associatedData)
}

// RotateBlindIndex recomputes an index under to. Blind indexes are one-way, so the
// plaintext must come from the encrypted copy of the value (for example a document
// or deterministic ciphertext decrypted during the same migration).
func RotateBlindIndex(to *BlindIndexGenerator, plaintext string, cfg BlindIndexConfig) (string, error) {
	return to.CreateIndex(plaintext, cfg)
}

// RotateAmount maps the same amount under a new order-preserving key.
// Order-preserving ciphertexts cannot be decrypted; the amount must be known.
func RotateAmount(to *OrderPreserving, amount float64) (uint64, error) {
	return to.EncryptAmount(amount)
}

// NeedsRotation reports whether keyID is one of m's keys whose rotation period has elapsed.
// Unknown ids return a *NotFoundError.
func NeedsRotation(m *Manager, keyID string) (bool, error) {
	meta, err := m.Metadata(keyID)
	if err != nil {
		return false, err
	}
	return meta.NeedsRotation(m.now()), nil
}
