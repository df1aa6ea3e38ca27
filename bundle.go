package encryptedir

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const bundleVersion = "1.0"

// bundlePayload is the JSON sealed inside an export bundle.
// Key bytes are base64 encoded by encoding/json.
type bundlePayload struct {
	Keys     map[string][]byte    `json:"keys"`
	Metadata map[string]KeyRecord `json:"metadata"`
	Version  string               `json:"version"`
}

func (p *bundlePayload) wipe() {
	for _, raw := range p.Keys {
		wipe(raw)
	}
}

// ExportKeys returns every key, active or not, with its metadata, sealed under a
// password-derived key: salt(32) || nonce(12) || AES-256-GCM(JSON payload).
func (m *Manager) ExportKeys(password string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bundle, err := m.exportKeys(password)
	m.observe(OpExport, auditAllKeys, err)
	return bundle, err
}

// ExportKeysBase64 is ExportKeys with standard base64 output.
func (m *Manager) ExportKeysBase64(password string) (string, error) {
	bundle, err := m.ExportKeys(password)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(bundle), nil
}

func (m *Manager) exportKeys(password string) ([]byte, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, invalid(ErrInvalidConfig, "export password must not be empty")
	}

	records, err := m.store.ListRecords()
	if err != nil {
		return nil, fmt.Errorf("encryptedir: list keys: %w", err)
	}

	payload := &bundlePayload{
		Keys:     make(map[string][]byte, len(records)),
		Metadata: make(map[string]KeyRecord, len(records)),
		Version:  bundleVersion,
	}
	defer payload.wipe()
	for _, rec := range records {
		raw, err := m.unwrapKey(rec)
		if err != nil {
			return nil, err
		}
		payload.Keys[rec.KeyID] = raw
		payload.Metadata[rec.KeyID] = rec.KeyRecord
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	defer wipe(plaintext)

	salt, err := randomBytes(saltSize)
	if err != nil {
		return nil, err
	}
	wrapKey := passwordKey(password, salt, m.iterations)
	defer wipe(wrapKey)
	aead, err := newGCM(wrapKey)
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(gcmNonceSize)
	if err != nil {
		return nil, err
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	batch := m.batch(m.now())
	batch.add(auditAllKeys, OpExport, true, fmt.Sprintf("Exported %d keys", len(records)))
	if err := m.commit(nil, batch); err != nil {
		return nil, err
	}
	return formatBundle(salt, nonce, ciphertext), nil
}

// ImportKeys merges a bundle from ExportKeys into this manager. Imported keys replace
// local records with the same id and are re-wrapped under this manager's master key.
// A local record that is already inactive stays inactive.
//
// A wrong password or a tampered bundle returns an *AuthenticationError. The payload is
// fully validated before anything is written, and the merge is a single store commit.
func (m *Manager) ImportKeys(bundle []byte, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.importKeys(bundle, password)
	m.observe(OpImport, auditAllKeys, err)
	return err
}

// ImportKeysBase64 is ImportKeys for a base64 bundle from ExportKeysBase64.
func (m *Manager) ImportKeysBase64(bundle, password string) error {
	raw, err := base64.StdEncoding.DecodeString(bundle)
	if err != nil {
		return invalid(ErrInvalidFormat, "key bundle is not base64")
	}
	return m.ImportKeys(raw, password)
}

func (m *Manager) importKeys(bundle []byte, password string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	salt, nonce, ciphertext, err := parseBundle(bundle)
	if err != nil {
		return err
	}

	wrapKey := passwordKey(password, salt, m.iterations)
	defer wipe(wrapKey)
	aead, err := newGCM(wrapKey)
	if err != nil {
		return err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return &AuthenticationError{Op: "import keys"}
	}
	defer wipe(plaintext)

	var payload bundlePayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return invalid(ErrInvalidFormat, "key bundle payload: %v", err)
	}
	defer payload.wipe()
	if payload.Version != bundleVersion {
		return invalid(ErrInvalidFormat, "unsupported key bundle version %q", payload.Version)
	}

	records := make([]*StoredRecord, 0, len(payload.Keys))
	for _, keyID := range sortedMapKeys(payload.Keys) {
		rec, err := m.importedRecord(keyID, payload.Keys[keyID], payload.Metadata)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	batch := m.batch(m.now())
	batch.add(auditAllKeys, OpImport, true, fmt.Sprintf("Imported %d keys", len(records)))
	return m.commit(records, batch)
}

func (m *Manager) importedRecord(keyID string, raw []byte, metadata map[string]KeyRecord) (*StoredRecord, error) {
	meta, ok := metadata[keyID]
	if !ok {
		return nil, invalid(ErrInvalidFormat, "key bundle has no metadata for %s", keyID)
	}
	if meta.KeyID != "" && meta.KeyID != keyID {
		return nil, invalid(ErrInvalidFormat, "key bundle metadata id %s does not match %s", meta.KeyID, keyID)
	}
	if meta.KeyType == "" {
		return nil, invalid(ErrInvalidKeyType, "key bundle entry %s has no key type", keyID)
	}
	if len(raw) < minManagedKeySize || len(raw) > maxManagedKeySize {
		return nil, invalid(ErrInvalidKeySize, "key bundle entry %s is %d bytes", keyID, len(raw))
	}
	meta.KeyID = keyID
	meta.KeySize = len(raw)
	if meta.RotationPeriod <= 0 {
		meta.RotationPeriod = m.rotation
	}

	existing, err := m.store.GetRecord(keyID)
	switch {
	case err == nil:
		if !existing.Active {
			meta.Active = false
		}
	case !IsNotFound(err):
		return nil, fmt.Errorf("encryptedir: load key %s: %w", keyID, err)
	}

	wrapped, err := m.wrapKey(keyID, raw)
	if err != nil {
		return nil, err
	}
	return &StoredRecord{KeyRecord: meta, WrappedKey: wrapped}, nil
}
