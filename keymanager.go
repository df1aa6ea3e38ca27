package encryptedir

import (
	"crypto/cipher"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Manager owns a master key, a set of managed keys and their audit log.
// Key bytes are AES-GCM wrapped under the master key before they reach the Store.
// It is safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	masterKey  []byte
	wrap       cipher.AEAD
	store      Store
	logger     *zap.Logger
	metrics    *Metrics
	now        func() time.Time
	iterations int
	rotation   time.Duration
	auditFails bool
	lastSeq    uint64
	closed     atomic.Bool
}

// NewManager creates a Manager with the given options.
//
// Example:
//
//	mgr, err := encryptedir.NewManager(
//	    encryptedir.WithMasterKey(masterKey),
//	    encryptedir.WithLogger(logger),
//	)
//	keyID, err := mgr.CreateKey(encryptedir.KeyTypeBlindIndex, 32, 0, "ssn index")
func NewManager(opts ...ManagerOption) (*Manager, error) {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.iterations < MinPBKDF2Iterations && !cfg.allowWeakKDF {
		return nil, invalid(ErrInvalidConfig, "pbkdf2 iterations must be at least %d, got %d", MinPBKDF2Iterations, cfg.iterations)
	}
	if cfg.iterations <= 0 {
		return nil, invalid(ErrInvalidConfig, "pbkdf2 iterations must be positive, got %d", cfg.iterations)
	}
	if cfg.defaultRotation <= 0 {
		cfg.defaultRotation = DefaultRotationPeriod
	}

	if cfg.masterKey == nil {
		key, err := GenerateMasterKey()
		if err != nil {
			return nil, err
		}
		cfg.masterKey = key
	}
	if len(cfg.masterKey) != masterKeySize {
		n := len(cfg.masterKey)
		wipe(cfg.masterKey)
		return nil, invalid(ErrInvalidKeySize, "master key must be 32 bytes, got %d", n)
	}

	wrap, err := newGCM(cfg.masterKey)
	if err != nil {
		wipe(cfg.masterKey)
		return nil, err
	}

	if cfg.store == nil {
		cfg.store = NewMemoryStore()
	}
	entries, err := cfg.store.ListAudit()
	if err != nil {
		wipe(cfg.masterKey)
		return nil, fmt.Errorf("encryptedir: read audit log: %w", err)
	}

	m := &Manager{
		masterKey:  cfg.masterKey,
		wrap:       wrap,
		store:      cfg.store,
		logger:     cfg.logger,
		metrics:    cfg.metrics,
		now:        cfg.now,
		iterations: cfg.iterations,
		rotation:   cfg.defaultRotation,
		auditFails: cfg.auditFailures,
	}
	if n := len(entries); n > 0 {
		m.lastSeq = entries[n-1].Seq
	}
	if err := m.refreshKeyGauge(); err != nil {
		wipe(m.masterKey)
		return nil, err
	}
	return m, nil
}

// CreateKey generates keySize random bytes (16..64) as a new active key of keyType.
// A non-positive rotationPeriod uses the manager default (90 days unless configured).
func (m *Manager) CreateKey(keyType string, keySize int, rotationPeriod time.Duration, description string, opts ...KeyOption) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keyID, err := m.createKey(keyType, keySize, rotationPeriod, description, opts)
	m.observe(OpCreate, keyID, err)
	return keyID, err
}

func (m *Manager) createKey(keyType string, keySize int, rotationPeriod time.Duration, description string, opts []KeyOption) (string, error) {
	if err := m.checkOpen(); err != nil {
		return "", err
	}
	now := m.now()
	rec, err := m.newRecord(keyType, keySize, rotationPeriod, description, now, opts)
	if err != nil {
		return "", err
	}
	batch := m.batch(now)
	batch.add(rec.KeyID, OpCreate, true, fmt.Sprintf("Created %s key", keyType))
	if err := m.commit([]*StoredRecord{rec}, batch); err != nil {
		return "", err
	}
	return rec.KeyID, nil
}

// newRecord builds a wrapped record without storing it.
func (m *Manager) newRecord(keyType string, keySize int, rotationPeriod time.Duration, description string, now time.Time, opts []KeyOption) (*StoredRecord, error) {
	if keyType == "" {
		return nil, invalid(ErrInvalidKeyType, "key type must not be empty")
	}
	if keySize < minManagedKeySize || keySize > maxManagedKeySize {
		return nil, invalid(ErrInvalidKeySize, "key size must be between %d and %d bytes, got %d", minManagedKeySize, maxManagedKeySize, keySize)
	}
	if rotationPeriod <= 0 {
		rotationPeriod = m.rotation
	}

	keyID, err := newKeyID(keyType, now)
	if err != nil {
		return nil, err
	}
	raw, err := randomBytes(keySize)
	if err != nil {
		return nil, err
	}
	defer wipe(raw)

	wrapped, err := m.wrapKey(keyID, raw)
	if err != nil {
		return nil, err
	}

	rec := &StoredRecord{
		KeyRecord: KeyRecord{
			KeyID:          keyID,
			KeyType:        keyType,
			KeySize:        keySize,
			Description:    description,
			CreatedAt:      now,
			LastRotated:    now,
			RotationPeriod: rotationPeriod,
			Active:         true,
		},
		WrappedKey: wrapped,
	}
	var ko keyOptions
	for _, opt := range opts {
		opt(&ko)
	}
	rec.ExpiresAt = ko.expiresAt
	return rec, nil
}

// GetKey returns a copy of the key bytes and increments the access count.
// Unknown ids return a *NotFoundError; inactive or expired keys return a *LifecycleError.
// The caller owns the returned slice and should wipe it when done.
func (m *Manager) GetKey(keyID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.getKey(keyID)
	m.observe(OpGet, keyID, err)
	return key, err
}

func (m *Manager) getKey(keyID string) ([]byte, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	rec, err := m.load(keyID)
	if err != nil {
		if IsNotFound(err) {
			m.auditFailure(keyID, "key not found")
		}
		return nil, err
	}

	now := m.now()
	if !rec.Active {
		m.auditFailure(keyID, "key is inactive")
		return nil, &LifecycleError{KeyID: keyID, Reason: LifecycleInactive}
	}
	if rec.IsExpired(now) {
		m.auditFailure(keyID, "key is expired")
		return nil, &LifecycleError{KeyID: keyID, Reason: LifecycleExpired}
	}

	raw, err := m.unwrapKey(rec)
	if err != nil {
		return nil, err
	}
	rec.AccessCount++
	batch := m.batch(now)
	batch.add(keyID, OpGet, true, "")
	if err := m.commit([]*StoredRecord{rec}, batch); err != nil {
		wipe(raw)
		return nil, err
	}
	return raw, nil
}

// RotateKey creates a successor with the same type, size and rotation period and marks
// keyID inactive. The old record is deactivated even when it already was inactive.
func (m *Manager) RotateKey(keyID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	newID, err := m.rotateKey(keyID)
	m.observe(OpRotate, keyID, err)
	return newID, err
}

func (m *Manager) rotateKey(keyID string) (string, error) {
	if err := m.checkOpen(); err != nil {
		return "", err
	}
	old, err := m.load(keyID)
	if err != nil {
		return "", err
	}

	now := m.now()
	successor, err := m.newRecord(old.KeyType, old.KeySize, old.RotationPeriod, "Rotated from "+keyID, now, nil)
	if err != nil {
		return "", err
	}
	old.Active = false

	batch := m.batch(now)
	batch.add(successor.KeyID, OpCreate, true, fmt.Sprintf("Created %s key", old.KeyType))
	batch.add(keyID, OpRotate, true, "Rotated to "+successor.KeyID)
	if err := m.commit([]*StoredRecord{successor, old}, batch); err != nil {
		return "", err
	}
	return successor.KeyID, nil
}

// DeleteKey deactivates keyID permanently. The record is kept so the audit trail stays
// intact, but GetKey will never return its bytes again.
func (m *Manager) DeleteKey(keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.mutate(keyID, OpDelete, "Key deactivated", func(rec *KeyRecord) {
		rec.Active = false
	})
	m.observe(OpDelete, keyID, err)
	return err
}

// SetExpiry sets the record's expiry. It never changes the active flag.
func (m *Manager) SetExpiry(keyID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.mutate(keyID, OpSetExpiry, "Expires at "+expiresAt.UTC().Format(time.RFC3339), func(rec *KeyRecord) {
		rec.ExpiresAt = &expiresAt
	})
	m.observe(OpSetExpiry, keyID, err)
	return err
}

func (m *Manager) mutate(keyID, op, details string, fn func(*KeyRecord)) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	rec, err := m.load(keyID)
	if err != nil {
		return err
	}
	fn(&rec.KeyRecord)
	batch := m.batch(m.now())
	batch.add(keyID, op, true, details)
	return m.commit([]*StoredRecord{rec}, batch)
}

// Metadata returns a copy of the key's record. It does not count as an access.
func (m *Manager) Metadata(keyID string) (KeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpen(); err != nil {
		return KeyRecord{}, err
	}
	rec, err := m.load(keyID)
	if err != nil {
		return KeyRecord{}, err
	}
	return rec.KeyRecord, nil
}

// ListKeys returns the sorted ids of keys of keyType (all types when empty),
// optionally only the active ones.
func (m *Manager) ListKeys(keyType string, activeOnly bool) ([]string, error) {
	return m.selectKeys(func(rec *KeyRecord, _ time.Time) bool {
		return (keyType == "" || rec.KeyType == keyType) && (!activeOnly || rec.Active)
	})
}

// KeysNeedingRotation returns the sorted ids of active keys whose rotation period has elapsed.
func (m *Manager) KeysNeedingRotation() ([]string, error) {
	return m.selectKeys(func(rec *KeyRecord, now time.Time) bool {
		return rec.NeedsRotation(now)
	})
}

func (m *Manager) selectKeys(match func(*KeyRecord, time.Time) bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	records, err := m.store.ListRecords()
	if err != nil {
		return nil, fmt.Errorf("encryptedir: list keys: %w", err)
	}
	now := m.now()
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if match(&rec.KeyRecord, now) {
			ids = append(ids, rec.KeyID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// AuditLog returns up to limit entries for keyID, newest first. An empty keyID
// returns entries for all keys; limit <= 0 means 100.
func (m *Manager) AuditLog(keyID string, limit int) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	entries, err := m.store.ListAudit()
	if err != nil {
		return nil, fmt.Errorf("encryptedir: read audit log: %w", err)
	}
	return filterAudit(entries, keyID, limit), nil
}

// Close wipes the master key and closes the store.
// Operations after Close return ErrManagerClosed. Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Swap(true) {
		return nil
	}
	wipe(m.masterKey)
	m.masterKey = nil
	m.wrap = nil
	return m.store.Close()
}

func (m *Manager) checkOpen() error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	return nil
}

func (m *Manager) load(keyID string) (*StoredRecord, error) {
	rec, err := m.store.GetRecord(keyID)
	if err != nil {
		if IsNotFound(err) {
			return nil, &NotFoundError{KeyID: keyID}
		}
		return nil, fmt.Errorf("encryptedir: load key %s: %w", keyID, err)
	}
	return rec, nil
}

func (m *Manager) batch(now time.Time) *auditBatch {
	return &auditBatch{base: m.lastSeq, now: now}
}

// commit writes records and the batch's entries in one store transaction.
// The sequence counter only advances once the store accepted the write.
func (m *Manager) commit(records []*StoredRecord, batch *auditBatch) error {
	if err := m.store.Commit(records, batch.entries); err != nil {
		return fmt.Errorf("encryptedir: store commit: %w", err)
	}
	m.lastSeq += uint64(len(batch.entries))
	return nil
}

// auditFailure records a rejected access when failure auditing is enabled.
func (m *Manager) auditFailure(keyID, details string) {
	if !m.auditFails {
		return
	}
	batch := m.batch(m.now())
	batch.add(keyID, OpGet, false, details)
	if err := m.store.Commit(nil, batch.entries); err != nil {
		m.logger.Warn("audit failed access", zap.String("key_id", keyID), zap.Error(err))
		return
	}
	m.lastSeq += uint64(len(batch.entries))
}

func (m *Manager) observe(op, keyID string, err error) {
	m.metrics.RecordOperation(op, err)
	if err != nil {
		m.logger.Warn("key operation failed",
			zap.String("operation", op),
			zap.String("key_id", keyID),
			zap.Error(err))
		return
	}
	m.logger.Debug("key operation",
		zap.String("operation", op),
		zap.String("key_id", keyID))

	switch op {
	case OpCreate, OpRotate, OpDelete, OpImport:
		if err := m.refreshKeyGauge(); err != nil {
			m.logger.Warn("refresh key gauge", zap.Error(err))
		}
	}
}

func (m *Manager) refreshKeyGauge() error {
	if m.metrics == nil {
		return nil
	}
	records, err := m.store.ListRecords()
	if err != nil {
		return err
	}
	var active, inactive int
	for _, rec := range records {
		if rec.Active {
			active++
		} else {
			inactive++
		}
	}
	m.metrics.setKeyCounts(active, inactive)
	return nil
}

// wrapKey seals raw under the master key as nonce||ciphertext||tag, bound to keyID.
func (m *Manager) wrapKey(keyID string, raw []byte) ([]byte, error) {
	nonce, err := randomBytes(gcmNonceSize)
	if err != nil {
		return nil, err
	}
	return m.wrap.Seal(nonce, nonce, raw, []byte(keyID)), nil
}

func (m *Manager) unwrapKey(rec *StoredRecord) ([]byte, error) {
	if len(rec.WrappedKey) < gcmNonceSize+gcmTagSize {
		return nil, invalid(ErrInvalidFormat, "wrapped key for %s is %d bytes", rec.KeyID, len(rec.WrappedKey))
	}
	raw, err := m.wrap.Open(nil, rec.WrappedKey[:gcmNonceSize], rec.WrappedKey[gcmNonceSize:], []byte(rec.KeyID))
	if err != nil {
		return nil, &AuthenticationError{Op: "unwrap key " + rec.KeyID}
	}
	return raw, nil
}

