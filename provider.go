package encryptedir

import "sync"

// KeySource returns raw key bytes by id. *Manager implements it, so every codec
// built through a KeySource goes through the manager's lifecycle checks and access count.
type KeySource interface {
	// GetKey returns a copy of the key bytes. The caller may wipe it.
	GetKey(keyID string) ([]byte, error)
}

// KeyProvider is a KeySource that also knows which key to use for new values.
// Implement this interface to integrate with external key management systems.
type KeyProvider interface {
	KeySource

	// DefaultKeyID returns the key ID to use for new values.
	DefaultKeyID() (string, error)

	// ActiveKeyIDs returns all key IDs that should be considered for
	// search queries. During key rotation, this should
	// include both old and new keys.
	ActiveKeyIDs() ([]string, error)
}

// ManagedKeyProvider exposes the keys of one type held by a Manager.
type ManagedKeyProvider struct {
	manager *Manager
	keyType string
}

// NewManagedKeyProvider returns a provider over m's keys of keyType.
func NewManagedKeyProvider(m *Manager, keyType string) *ManagedKeyProvider {
	return &ManagedKeyProvider{manager: m, keyType: keyType}
}

// GetKey implements KeySource. Keys of a different type are reported as not found.
func (p *ManagedKeyProvider) GetKey(keyID string) ([]byte, error) {
	meta, err := p.manager.Metadata(keyID)
	if err != nil {
		return nil, err
	}
	if meta.KeyType != p.keyType {
		return nil, &NotFoundError{KeyID: keyID}
	}
	return p.manager.GetKey(keyID)
}

// DefaultKeyID implements KeyProvider: the most recently created active, unexpired key.
func (p *ManagedKeyProvider) DefaultKeyID() (string, error) {
	ids, err := p.manager.ListKeys(p.keyType, true)
	if err != nil {
		return "", err
	}
	now := p.manager.now()
	var (
		best    string
		bestRec KeyRecord
	)
	for _, id := range ids {
		meta, err := p.manager.Metadata(id)
		if err != nil {
			return "", err
		}
		if meta.IsExpired(now) {
			continue
		}
		if best == "" || meta.CreatedAt.After(bestRec.CreatedAt) {
			best, bestRec = id, meta
		}
	}
	if best == "" {
		return "", &NotFoundError{KeyID: p.keyType + "_*"}
	}
	return best, nil
}

// ActiveKeyIDs implements KeyProvider.
func (p *ManagedKeyProvider) ActiveKeyIDs() ([]string, error) {
	return p.manager.ListKeys(p.keyType, true)
}

// StaticKeyProvider is a simple in-memory implementation of KeyProvider.
// Useful for testing or for keys held by an external system.
type StaticKeyProvider struct {
	mu        sync.RWMutex
	keys      map[string][]byte
	defaultID string
}

// NewStaticKeyProvider creates a StaticKeyProvider with the given keys.
// Keys are deep-copied to prevent external modification.
func NewStaticKeyProvider(defaultKeyID string, keys map[string][]byte) *StaticKeyProvider {
	keysCopy := make(map[string][]byte, len(keys))
	for id, key := range keys {
		keysCopy[id] = cloneBytes(key)
	}
	return &StaticKeyProvider{
		keys:      keysCopy,
		defaultID: defaultKeyID,
	}
}

// GetKey implements KeySource.
func (p *StaticKeyProvider) GetKey(keyID string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	key, ok := p.keys[keyID]
	if !ok {
		return nil, &NotFoundError{KeyID: keyID}
	}
	return cloneBytes(key), nil
}

// DefaultKeyID implements KeyProvider.
func (p *StaticKeyProvider) DefaultKeyID() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if _, ok := p.keys[p.defaultID]; !ok {
		return "", &NotFoundError{KeyID: p.defaultID}
	}
	return p.defaultID, nil
}

// ActiveKeyIDs implements KeyProvider.
func (p *StaticKeyProvider) ActiveKeyIDs() ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sortedMapKeys(p.keys), nil
}

// Close zeros out all key material from memory.
// After calling Close, the provider should not be used.
func (p *StaticKeyProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, key := range p.keys {
		wipe(key)
	}
	p.keys = nil
}

// withKey fetches keyID from src, hands it to build and wipes the fetched copy.
func withKey[T any](src KeySource, keyID string, build func([]byte) (T, error)) (T, error) {
	key, err := src.GetKey(keyID)
	if err != nil {
		var zero T
		return zero, err
	}
	defer wipe(key)
	return build(key)
}

// NewBlindIndexGeneratorFromManager builds a generator for tenantID from managed key keyID.
// The key must be 32 bytes.
func NewBlindIndexGeneratorFromManager(src KeySource, keyID, tenantID string) (*BlindIndexGenerator, error) {
	return withKey(src, keyID, func(key []byte) (*BlindIndexGenerator, error) {
		return NewBlindIndexGenerator(tenantID, key)
	})
}

// NewOrderPreservingFromManager builds an order-preserving codec from managed key keyID.
func NewOrderPreservingFromManager(src KeySource, keyID string, opts ...OPEOption) (*OrderPreserving, error) {
	return withKey(src, keyID, func(key []byte) (*OrderPreserving, error) {
		return NewOrderPreserving(key, opts...)
	})
}

// NewSearchableFromManager builds a searchable codec from managed key keyID via HKDF.
func NewSearchableFromManager(src KeySource, keyID string, opts ...SearchableOption) (*Searchable, error) {
	return withKey(src, keyID, func(key []byte) (*Searchable, error) {
		return NewSearchableFromKey(key, opts...)
	})
}

// NewDeterministicFromManager builds an AES-SIV codec from 64-byte managed key keyID.
func NewDeterministicFromManager(src KeySource, keyID string) (*Deterministic, error) {
	return withKey(src, keyID, NewDeterministic)
}

// RotateBlindIndexGenerator rotates g onto managed key keyID, typically the id
// returned by Manager.RotateKey. g's field-key cache is cleared.
func RotateBlindIndexGenerator(g *BlindIndexGenerator, src KeySource, keyID string) error {
	_, err := withKey(src, keyID, func(key []byte) (struct{}, error) {
		return struct{}{}, g.RotateKey(key)
	})
	return err
}
