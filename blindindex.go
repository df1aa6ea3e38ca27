package encryptedir

import (
	"crypto/subtle"
	"encoding/base64"
	"sort"
	"strings"
	"sync"
)

const (
	defaultIndexLength = 16
	maxIndexLength     = 32 // SHA-256 output
)

// BlindIndexConfig controls how a field's values are normalized and indexed.
type BlindIndexConfig struct {
	FieldName        string     // Field being indexed, part of the key derivation context
	OutputLength     int        // Truncated index length in bytes (default 16)
	CaseSensitive    bool       // Preserve case (default false)
	UnicodeNormalize string     // NFC, NFD, NFKC (default), NFKD or "" for none
	Normalizer       Normalizer // Optional pre-normalizer, e.g. NormalizeSSN
}

// NewBlindIndexConfig returns a config for fieldName with the default settings.
func NewBlindIndexConfig(fieldName string) BlindIndexConfig {
	return BlindIndexConfig{
		FieldName:        fieldName,
		OutputLength:     defaultIndexLength,
		UnicodeNormalize: FormNFKC,
	}
}

// SSNIndexConfig is the config for social security numbers: case-insensitive, digits only.
func SSNIndexConfig() BlindIndexConfig {
	cfg := NewBlindIndexConfig("ssn")
	cfg.Normalizer = NormalizeSSN
	return cfg
}

// EmailIndexConfig is the config for email addresses: case-insensitive.
func EmailIndexConfig() BlindIndexConfig {
	return NewBlindIndexConfig("email")
}

// AccountIndexConfig is the config for account numbers, which are usually case-sensitive.
func AccountIndexConfig() BlindIndexConfig {
	cfg := NewBlindIndexConfig("account_number")
	cfg.CaseSensitive = true
	return cfg
}

func (cfg BlindIndexConfig) validate() error {
	if cfg.FieldName == "" {
		return invalid(ErrInvalidConfig, "blind index field name must not be empty")
	}
	if cfg.OutputLength < 1 || cfg.OutputLength > maxIndexLength {
		return invalid(ErrInvalidConfig, "blind index output length must be 1-%d, got %d", maxIndexLength, cfg.OutputLength)
	}
	if _, _, ok := unicodeForm(cfg.UnicodeNormalize); !ok {
		return invalid(ErrInvalidConfig, "unknown unicode normalization form %q", cfg.UnicodeNormalize)
	}
	return nil
}

// normalize trims, applies the Unicode form and folds case unless CaseSensitive.
// cfg must already be validated.
func (cfg BlindIndexConfig) normalize(value string) string {
	if cfg.Normalizer != nil {
		value = cfg.Normalizer(value)
	}
	normalized := strings.TrimSpace(value)
	if form, apply, _ := unicodeForm(cfg.UnicodeNormalize); apply {
		normalized = form.String(normalized)
	}
	if !cfg.CaseSensitive {
		normalized = strings.ToLower(normalized)
	}
	return normalized
}

// BlindIndexGenerator computes tenant- and field-scoped blind indexes.
// Field keys are derived from the master key and cached per field name.
// It is safe for concurrent use.
type BlindIndexGenerator struct {
	tenantID string

	mu        sync.Mutex
	masterKey []byte
	fieldKeys map[string][]byte
}

// NewBlindIndexGenerator creates a generator for one tenant. The master key must be 32 bytes
// and is copied; the caller may zero the original.
func NewBlindIndexGenerator(tenantID string, masterKey []byte) (*BlindIndexGenerator, error) {
	if len(masterKey) != masterKeySize {
		return nil, invalid(ErrInvalidKeySize, "blind index master key must be 32 bytes, got %d", len(masterKey))
	}
	return &BlindIndexGenerator{
		tenantID:  tenantID,
		masterKey: cloneBytes(masterKey),
		fieldKeys: make(map[string][]byte),
	}, nil
}

// ImportBlindIndexGenerator rebuilds a generator from a key exported with ExportMasterKey.
func ImportBlindIndexGenerator(masterKeyB64, tenantID string) (*BlindIndexGenerator, error) {
	key, err := base64.StdEncoding.DecodeString(masterKeyB64)
	if err != nil {
		return nil, invalid(ErrInvalidFormat, "master key is not base64")
	}
	return NewBlindIndexGenerator(tenantID, key)
}

// TenantID returns the tenant this generator is scoped to.
func (g *BlindIndexGenerator) TenantID() string {
	return g.tenantID
}

// mac computes the HMAC of data under fieldName's key, deriving and caching the key on first use.
// Cached keys never leave g.mu: RotateKey wipes them in place.
func (g *BlindIndexGenerator) mac(fieldName string, data []byte) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()

	key, ok := g.fieldKeys[fieldName]
	if !ok {
		key = deriveFieldKey(g.masterKey, g.tenantID, fieldName)
		g.fieldKeys[fieldName] = key
	}
	return hmacSHA256(key, data)
}

// CreateIndexRaw returns the truncated HMAC bytes for value.
func (g *BlindIndexGenerator) CreateIndexRaw(value string, cfg BlindIndexConfig) ([]byte, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	mac := g.mac(cfg.FieldName, []byte(cfg.normalize(value)))
	return mac[:cfg.OutputLength], nil
}

// CreateIndex returns the base64-encoded blind index for value.
// The index is deterministic within (tenant, field): same value, same index.
func (g *BlindIndexGenerator) CreateIndex(value string, cfg BlindIndexConfig) (string, error) {
	raw, err := g.CreateIndexRaw(value, cfg)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// VerifyIndex reports whether index is the blind index of value.
// The comparison is constant-time.
func (g *BlindIndexGenerator) VerifyIndex(value, index string, cfg BlindIndexConfig) (bool, error) {
	computed, err := g.CreateIndex(value, cfg)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(index)) == 1, nil
}

// RotateKey replaces the master key and drops every cached field key.
// Existing indexes are not re-indexed; callers must recompute them.
func (g *BlindIndexGenerator) RotateKey(newMasterKey []byte) error {
	if len(newMasterKey) != masterKeySize {
		return invalid(ErrInvalidKeySize, "blind index master key must be 32 bytes, got %d", len(newMasterKey))
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	wipe(g.masterKey)
	for _, key := range g.fieldKeys {
		wipe(key)
	}
	g.masterKey = cloneBytes(newMasterKey)
	clear(g.fieldKeys)
	return nil
}

// ExportMasterKey returns the master key as base64.
// Anyone holding it can compute indexes for every field of this tenant.
func (g *BlindIndexGenerator) ExportMasterKey() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return base64.StdEncoding.EncodeToString(g.masterKey)
}

// BlindIndexSearch indexes records and answers equality queries for one tenant.
type BlindIndexSearch struct {
	generator *BlindIndexGenerator
}

// NewBlindIndexSearch wraps a generator.
func NewBlindIndexSearch(generator *BlindIndexGenerator) *BlindIndexSearch {
	return &BlindIndexSearch{generator: generator}
}

// IndexRecords computes the blind index of field for every record that has it.
// Returns index -> record IDs; records sharing a value share an index.
func (s *BlindIndexSearch) IndexRecords(records map[string]map[string]string, field string, cfg BlindIndexConfig) (map[string][]string, error) {
	indexMap := make(map[string][]string)
	for _, recordID := range sortedMapKeys(records) {
		value, ok := records[recordID][field]
		if !ok {
			continue
		}
		index, err := s.generator.CreateIndex(value, cfg)
		if err != nil {
			return nil, err
		}
		indexMap[index] = append(indexMap[index], recordID)
	}
	return indexMap, nil
}

// Search returns the IDs of records whose indexed value equals query.
func (s *BlindIndexSearch) Search(query string, indexMap map[string][]string, cfg BlindIndexConfig) ([]string, error) {
	index, err := s.generator.CreateIndex(query, cfg)
	if err != nil {
		return nil, err
	}
	ids := indexMap[index]
	if len(ids) == 0 {
		return []string{}, nil
	}
	return append([]string(nil), ids...), nil
}

// MultiSearch runs Search for each query value.
func (s *BlindIndexSearch) MultiSearch(queries []string, indexMap map[string][]string, cfg BlindIndexConfig) (map[string][]string, error) {
	results := make(map[string][]string, len(queries))
	for _, q := range queries {
		ids, err := s.Search(q, indexMap, cfg)
		if err != nil {
			return nil, err
		}
		results[q] = ids
	}
	return results, nil
}

// sortedMapKeys returns map keys sorted alphabetically.
func sortedMapKeys[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
