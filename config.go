package encryptedir

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends understood by storeconfig.OpenStore.
const (
	StoreBackendMemory = "memory"
	StoreBackendPebble = "pebble"
	StoreBackendSQLite = "sqlite"
)

// Config is the YAML file form of the manager and codec settings.
//
//	master_key_hex: "<64 hex chars>"
//	pbkdf2_iterations: 600000
//	default_rotation_days: 30
//	ope:
//	  plaintext_bits: 32
//	  ciphertext_bits: 64
//	blind_index:
//	  output_length: 16
//	  case_sensitive: false
//	  unicode_normalize: NFKC
//	searchable:
//	  compression_threshold: 1024
//	  compression_disabled: false
//	store:
//	  backend: pebble
//	  path: /var/lib/encryptedir
type Config struct {
	MasterKeyHex        string           `yaml:"master_key_hex"`
	PBKDF2Iterations    int              `yaml:"pbkdf2_iterations"`
	DefaultRotationDays int              `yaml:"default_rotation_days"`
	OPE                 OPEConfig        `yaml:"ope"`
	BlindIndex          BlindIndexFile   `yaml:"blind_index"`
	Searchable          SearchableConfig `yaml:"searchable"`
	Store               StoreConfig      `yaml:"store"`
}

type OPEConfig struct {
	PlaintextBits  int `yaml:"plaintext_bits"`
	CiphertextBits int `yaml:"ciphertext_bits"`
}

// BlindIndexFile holds blind index defaults applied to every field.
type BlindIndexFile struct {
	OutputLength  int  `yaml:"output_length"`
	CaseSensitive bool `yaml:"case_sensitive"`
	// nil means NFKC; an empty string disables normalization.
	UnicodeNormalize *string `yaml:"unicode_normalize"`
}

type SearchableConfig struct {
	CompressionThreshold int  `yaml:"compression_threshold"`
	CompressionDisabled  bool `yaml:"compression_disabled"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the configuration used when a field is absent from the file.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("encryptedir: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML, fills defaults and validates the result.
// Unknown fields are rejected so typos do not silently fall back to defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, invalid(ErrInvalidConfig, "parse config: %v", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.PBKDF2Iterations == 0 {
		c.PBKDF2Iterations = MinPBKDF2Iterations
	}
	if c.DefaultRotationDays == 0 {
		c.DefaultRotationDays = int(DefaultRotationPeriod / (24 * time.Hour))
	}
	if c.OPE.PlaintextBits == 0 {
		c.OPE.PlaintextBits = defaultPlaintextBits
	}
	if c.OPE.CiphertextBits == 0 {
		c.OPE.CiphertextBits = defaultCiphertextBits
	}
	if c.BlindIndex.OutputLength == 0 {
		c.BlindIndex.OutputLength = defaultIndexLength
	}
	if c.BlindIndex.UnicodeNormalize == nil {
		form := FormNFKC
		c.BlindIndex.UnicodeNormalize = &form
	}
	if c.Searchable.CompressionThreshold == 0 {
		c.Searchable.CompressionThreshold = defaultCompressionThreshold
	}
	if c.Store.Backend == "" {
		c.Store.Backend = StoreBackendMemory
	}
}

// Validate checks every field. Codec settings are checked by building a throwaway codec
// config, so the rules match the constructors exactly.
func (c *Config) Validate() error {
	if c.MasterKeyHex != "" {
		key, err := hex.DecodeString(c.MasterKeyHex)
		if err != nil {
			return invalid(ErrInvalidConfig, "master_key_hex is not hex")
		}
		n := len(key)
		wipe(key)
		if n != masterKeySize {
			return invalid(ErrInvalidKeySize, "master_key_hex must decode to 32 bytes, got %d", n)
		}
	}
	if c.PBKDF2Iterations < MinPBKDF2Iterations {
		return invalid(ErrInvalidConfig, "pbkdf2_iterations must be at least %d, got %d", MinPBKDF2Iterations, c.PBKDF2Iterations)
	}
	if c.DefaultRotationDays < 0 {
		return invalid(ErrInvalidConfig, "default_rotation_days must not be negative, got %d", c.DefaultRotationDays)
	}
	if err := validateOPEBits(c.OPE.PlaintextBits, c.OPE.CiphertextBits); err != nil {
		return err
	}
	if err := c.BlindIndexConfig("config").validate(); err != nil {
		return err
	}
	if c.Searchable.CompressionThreshold < 0 {
		return invalid(ErrInvalidConfig, "compression_threshold must be positive, got %d", c.Searchable.CompressionThreshold)
	}
	switch c.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendPebble, StoreBackendSQLite:
		if c.Store.Path == "" {
			return invalid(ErrInvalidConfig, "store.path is required for the %s backend", c.Store.Backend)
		}
	default:
		return invalid(ErrInvalidConfig, "unknown store.backend %q", c.Store.Backend)
	}
	return nil
}

// ManagerOptions converts the file settings into Manager options. The store is not
// included; build it with storeconfig.OpenStore and add WithStore.
func (c *Config) ManagerOptions() ([]ManagerOption, error) {
	opts := []ManagerOption{
		WithPBKDF2Iterations(c.PBKDF2Iterations),
		WithDefaultRotationPeriod(time.Duration(c.DefaultRotationDays) * 24 * time.Hour),
	}
	if c.MasterKeyHex != "" {
		key, err := hex.DecodeString(c.MasterKeyHex)
		if err != nil {
			return nil, invalid(ErrInvalidConfig, "master_key_hex is not hex")
		}
		opts = append(opts, WithMasterKey(key))
		wipe(key)
	}
	return opts, nil
}

// OrderPreservingOptions returns the ope section as codec options.
func (c *Config) OrderPreservingOptions() []OPEOption {
	return []OPEOption{
		WithPlaintextBits(c.OPE.PlaintextBits),
		WithCiphertextBits(c.OPE.CiphertextBits),
	}
}

// SearchableOptions returns the searchable section as codec options.
func (c *Config) SearchableOptions() []SearchableOption {
	opts := []SearchableOption{WithCompressionThreshold(c.Searchable.CompressionThreshold)}
	if c.Searchable.CompressionDisabled {
		opts = append(opts, WithCompressionDisabled())
	}
	return opts
}

// BlindIndexConfig returns the blind_index defaults applied to fieldName.
func (c *Config) BlindIndexConfig(fieldName string) BlindIndexConfig {
	cfg := NewBlindIndexConfig(fieldName)
	cfg.OutputLength = c.BlindIndex.OutputLength
	cfg.CaseSensitive = c.BlindIndex.CaseSensitive
	if c.BlindIndex.UnicodeNormalize != nil {
		cfg.UnicodeNormalize = *c.BlindIndex.UnicodeNormalize
	}
	return cfg
}
