package encryptedir

import (
	"time"

	"go.uber.org/zap"
)

// ManagerOption is a functional option for configuring a Manager.
type ManagerOption func(*managerConfig)

// managerConfig holds manager configuration options.
type managerConfig struct {
	masterKey       []byte
	store           Store
	logger          *zap.Logger
	metrics         *Metrics
	now             func() time.Time
	iterations      int
	allowWeakKDF    bool
	auditFailures   bool
	defaultRotation time.Duration
}

func defaultManagerConfig() *managerConfig {
	return &managerConfig{
		logger:          zap.NewNop(),
		now:             time.Now,
		iterations:      MinPBKDF2Iterations,
		defaultRotation: DefaultRotationPeriod,
	}
}

// WithMasterKey sets the 32-byte master key that wraps every stored key.
// The key is copied when the option is created; the caller may zero the original right away.
// Without this option a random master key is generated.
func WithMasterKey(masterKey []byte) ManagerOption {
	key := cloneBytes(masterKey)
	return func(c *managerConfig) {
		c.masterKey = cloneBytes(key)
	}
}

// WithStore sets the storage backend. The default keeps all state in memory.
func WithStore(store Store) ManagerOption {
	return func(c *managerConfig) {
		c.store = store
	}
}

// WithLogger sets the structured logger. Key material and passwords are never logged.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(c *managerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records key operations on m. See NewMetrics.
func WithMetrics(m *Metrics) ManagerOption {
	return func(c *managerConfig) {
		c.metrics = m
	}
}

// WithClock overrides time.Now for timestamps, expiry and rotation checks.
func WithClock(now func() time.Time) ManagerOption {
	return func(c *managerConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithPBKDF2Iterations sets the export/import password KDF cost.
// Values below MinPBKDF2Iterations are rejected by NewManager.
func WithPBKDF2Iterations(n int) ManagerOption {
	return func(c *managerConfig) {
		c.iterations = n
	}
}

// WithDefaultRotationPeriod sets the period used when CreateKey is given a non-positive one.
func WithDefaultRotationPeriod(d time.Duration) ManagerOption {
	return func(c *managerConfig) {
		c.defaultRotation = d
	}
}

// WithFailureAuditing records rejected GetKey calls (unknown, inactive, expired) in the
// audit log with Success=false. By default failures are only logged and counted.
func WithFailureAuditing() ManagerOption {
	return func(c *managerConfig) {
		c.auditFailures = true
	}
}

// withWeakKDFForTesting lifts the PBKDF2 floor so tests do not spend seconds per export.
func withWeakKDFForTesting(iterations int) ManagerOption {
	return func(c *managerConfig) {
		c.iterations = iterations
		c.allowWeakKDF = true
	}
}

// keyOptions holds the per-key settings a caller may choose at creation.
type keyOptions struct {
	expiresAt *time.Time
}

// KeyOption configures a single CreateKey call.
type KeyOption func(*keyOptions)

// WithExpiresAt sets an absolute expiry. GetKey refuses the key from t on.
func WithExpiresAt(t time.Time) KeyOption {
	return func(o *keyOptions) {
		o.expiresAt = &t
	}
}

// SearchableOption configures a Searchable codec.
type SearchableOption func(*Searchable)

// WithCompressionThreshold sets the minimum document size in bytes before compression is attempted.
// Default is 1024 (1KB). Must be > 0.
func WithCompressionThreshold(bytes int) SearchableOption {
	return func(s *Searchable) {
		s.compressionThreshold = bytes
	}
}

// WithCompressionDisabled stores document bodies uncompressed.
func WithCompressionDisabled() SearchableOption {
	return func(s *Searchable) {
		s.compressionDisabled = true
	}
}
