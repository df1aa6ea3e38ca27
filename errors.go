package encryptedir

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound indicates the requested key_id is unknown to the manager or store.
	ErrKeyNotFound = errors.New("encryptedir: key not found")

	// ErrKeyInactive indicates the key was rotated or deleted.
	ErrKeyInactive = errors.New("encryptedir: key is inactive")

	// ErrKeyExpired indicates the key's expiry time has passed.
	ErrKeyExpired = errors.New("encryptedir: key is expired")

	// ErrAuthentication indicates an AEAD tag did not verify (wrong key, wrong password or tampering).
	ErrAuthentication = errors.New("encryptedir: authentication failed")

	// ErrDecryptionFailed indicates a ciphertext could not be opened.
	ErrDecryptionFailed = errors.New("encryptedir: decryption failed")

	// ErrInvalidKeySize indicates key material of the wrong length.
	ErrInvalidKeySize = errors.New("encryptedir: invalid key size")

	// ErrInvalidKeyType indicates an empty key type.
	ErrInvalidKeyType = errors.New("encryptedir: invalid key type")

	// ErrInvalidConfig indicates an invalid codec or manager configuration.
	ErrInvalidConfig = errors.New("encryptedir: invalid configuration")

	// ErrInvalidFormat indicates a malformed bundle, frame or encoded value.
	ErrInvalidFormat = errors.New("encryptedir: invalid format")

	// ErrOutOfRange indicates a plaintext outside the order-preserving domain.
	ErrOutOfRange = errors.New("encryptedir: value out of range")

	// ErrDecompressionFailed indicates a zstd document body could not be expanded.
	ErrDecompressionFailed = errors.New("encryptedir: decompression failed")

	// ErrManagerClosed indicates the manager was used after Close().
	ErrManagerClosed = errors.New("encryptedir: manager is closed")
)

// ValidationError reports a bad argument or configuration detected at a call boundary.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Field)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error, format string, args ...any) error {
	return &ValidationError{Field: fmt.Sprintf(format, args...), Err: err}
}

// NotFoundError reports an unknown key_id.
type NotFoundError struct {
	KeyID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", ErrKeyNotFound, e.KeyID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrKeyNotFound }

// LifecycleReason says why a lifecycle check blocked access to a key.
type LifecycleReason int

const (
	LifecycleInactive LifecycleReason = iota + 1
	LifecycleExpired
)

func (r LifecycleReason) String() string {
	switch r {
	case LifecycleInactive:
		return "inactive"
	case LifecycleExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// LifecycleError reports a key whose state blocks retrieval.
type LifecycleError struct {
	KeyID  string
	Reason LifecycleReason
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("encryptedir: key %s is %s", e.KeyID, e.Reason)
}

func (e *LifecycleError) Is(target error) bool {
	switch target {
	case ErrKeyInactive:
		return e.Reason == LifecycleInactive
	case ErrKeyExpired:
		return e.Reason == LifecycleExpired
	}
	return false
}

// AuthenticationError reports an AEAD verification failure during Op.
// It matches both ErrAuthentication and ErrDecryptionFailed.
type AuthenticationError struct {
	Op string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrAuthentication, e.Op)
}

func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication || target == ErrDecryptionFailed
}

// RangeError reports a plaintext outside [0, Max].
type RangeError struct {
	Value string
	Max   uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%v: %s (max %d)", ErrOutOfRange, e.Value, e.Max)
}

func (e *RangeError) Unwrap() error { return ErrOutOfRange }

// IsNotFound returns true if err is or wraps ErrKeyNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrKeyNotFound) }

// IsLifecycle returns true if err reports an inactive or expired key.
func IsLifecycle(err error) bool {
	var le *LifecycleError
	return errors.As(err, &le)
}

// IsAuthentication returns true if err reports a failed AEAD verification.
func IsAuthentication(err error) bool { return errors.Is(err, ErrAuthentication) }
