package encryptedir

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"math/big"
	"strconv"
	"sync"
)

const (
	defaultPlaintextBits   = 32
	defaultCiphertextBits  = 64
	defaultAmountPrecision = 2

	// noiseDivisor bounds the PRF noise to a tenth of the gap between adjacent plaintexts.
	noiseDivisor = 10
)

// OrderPreserving maps integers in [0, 2^plaintextBits) to integers in [0, 2^ciphertextBits)
// so that larger plaintexts map to larger (or equal) ciphertexts.
//
// The mapping leaks the total order and approximate magnitude of every value. It is one-way:
// ciphertexts can be compared and range-filtered but never mapped back.
//
// Mappings are memoized per instance. It is safe for concurrent use.
type OrderPreserving struct {
	key            []byte
	plaintextBits  int
	ciphertextBits int
	plaintextMax   uint64
	ciphertextMax  uint64
	noiseRange     uint64

	mu    sync.Mutex
	cache map[uint64]uint64
}

// OPEOption configures an OrderPreserving codec.
type OPEOption func(*OrderPreserving)

// WithPlaintextBits sets the plaintext domain width (default 32).
func WithPlaintextBits(bits int) OPEOption {
	return func(o *OrderPreserving) {
		o.plaintextBits = bits
	}
}

// WithCiphertextBits sets the ciphertext range width (default 64).
func WithCiphertextBits(bits int) OPEOption {
	return func(o *OrderPreserving) {
		o.ciphertextBits = bits
	}
}

// NewOrderPreserving creates an order-preserving codec. The key must be 32 bytes.
func NewOrderPreserving(key []byte, opts ...OPEOption) (*OrderPreserving, error) {
	if len(key) != masterKeySize {
		return nil, invalid(ErrInvalidKeySize, "order-preserving key must be 32 bytes, got %d", len(key))
	}
	o := &OrderPreserving{
		key:            cloneBytes(key),
		plaintextBits:  defaultPlaintextBits,
		ciphertextBits: defaultCiphertextBits,
		cache:          make(map[uint64]uint64),
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := validateOPEBits(o.plaintextBits, o.ciphertextBits); err != nil {
		return nil, err
	}

	o.plaintextMax = maxForBits(o.plaintextBits)
	o.ciphertextMax = maxForBits(o.ciphertextBits)

	// noise_range = max(1, ciphertext_max / (plaintext_max * 10)); the product can exceed 64 bits.
	denom := new(big.Int).Mul(new(big.Int).SetUint64(o.plaintextMax), big.NewInt(noiseDivisor))
	nr := new(big.Int).Quo(new(big.Int).SetUint64(o.ciphertextMax), denom)
	o.noiseRange = max(1, nr.Uint64())

	return o, nil
}

func validateOPEBits(plaintextBits, ciphertextBits int) error {
	if plaintextBits < 1 || plaintextBits > 63 {
		return invalid(ErrInvalidConfig, "plaintext bits must be 1-63, got %d", plaintextBits)
	}
	if ciphertextBits < 1 || ciphertextBits > 64 {
		return invalid(ErrInvalidConfig, "ciphertext bits must be 1-64, got %d", ciphertextBits)
	}
	if plaintextBits >= ciphertextBits {
		return invalid(ErrInvalidConfig, "plaintext bits (%d) must be below ciphertext bits (%d)", plaintextBits, ciphertextBits)
	}
	return nil
}

func maxForBits(bits int) uint64 {
	if bits == 64 {
		return math.MaxUint64
	}
	return 1<<uint(bits) - 1
}

// PlaintextMax returns the largest accepted plaintext.
func (o *OrderPreserving) PlaintextMax() uint64 { return o.plaintextMax }

// CiphertextMax returns the largest possible ciphertext.
func (o *OrderPreserving) CiphertextMax() uint64 { return o.ciphertextMax }

// EncryptInt maps plaintext to its order-preserving ciphertext.
func (o *OrderPreserving) EncryptInt(plaintext uint64) (uint64, error) {
	if plaintext > o.plaintextMax {
		return 0, &RangeError{Value: strconv.FormatUint(plaintext, 10), Max: o.plaintextMax}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if c, ok := o.cache[plaintext]; ok {
		return c, nil
	}
	c := o.mapValue(plaintext)
	o.cache[plaintext] = c
	return c, nil
}

// mapValue computes min(floor(p*cmax/pmax) + PRF(p) mod noiseRange, cmax).
func (o *OrderPreserving) mapValue(p uint64) uint64 {
	base := new(big.Int).Mul(new(big.Int).SetUint64(p), new(big.Int).SetUint64(o.ciphertextMax))
	base.Quo(base, new(big.Int).SetUint64(o.plaintextMax))

	var in [8]byte
	binary.BigEndian.PutUint64(in[:], p)
	prf := binary.BigEndian.Uint64(hmacSHA256(o.key, in[:])[:8])
	noise := prf % o.noiseRange

	base.Add(base, new(big.Int).SetUint64(noise))
	if !base.IsUint64() || base.Uint64() > o.ciphertextMax {
		return o.ciphertextMax
	}
	return base.Uint64()
}

// EncryptFloat converts value to fixed point with the given number of decimal places
// (truncating) and encrypts it. Negative values and values past the domain are rejected.
func (o *OrderPreserving) EncryptFloat(value float64, precision int) (uint64, error) {
	if precision < 0 {
		return 0, invalid(ErrInvalidConfig, "precision must not be negative, got %d", precision)
	}
	scaled := value * math.Pow10(precision)
	if math.IsNaN(scaled) || scaled < 0 || scaled >= float64(o.plaintextMax)+1 {
		return 0, &RangeError{Value: strconv.FormatFloat(value, 'f', -1, 64), Max: o.plaintextMax}
	}
	return o.EncryptInt(uint64(scaled))
}

// EncryptAmount encrypts a monetary amount with two decimal places.
func (o *OrderPreserving) EncryptAmount(amount float64) (uint64, error) {
	return o.EncryptFloat(amount, defaultAmountPrecision)
}

// Compare returns -1, 0 or 1 as a is less than, equal to or greater than b.
func (o *OrderPreserving) Compare(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// RangeQuery returns the values within [min, max], preserving input order.
// A nil bound is unbounded on that side.
func (o *OrderPreserving) RangeQuery(values []uint64, minVal, maxVal *uint64) []uint64 {
	result := make([]uint64, 0, len(values))
	for _, v := range values {
		if minVal != nil && v < *minVal {
			continue
		}
		if maxVal != nil && v > *maxVal {
			continue
		}
		result = append(result, v)
	}
	return result
}

// EncryptIntToBytes encrypts plaintext and returns the ciphertext as 8 big-endian bytes.
func (o *OrderPreserving) EncryptIntToBytes(plaintext uint64) ([]byte, error) {
	c, err := o.EncryptInt(plaintext)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, c)
	return out, nil
}

// EncryptIntToBase64 encrypts plaintext and returns base64 of its 8-byte encoding.
func (o *OrderPreserving) EncryptIntToBase64(plaintext uint64) (string, error) {
	b, err := o.EncryptIntToBytes(plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeCiphertext reads an 8-byte big-endian ciphertext. It does not recover the plaintext.
func DecodeCiphertext(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, invalid(ErrInvalidFormat, "order-preserving ciphertext must be 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// DecodeCiphertextBase64 reads a ciphertext produced by EncryptIntToBase64.
func DecodeCiphertextBase64(s string) (uint64, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return 0, invalid(ErrInvalidFormat, "order-preserving ciphertext is not base64")
	}
	return DecodeCiphertext(b)
}

// ClearCache drops every memoized mapping. Results are unchanged afterwards.
func (o *OrderPreserving) ClearCache() {
	o.mu.Lock()
	defer o.mu.Unlock()
	clear(o.cache)
}

// CacheLen returns the number of memoized mappings.
func (o *OrderPreserving) CacheLen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.cache)
}
