package encryptedir

// Searchable document format:
// [nonce:12][tag:16][ciphertext]
//
// The GCM plaintext is [flag:1][body], where the flag records whether the
// body was zstd-compressed.
//
// Flag byte values:
//   0x00 = no compression
//   0x01 = zstd compressed
//
// Key export bundle format:
// [salt:32][nonce:12][AES-256-GCM(JSON payload)]

const (
	flagNoCompression byte = 0x00
	flagZstd          byte = 0x01

	gcmNonceSize = 12
	gcmTagSize   = 16
)

// frameDocument converts Go's GCM output (ciphertext||tag) into nonce||tag||ciphertext.
func frameDocument(nonce, sealed []byte) []byte {
	split := len(sealed) - gcmTagSize
	result := make([]byte, 0, gcmNonceSize+len(sealed))
	result = append(result, nonce...)
	result = append(result, sealed[split:]...)
	result = append(result, sealed[:split]...)
	return result
}

// parseDocument splits nonce||tag||ciphertext and returns the nonce and the
// ciphertext||tag order expected by cipher.AEAD.Open.
func parseDocument(data []byte) (nonce, sealed []byte, err error) {
	if len(data) < gcmNonceSize+gcmTagSize {
		err = invalid(ErrInvalidFormat, "document frame is %d bytes, need at least %d", len(data), gcmNonceSize+gcmTagSize)
		return
	}
	nonce = data[:gcmNonceSize]
	tag := data[gcmNonceSize : gcmNonceSize+gcmTagSize]
	body := data[gcmNonceSize+gcmTagSize:]

	sealed = make([]byte, 0, len(body)+gcmTagSize)
	sealed = append(sealed, body...)
	sealed = append(sealed, tag...)
	return
}

// formatBundle assembles salt||nonce||ciphertext.
func formatBundle(salt, nonce, ciphertext []byte) []byte {
	result := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	result = append(result, salt...)
	result = append(result, nonce...)
	result = append(result, ciphertext...)
	return result
}

// parseBundle splits salt||nonce||ciphertext. The ciphertext must at least hold a GCM tag.
func parseBundle(data []byte) (salt, nonce, ciphertext []byte, err error) {
	if len(data) < saltSize+gcmNonceSize+gcmTagSize {
		err = invalid(ErrInvalidFormat, "key bundle is %d bytes, need at least %d", len(data), saltSize+gcmNonceSize+gcmTagSize)
		return
	}
	salt = data[:saltSize]
	nonce = data[saltSize : saltSize+gcmNonceSize]
	ciphertext = data[saltSize+gcmNonceSize:]
	return
}
