package encryptedir

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	defaultCompressionThreshold = 1024

	// A compressed body must be at least this much smaller to be kept.
	minCompressionSavings = 0.10

	// maxDocumentBody caps an expanded document body at 64MB.
	maxDocumentBody = 64 * 1024 * 1024
)

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

// documentCodecs returns the shared zstd encoder and decoder. Both are safe for concurrent use.
func documentCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDocumentBody))
		if zstdErr != nil {
			zstdEncoder.Close()
			zstdEncoder = nil
		}
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// packBody builds the GCM plaintext of a document: flag||body.
// The body is zstd-compressed when doc reaches the threshold and compression saves
// at least 10%; otherwise doc is stored as is.
func (s *Searchable) packBody(doc []byte) []byte {
	flag, body := flagNoCompression, doc
	if !s.compressionDisabled && len(doc) >= s.compressionThreshold {
		if enc, _, err := documentCodecs(); err == nil {
			compressed := enc.EncodeAll(doc, nil)
			if saved := float64(len(doc)-len(compressed)) / float64(len(doc)); saved >= minCompressionSavings {
				flag, body = flagZstd, compressed
			}
		}
	}

	inner := make([]byte, 0, 1+len(body))
	inner = append(inner, flag)
	return append(inner, body...)
}

// unpackBody reverses packBody. Unknown flags are ErrInvalidFormat; corrupt or
// oversized zstd bodies are ErrDecompressionFailed.
func unpackBody(inner []byte) ([]byte, error) {
	if len(inner) == 0 {
		return nil, invalid(ErrInvalidFormat, "document body missing compression flag")
	}
	flag, body := inner[0], inner[1:]
	switch flag {
	case flagNoCompression:
		return body, nil
	case flagZstd:
		_, dec, err := documentCodecs()
		if err != nil {
			return nil, err
		}
		doc, err := dec.DecodeAll(body, nil)
		if err != nil || len(doc) > maxDocumentBody {
			return nil, ErrDecompressionFailed
		}
		return doc, nil
	default:
		return nil, invalid(ErrInvalidFormat, "unknown compression flag 0x%02x", flag)
	}
}
