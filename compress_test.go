package encryptedir

import (
	"bytes"
	"crypto/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// sealInner frames an arbitrary GCM plaintext the way EncryptDocument does.
func sealInner(t *testing.T, s *Searchable, inner []byte) []byte {
	t.Helper()
	nonce := make([]byte, gcmNonceSize)
	_, err := rand.Read(nonce)
	require.NoError(t, err)
	return frameDocument(nonce, s.aead.Seal(nil, nonce, inner, nil))
}

// openInner returns the flag||body plaintext of a document frame.
func openInner(t *testing.T, s *Searchable, frame []byte) []byte {
	t.Helper()
	nonce, sealed, err := parseDocument(frame)
	require.NoError(t, err)
	inner, err := s.aead.Open(nil, nonce, sealed, nil)
	require.NoError(t, err)
	return inner
}

func TestDocumentBody_ThresholdEdges(t *testing.T) {
	s := newTestSearchable(t)

	tests := []struct {
		name string
		size int
		flag byte
	}{
		{"below threshold", defaultCompressionThreshold - 1, flagNoCompression},
		{"at threshold", defaultCompressionThreshold, flagZstd},
		{"above threshold", defaultCompressionThreshold + 1, flagZstd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := bytes.Repeat([]byte("a"), tt.size)
			enc, err := s.EncryptDocument(doc, []string{})
			require.NoError(t, err)

			inner := openInner(t, s, enc.Ciphertext)
			require.Equal(t, tt.flag, inner[0])
			if tt.flag == flagNoCompression {
				require.Equal(t, doc, inner[1:])
			} else {
				require.Less(t, len(inner)-1, tt.size)
			}

			got, err := s.DecryptDocument(enc.Ciphertext)
			require.NoError(t, err)
			require.Equal(t, doc, got)
		})
	}
}

func TestDocumentBody_CustomThreshold(t *testing.T) {
	s := newTestSearchable(t, WithCompressionThreshold(64))
	doc := []byte(strings.Repeat("wire ", 13)) // 65 bytes

	enc, err := s.EncryptDocument(doc, nil)
	require.NoError(t, err)
	require.Equal(t, flagZstd, openInner(t, s, enc.Ciphertext)[0])
}

func TestDocumentBody_DisabledStaysRaw(t *testing.T) {
	s := newTestSearchable(t, WithCompressionDisabled())
	doc := []byte(strings.Repeat("quarterly statement ", 200))

	enc, err := s.EncryptDocument(doc, nil)
	require.NoError(t, err)
	inner := openInner(t, s, enc.Ciphertext)
	require.Equal(t, flagNoCompression, inner[0])
	require.Equal(t, doc, inner[1:])
}

func TestDocumentBody_InsufficientSavingsStaysRaw(t *testing.T) {
	s := newTestSearchable(t)
	doc := make([]byte, 2048)
	_, err := rand.Read(doc)
	require.NoError(t, err)

	enc, err := s.EncryptDocument(doc, []string{})
	require.NoError(t, err)
	require.Equal(t, flagNoCompression, openInner(t, s, enc.Ciphertext)[0])
}

func TestDocumentBody_FlagIsHonored(t *testing.T) {
	s := newTestSearchable(t)
	doc := []byte(strings.Repeat("ledger entry ", 200))

	enc, err := s.EncryptDocument(doc, []string{})
	require.NoError(t, err)
	inner := openInner(t, s, enc.Ciphertext)
	require.Equal(t, flagZstd, inner[0])

	// A compressed body sealed as raw comes back as zstd bytes, not the document.
	relabeled := append([]byte{flagNoCompression}, inner[1:]...)
	got, err := s.DecryptDocument(sealInner(t, s, relabeled))
	require.NoError(t, err)
	require.NotEqual(t, doc, got)
	require.Equal(t, inner[1:], got)
}

func TestDocumentBody_BadFlagOrBody(t *testing.T) {
	s := newTestSearchable(t)

	tests := []struct {
		name  string
		inner []byte
		err   error
	}{
		{"empty plaintext", []byte{}, ErrInvalidFormat},
		{"unknown flag", []byte{0x7f, 'x'}, ErrInvalidFormat},
		{"raw body marked zstd", append([]byte{flagZstd}, "not a zstd frame"...), ErrDecompressionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.DecryptDocument(sealInner(t, s, tt.inner))
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDocumentBody_FlagTamperFailsAuthentication(t *testing.T) {
	s := newTestSearchable(t)
	enc, err := s.EncryptDocumentString(strings.Repeat("merger draft ", 100))
	require.NoError(t, err)

	// The flag is the first ciphertext byte after nonce and tag.
	tampered := bytes.Clone(enc.Ciphertext)
	tampered[gcmNonceSize+gcmTagSize] ^= flagZstd
	_, err = s.DecryptDocument(tampered)
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestDocumentBody_SizeLimit(t *testing.T) {
	s := newTestSearchable(t)
	enc, _, err := documentCodecs()
	require.NoError(t, err)

	bomb := enc.EncodeAll(make([]byte, maxDocumentBody+1), nil)
	require.Less(t, len(bomb), 1<<20)

	_, err = s.DecryptDocument(sealInner(t, s, append([]byte{flagZstd}, bomb...)))
	require.ErrorIs(t, err, ErrDecompressionFailed)
}

func TestDocumentBody_Concurrent(t *testing.T) {
	s := newTestSearchable(t)
	doc := []byte(strings.Repeat("concurrent document body ", 100))

	errs := make(chan error, 64)
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			enc, err := s.EncryptDocument(doc, []string{})
			if err != nil {
				errs <- err
				return
			}
			got, err := s.DecryptDocument(enc.Ciphertext)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(doc, got) {
				errs <- ErrDecompressionFailed
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent document round trip: %v", err)
	}
}
