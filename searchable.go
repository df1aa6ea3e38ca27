package encryptedir

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"
	"unicode/utf8"
)

// minKeywordLength is the shortest token kept as a keyword; shorter words are dropped.
const minKeywordLength = 3

const keywordPunctuation = `.,!?;:"()[]{}`

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {},
}

// EncryptedDocument is a sealed document plus the search tokens of its keywords.
type EncryptedDocument struct {
	Ciphertext []byte   // nonce||tag||ciphertext
	Tokens     []string // sorted, unique keyword tokens
}

// TokenSet returns the document's tokens as a set for Search.
func (d *EncryptedDocument) TokenSet() map[string]struct{} {
	return NewTokenSet(d.Tokens)
}

// Searchable encrypts documents with AES-256-GCM and produces HMAC keyword tokens that
// support keyword search without exposing plaintext. It is safe for concurrent use.
type Searchable struct {
	aead                 cipher.AEAD
	searchKey            []byte
	compressionThreshold int
	compressionDisabled  bool
}

// NewSearchable creates a searchable codec from separate 32-byte encryption and search keys.
func NewSearchable(encryptionKey, searchKey []byte, opts ...SearchableOption) (*Searchable, error) {
	if len(encryptionKey) != masterKeySize {
		return nil, invalid(ErrInvalidKeySize, "encryption key must be 32 bytes, got %d", len(encryptionKey))
	}
	if len(searchKey) != masterKeySize {
		return nil, invalid(ErrInvalidKeySize, "search key must be 32 bytes, got %d", len(searchKey))
	}

	aead, err := newGCM(encryptionKey)
	if err != nil {
		return nil, err
	}

	s := &Searchable{
		aead:                 aead,
		searchKey:            cloneBytes(searchKey),
		compressionThreshold: defaultCompressionThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.compressionThreshold <= 0 {
		return nil, invalid(ErrInvalidConfig, "compression threshold must be positive, got %d", s.compressionThreshold)
	}
	return s, nil
}

// NewSearchableFromKey derives the encryption and search keys from one 32-byte key with HKDF.
func NewSearchableFromKey(key []byte, opts ...SearchableOption) (*Searchable, error) {
	keys, err := deriveSearchKeys(key)
	if err != nil {
		return nil, err
	}
	defer func() {
		wipe(keys.encryption[:])
		wipe(keys.search[:])
	}()
	return NewSearchable(keys.encryption[:], keys.search[:], opts...)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, invalid(ErrInvalidKeySize, "aes: %v", err)
	}
	return cipher.NewGCM(block)
}

// ExtractKeywords returns the sorted, unique keywords of text: lowercased whitespace-separated
// words longer than two characters that are not stop words, with surrounding punctuation removed.
func ExtractKeywords(text string) []string {
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if utf8.RuneCountInString(word) < minKeywordLength {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		kw := strings.Trim(word, keywordPunctuation)
		if kw == "" {
			continue
		}
		seen[kw] = struct{}{}
	}
	return sortedMapKeys(seen)
}

// Token returns base64(HMAC-SHA256(searchKey, lowercase(keyword))).
func (s *Searchable) Token(keyword string) string {
	mac := hmacSHA256(s.searchKey, []byte(strings.ToLower(keyword)))
	return base64.StdEncoding.EncodeToString(mac)
}

// QueryToken returns the token to search for keyword. It equals Token(keyword).
func (s *Searchable) QueryToken(keyword string) string {
	return s.Token(keyword)
}

// EncryptDocument seals doc under a fresh random nonce and tokenizes its keywords.
// If keywords is nil they are extracted from doc with ExtractKeywords.
func (s *Searchable) EncryptDocument(doc []byte, keywords []string) (*EncryptedDocument, error) {
	if keywords == nil {
		keywords = ExtractKeywords(string(doc))
	}

	inner := s.packBody(doc)

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	sealed := s.aead.Seal(nil, nonce, inner, nil)

	tokens := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		tokens[s.Token(kw)] = struct{}{}
	}

	return &EncryptedDocument{
		Ciphertext: frameDocument(nonce, sealed),
		Tokens:     sortedMapKeys(tokens),
	}, nil
}

// EncryptDocumentString is EncryptDocument for text with automatic keyword extraction.
func (s *Searchable) EncryptDocumentString(doc string) (*EncryptedDocument, error) {
	return s.EncryptDocument([]byte(doc), nil)
}

// DecryptDocument opens a nonce||tag||ciphertext frame.
// A tag mismatch returns an *AuthenticationError, never partial plaintext.
func (s *Searchable) DecryptDocument(data []byte) ([]byte, error) {
	nonce, sealed, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	inner, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, &AuthenticationError{Op: "decrypt document"}
	}
	return unpackBody(inner)
}

// Search reports whether queryToken is among the document's tokens.
func (s *Searchable) Search(queryToken string, documentTokens map[string]struct{}) bool {
	_, ok := documentTokens[queryToken]
	return ok
}

// EncryptDocumentBase64 seals doc and returns the frame as base64 together with the sorted tokens.
func (s *Searchable) EncryptDocumentBase64(doc []byte, keywords []string) (string, []string, error) {
	enc, err := s.EncryptDocument(doc, keywords)
	if err != nil {
		return "", nil, err
	}
	return base64.StdEncoding.EncodeToString(enc.Ciphertext), enc.Tokens, nil
}

// DecryptDocumentBase64 decodes and opens a frame produced by EncryptDocumentBase64.
func (s *Searchable) DecryptDocumentBase64(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, invalid(ErrInvalidFormat, "document is not base64")
	}
	return s.DecryptDocument(raw)
}

// NewTokenSet builds a set from a token list.
func NewTokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

