// Package encryptedir provides searchable field encryption for multi-tenant financial
// data, together with the key lifecycle manager that issues its keys.
//
// Sensitive values are indexed so they can be queried by equality, range or keyword
// without the database ever seeing plaintext.
//
// # Key Management
//
// A Manager owns a 32-byte master key. Every managed key is wrapped under it with
// AES-256-GCM before it reaches the Store, and every successful state change is
// committed together with its audit entry:
//
//	mgr, err := encryptedir.NewManager(encryptedir.WithMasterKey(masterKey))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Close()
//
//	keyID, err := mgr.CreateKey(encryptedir.KeyTypeBlindIndex, 32, 90*24*time.Hour, "customer SSN index")
//	newID, err := mgr.RotateKey(keyID) // keyID is now inactive
//
// Keys move from active to inactive through RotateKey or DeleteKey, and never back.
// An expiry blocks GetKey without changing the stored flag. ExportKeys and ImportKeys
// move the whole key set between managers in a password-sealed bundle
// (PBKDF2-HMAC-SHA256, at least 480,000 iterations).
//
// The default store is in memory. The pebblestore and gormstore packages persist to
// Pebble and SQL; storeconfig selects one from a YAML Config.
//
// # Blind Indexes (equality search)
//
// A BlindIndexGenerator derives a field key with HMAC-SHA256(master, tenant ":" field)
// and indexes normalized values with it. Equal values give equal indexes within one
// tenant and field only:
//
//	gen, err := encryptedir.NewBlindIndexGeneratorFromManager(mgr, keyID, "tenant-42")
//	idx, err := gen.CreateIndex("123-45-6789", encryptedir.SSNIndexConfig())
//	// SELECT ... WHERE ssn_idx = idx
//
// IMPORTANT: Use the same BlindIndexConfig for writing and for querying. A different
// normalizer or output length produces different indexes.
//
// # Order-Preserving Mapping (range search)
//
// OrderPreserving maps non-negative integers and fixed-precision amounts into a larger
// range so that plaintext order is ciphertext order. It leaks order and approximate
// magnitude and cannot be decrypted. Use it only where range queries are required.
//
//	ope, err := encryptedir.NewOrderPreservingFromManager(mgr, opeKeyID)
//	ct, err := ope.EncryptAmount(250.50)
//
// # Keyword Search
//
// Searchable encrypts documents with AES-256-GCM (zstd-compressed above 1KB when that
// saves at least 10%) and emits one HMAC token per keyword:
//
//	docs, err := encryptedir.NewSearchableFromManager(mgr, docKeyID)
//	enc, err := docs.EncryptDocumentString("Quarterly financial report")
//	docs.Search(docs.QueryToken("financial"), enc.TokenSet()) // true
//
// Documents are framed as nonce(12) || tag(16) || ciphertext.
//
// # Deterministic Encryption
//
// Deterministic wraps AES-SIV for values that must be both searchable by equality and
// recoverable.
//
// # Security Notes
//
//   - Blind indexes and tokens reveal equality; order-preserving values reveal order.
//   - Deleting a key is crypto-shredding: the record stays, marked inactive, and
//     GetKey never returns its bytes again. Callers that cached the bytes keep them.
//   - Key bytes, passwords and plaintext are never logged.
package encryptedir
