package encryptedir_test

import (
	"fmt"

	"github.com/ai8future/encryptedir"
)

func Example() {
	// Without WithMasterKey a random master key is generated (in production, load it from secure storage)
	mgr, err := encryptedir.NewManager()
	if err != nil {
		panic(err)
	}
	defer mgr.Close()

	keyID, err := mgr.CreateKey(encryptedir.KeyTypeSearchable, 32, 0, "customer notes")
	if err != nil {
		panic(err)
	}

	docs, err := encryptedir.NewSearchableFromManager(mgr, keyID)
	if err != nil {
		panic(err)
	}

	enc, _ := docs.EncryptDocumentString("Confidential financial report for Q3")
	tokens := enc.TokenSet()

	fmt.Println("financial:", docs.Search(docs.QueryToken("financial"), tokens))
	fmt.Println("unicorn:", docs.Search(docs.QueryToken("unicorn"), tokens))

	plaintext, _ := docs.DecryptDocument(enc.Ciphertext)
	fmt.Println(string(plaintext))

	// Output:
	// financial: true
	// unicorn: false
	// Confidential financial report for Q3
}

func Example_blindIndex() {
	masterKey := []byte("01234567890123456789012345678901")

	gen, _ := encryptedir.NewBlindIndexGenerator("tenant-a", masterKey)

	// SSN normalization makes formatting irrelevant
	a, _ := gen.CreateIndex("123-45-6789", encryptedir.SSNIndexConfig())
	b, _ := gen.CreateIndex("123 45 6789", encryptedir.SSNIndexConfig())
	fmt.Println("Same index:", a == b)

	// Another tenant never correlates
	other, _ := encryptedir.NewBlindIndexGenerator("tenant-b", masterKey)
	c, _ := other.CreateIndex("123-45-6789", encryptedir.SSNIndexConfig())
	fmt.Println("Cross-tenant match:", a == c)

	cond, _ := encryptedir.BlindIndexCondition("ssn", "123456789", encryptedir.SSNIndexConfig(),
		map[string]*encryptedir.BlindIndexGenerator{"v1": gen}, 1)
	fmt.Println("SQL:", cond.SQL)

	// Output:
	// Same index: true
	// Cross-tenant match: false
	// SQL: (key_id = $1 AND ssn_idx = $2)
}

func Example_amountRange() {
	key := []byte("01234567890123456789012345678901")
	ope, _ := encryptedir.NewOrderPreserving(key)

	var stored []uint64
	for _, amount := range []float64{50, 100, 500, 1000, 5000} {
		c, _ := ope.EncryptAmount(amount)
		stored = append(stored, c)
	}

	lo, _ := ope.EncryptAmount(100)
	hi, _ := ope.EncryptAmount(1000)
	fmt.Println("In range:", len(ope.RangeQuery(stored, &lo, &hi)))

	// Output:
	// In range: 3
}

func Example_keyRotation() {
	mgr, _ := encryptedir.NewManager()
	defer mgr.Close()

	oldID, _ := mgr.CreateKey(encryptedir.KeyTypeDeterministic, encryptedir.DeterministicKeySize, 0, "")
	oldCipher, _ := encryptedir.NewDeterministicFromManager(mgr, oldID)
	ciphertext, _ := oldCipher.EncryptString("alice@example.com")

	// Rotate: the successor is active, the old key is retired
	newID, _ := mgr.RotateKey(oldID)
	newCipher, _ := encryptedir.NewDeterministicFromManager(mgr, newID)

	rotated, _ := encryptedir.RotateDeterministic(oldCipher, newCipher, ciphertext, nil)
	value, _ := newCipher.DecryptString(rotated)
	fmt.Println("Rotated value:", value)

	_, err := mgr.GetKey(oldID)
	fmt.Println("Old key inactive:", encryptedir.IsLifecycle(err))

	// Output:
	// Rotated value: alice@example.com
	// Old key inactive: true
}

func Example_jsonEncryption() {
	docs, _ := encryptedir.NewSearchableFromKey([]byte("01234567890123456789012345678901"))

	type Metadata struct {
		Tags   []string `json:"tags"`
		Source string   `json:"source"`
	}

	original := Metadata{
		Tags:   []string{"important", "vip"},
		Source: "api",
	}

	enc, _ := encryptedir.EncryptJSON(docs, original, []string{"vip"})

	decrypted, _ := encryptedir.DecryptJSON[Metadata](docs, enc.Ciphertext)

	fmt.Println("Tags:", decrypted.Tags)
	fmt.Println("Source:", decrypted.Source)
	fmt.Println("Tagged vip:", docs.Search(docs.QueryToken("vip"), enc.TokenSet()))

	// Output:
	// Tags: [important vip]
	// Source: api
	// Tagged vip: true
}
