package encryptedir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealIndexed_OpenIndexed(t *testing.T) {
	s := newTestSearchable(t)
	g := newTestGenerator(t, "tenant-a")

	tests := []struct {
		name  string
		value string
	}{
		{"ssn", "123-45-6789"},
		{"unicode", "こんにちは"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := SealIndexed(s, g, "blind_index_v1", tt.value, SSNIndexConfig())
			require.NoError(t, err)
			require.Equal(t, "blind_index_v1", v.KeyID)
			require.NotEmpty(t, v.BlindIndex)

			got, err := OpenIndexed(s, v)
			require.NoError(t, err)
			require.Equal(t, tt.value, got)
		})
	}
}

func TestSealIndexed_NormalizesOnlyTheIndex(t *testing.T) {
	s := newTestSearchable(t)
	g := newTestGenerator(t, "tenant-a")

	a, err := SealIndexed(s, g, "k1", "Alice@Example.com", EmailIndexConfig())
	require.NoError(t, err)
	b, err := SealIndexed(s, g, "k1", " alice@example.com ", EmailIndexConfig())
	require.NoError(t, err)

	require.Equal(t, a.BlindIndex, b.BlindIndex)
	require.NotEqual(t, a.Ciphertext, b.Ciphertext)

	got, err := OpenIndexed(s, a)
	require.NoError(t, err)
	require.Equal(t, "Alice@Example.com", got)
}

func TestSealIndexed_InvalidConfig(t *testing.T) {
	s := newTestSearchable(t)
	g := newTestGenerator(t, "tenant-a")

	_, err := SealIndexed(s, g, "k1", "value", BlindIndexConfig{FieldName: "f"})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEncryptJSON_DecryptJSON(t *testing.T) {
	type Customer struct {
		Name    string   `json:"name"`
		Balance float64  `json:"balance"`
		Tags    []string `json:"tags"`
	}

	s := newTestSearchable(t)
	in := Customer{Name: "Acme Holdings", Balance: 1250.75, Tags: []string{"priority"}}

	enc, err := EncryptJSON(s, in, []string{"acme", "priority"})
	require.NoError(t, err)
	require.True(t, s.Search(s.QueryToken("priority"), enc.TokenSet()))

	out, err := DecryptJSON[Customer](s, enc.Ciphertext)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestEncryptJSON_Errors(t *testing.T) {
	s := newTestSearchable(t)

	_, err := EncryptJSON(s, make(chan int), nil)
	require.Error(t, err)

	enc, err := s.EncryptDocumentString("not json")
	require.NoError(t, err)
	_, err = DecryptJSON[map[string]any](s, enc.Ciphertext)
	require.Error(t, err)

	other, err := NewSearchableFromKey(testKey("other"))
	require.NoError(t, err)
	good, err := EncryptJSON(s, map[string]int{"a": 1}, nil)
	require.NoError(t, err)
	_, err = DecryptJSON[map[string]int](other, good.Ciphertext)
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestDeterministic_StringAndInt64(t *testing.T) {
	d := newTestDeterministic(t, "det")

	for _, s := range []string{"Acme Corp", "", "日本語"} {
		ct, err := d.EncryptString(s)
		require.NoError(t, err)
		got, err := d.DecryptString(ct)
		require.NoError(t, err)
		require.Equal(t, s, got)
	}

	for _, v := range []int64{0, -1, 42, 1 << 40, -1 << 62} {
		ct, err := d.EncryptInt64(v)
		require.NoError(t, err)
		back, err := d.DecryptInt64(ct)
		require.NoError(t, err)
		require.Equal(t, v, back)
	}

	a, err := d.EncryptInt64(7)
	require.NoError(t, err)
	b, err := d.EncryptInt64(7)
	require.NoError(t, err)
	require.Equal(t, a, b, "equal values produce equal ciphertexts")

	str, err := d.EncryptString("too long for an int64")
	require.NoError(t, err)
	_, err = d.DecryptInt64(str)
	require.ErrorIs(t, err, ErrInvalidFormat)
}
