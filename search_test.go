package encryptedir

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testVersions(t *testing.T, ids ...string) map[string]*BlindIndexGenerator {
	t.Helper()
	versions := make(map[string]*BlindIndexGenerator, len(ids))
	for _, id := range ids {
		g, err := NewBlindIndexGenerator("tenant-a", testKey(id))
		require.NoError(t, err)
		versions[id] = g
	}
	return versions
}

func TestBlindIndexCondition_SingleKey(t *testing.T) {
	versions := testVersions(t, "v1")

	cond, err := BlindIndexCondition("email", "test@example.com", EmailIndexConfig(), versions, 1)
	require.NoError(t, err)

	require.Equal(t, "(key_id = $1 AND email_idx = $2)", cond.SQL)
	require.Len(t, cond.Args, 2)
	require.Equal(t, "v1", cond.Args[0])

	want, err := versions["v1"].CreateIndex("test@example.com", EmailIndexConfig())
	require.NoError(t, err)
	require.Equal(t, want, cond.Args[1])
}

func TestBlindIndexCondition_MultipleKeys(t *testing.T) {
	versions := testVersions(t, "v2", "v1")

	cond, err := BlindIndexCondition("email", "test@example.com", EmailIndexConfig(), versions, 1)
	require.NoError(t, err)

	require.Equal(t, "(key_id = $1 AND email_idx = $2) OR (key_id = $3 AND email_idx = $4)", cond.SQL)
	require.Len(t, cond.Args, 4)
	require.Equal(t, "v1", cond.Args[0], "versions are emitted in key_id order")
	require.Equal(t, "v2", cond.Args[2])
	require.NotEqual(t, cond.Args[1], cond.Args[3])
}

func TestBlindIndexCondition_ParamOffset(t *testing.T) {
	versions := testVersions(t, "v1", "v2")

	cond, err := BlindIndexCondition("ssn", "123-45-6789", SSNIndexConfig(), versions, 5)
	require.NoError(t, err)
	require.Equal(t, "(key_id = $5 AND ssn_idx = $6) OR (key_id = $7 AND ssn_idx = $8)", cond.SQL)
}

func TestBlindIndexCondition_Normalized(t *testing.T) {
	versions := testVersions(t, "v1")

	a, err := BlindIndexCondition("email", "  ALICE@Example.COM  ", EmailIndexConfig(), versions, 1)
	require.NoError(t, err)
	b, err := BlindIndexCondition("email", "alice@example.com", EmailIndexConfig(), versions, 1)
	require.NoError(t, err)
	require.Equal(t, b.Args, a.Args)
}

func TestBlindIndexCondition_NoVersions(t *testing.T) {
	cond, err := BlindIndexCondition("email", "test@example.com", EmailIndexConfig(), nil, 1)
	require.NoError(t, err)
	require.Equal(t, "FALSE", cond.SQL)
	require.Nil(t, cond.Args)
}

func TestBlindIndexCondition_InvalidConfig(t *testing.T) {
	versions := testVersions(t, "v1")
	_, err := BlindIndexCondition("email", "x", BlindIndexConfig{FieldName: "email"}, versions, 1)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBlindIndexCondition_Composition(t *testing.T) {
	versions := testVersions(t, "v1", "v2")

	// SELECT * FROM users WHERE tenant_id = $1 AND status = $2 AND (email search)
	emailCond, err := BlindIndexCondition("email", "alice@example.com", EmailIndexConfig(), versions, 3)
	require.NoError(t, err)

	fullQuery := "SELECT * FROM users WHERE tenant_id = $1 AND status = $2 AND (" + emailCond.SQL + ")"
	for _, p := range []string{"$3", "$4", "$5", "$6"} {
		require.Contains(t, fullQuery, p)
	}
	require.NotContains(t, fullQuery, "$7")

	allArgs := append([]any{"tenant-123", "active"}, emailCond.Args...)
	require.Len(t, allArgs, 6)
}

func TestSearchCondition_InvalidColumnName(t *testing.T) {
	versions := testVersions(t, "v1")
	o := newTestOPE(t)

	tests := []struct {
		name   string
		column string
	}{
		{"sql injection", "email; DROP TABLE users; --"},
		{"empty", ""},
		{"special chars", "email$1"},
		{"spaces", "email name"},
		{"quotes", "email'"},
		{"leading digit", "1email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Panics(t, func() {
				_, _ = BlindIndexCondition(tt.column, "test", EmailIndexConfig(), versions, 1)
			})
			require.Panics(t, func() {
				_, _ = AmountRangeCondition(tt.column, o, nil, nil, 1)
			})
		})
	}
}

func TestSearchCondition_ValidColumnNames(t *testing.T) {
	versions := testVersions(t, "v1")

	validNames := []string{
		"email",
		"Email",
		"EMAIL",
		"email_address",
		"user_email_2",
		"Col123",
		"_private",
		"a",
	}

	for _, col := range validNames {
		t.Run(col, func(t *testing.T) {
			require.NotPanics(t, func() {
				_, _ = BlindIndexCondition(col, "test", EmailIndexConfig(), versions, 1)
			})
		})
	}
}

func TestSearchCondition_InvalidParamOffset(t *testing.T) {
	versions := testVersions(t, "v1")

	for _, offset := range []int{0, -1, -100, maxParamNumber + 1} {
		require.Panics(t, func() {
			_, _ = BlindIndexCondition("email", "test", EmailIndexConfig(), versions, offset)
		}, "offset %d", offset)
	}
}

func TestSearchCondition_MaxParamOverflow(t *testing.T) {
	versions := testVersions(t, "v1", "v2", "v3")

	// Three versions need six parameters.
	require.Panics(t, func() {
		_, _ = BlindIndexCondition("email", "test", EmailIndexConfig(), versions, maxParamNumber-4)
	})
	require.NotPanics(t, func() {
		_, _ = BlindIndexCondition("email", "test", EmailIndexConfig(), versions, maxParamNumber-5)
	})
}

func TestAmountRangeCondition(t *testing.T) {
	o := newTestOPE(t, WithCiphertextBits(63))
	lo, hi := 100.0, 1000.0

	cond, err := AmountRangeCondition("balance", o, &lo, &hi, 3)
	require.NoError(t, err)
	require.Equal(t, "balance_ope >= $3 AND balance_ope <= $4", cond.SQL)
	require.Len(t, cond.Args, 2)

	wantLo, err := o.EncryptAmount(lo)
	require.NoError(t, err)
	wantHi, err := o.EncryptAmount(hi)
	require.NoError(t, err)
	require.Equal(t, int64(wantLo), cond.Args[0])
	require.Equal(t, int64(wantHi), cond.Args[1])
	require.Less(t, cond.Args[0].(int64), cond.Args[1].(int64))
}

func TestAmountRangeCondition_OpenBounds(t *testing.T) {
	o := newTestOPE(t, WithCiphertextBits(63))
	lo := 50.0

	cond, err := AmountRangeCondition("balance", o, &lo, nil, 1)
	require.NoError(t, err)
	require.Equal(t, "balance_ope >= $1", cond.SQL)
	require.Len(t, cond.Args, 1)

	cond, err = AmountRangeCondition("balance", o, nil, &lo, 1)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(cond.SQL, "balance_ope <= "))

	cond, err = AmountRangeCondition("balance", o, nil, nil, 1)
	require.NoError(t, err)
	require.Equal(t, "TRUE", cond.SQL)
	require.Nil(t, cond.Args)
}

func TestAmountRangeCondition_OutOfRange(t *testing.T) {
	o := newTestOPE(t, WithCiphertextBits(63))
	neg := -1.0
	_, err := AmountRangeCondition("balance", o, &neg, nil, 1)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestAmountRangeCondition_RejectsWideCodec(t *testing.T) {
	// A 64-bit codec maps large amounts above 2^63, which would wrap negative as int64.
	wide := newTestOPE(t)
	ceiling := 30_000_000.0
	ct, err := wide.EncryptAmount(ceiling)
	require.NoError(t, err)
	require.Greater(t, ct, uint64(math.MaxInt64))

	_, err = AmountRangeCondition("balance", wide, nil, &ceiling, 1)
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = AmountRangeCondition("balance", wide, nil, nil, 1)
	require.ErrorIs(t, err, ErrInvalidConfig)

	narrow := newTestOPE(t, WithCiphertextBits(63))
	lo, hi := 1.0, ceiling
	cond, err := AmountRangeCondition("balance", narrow, &lo, &hi, 1)
	require.NoError(t, err)
	require.Less(t, cond.Args[0].(int64), cond.Args[1].(int64))
	require.Positive(t, cond.Args[1].(int64))
}
