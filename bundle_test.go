package encryptedir

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExportImport_RoundTrip(t *testing.T) {
	src := newTestManager(t)
	dst := newTestManager(t, WithMasterKey(testKey("other master")))

	bi, err := src.CreateKey(KeyTypeBlindIndex, 32, 0, "ssn index")
	require.NoError(t, err)
	det, err := src.CreateKey(KeyTypeDeterministic, 64, 0, "")
	require.NoError(t, err)
	retired, err := src.CreateKey(KeyTypeOPE, 16, 0, "")
	require.NoError(t, err)
	require.NoError(t, src.DeleteKey(retired))

	bundle, err := src.ExportKeys("correct horse")
	require.NoError(t, err)
	require.NoError(t, dst.ImportKeys(bundle, "correct horse"))

	for _, id := range []string{bi, det} {
		want, err := src.GetKey(id)
		require.NoError(t, err)
		got, err := dst.GetKey(id)
		require.NoError(t, err)
		require.Equal(t, want, got, "imported bytes must be identical")
	}

	// Inactive keys travel with their state.
	_, err = dst.GetKey(retired)
	require.ErrorIs(t, err, ErrKeyInactive)

	meta, err := dst.Metadata(bi)
	require.NoError(t, err)
	require.Equal(t, KeyTypeBlindIndex, meta.KeyType)
	require.Equal(t, "ssn index", meta.Description)
	require.Equal(t, 32, meta.KeySize)

	ids, err := dst.ListKeys("", false)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{bi, det, retired}, ids)
}

func TestExportImport_Audited(t *testing.T) {
	src := newTestManager(t)
	dst := newTestManager(t)

	_, err := src.CreateKey(KeyTypeSearchable, 32, 0, "")
	require.NoError(t, err)
	bundle, err := src.ExportKeys("pw")
	require.NoError(t, err)
	require.NoError(t, dst.ImportKeys(bundle, "pw"))

	exported, err := src.AuditLog(auditAllKeys, 0)
	require.NoError(t, err)
	require.Len(t, exported, 1)
	require.Equal(t, OpExport, exported[0].Operation)
	require.Equal(t, "Exported 1 keys", exported[0].Details)

	imported, err := dst.AuditLog(auditAllKeys, 0)
	require.NoError(t, err)
	require.Len(t, imported, 1)
	require.Equal(t, OpImport, imported[0].Operation)
	require.Equal(t, "Imported 1 keys", imported[0].Details)
}

func TestExport_EmptyManager(t *testing.T) {
	src := newTestManager(t)
	dst := newTestManager(t)

	bundle, err := src.ExportKeys("pw")
	require.NoError(t, err)
	require.Greater(t, len(bundle), saltSize+gcmNonceSize+gcmTagSize)
	require.NoError(t, dst.ImportKeys(bundle, "pw"))

	ids, err := dst.ListKeys("", false)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestExport_EmptyPassword(t *testing.T) {
	m := newTestManager(t)
	_, err := m.ExportKeys("")
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestExport_FreshSaltAndNonce(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateKey(KeyTypeSearchable, 32, 0, "")
	require.NoError(t, err)

	b1, err := m.ExportKeys("pw")
	require.NoError(t, err)
	b2, err := m.ExportKeys("pw")
	require.NoError(t, err)
	require.NotEqual(t, b1[:saltSize], b2[:saltSize])
	require.NotEqual(t, b1[saltSize:saltSize+gcmNonceSize], b2[saltSize:saltSize+gcmNonceSize])
}

func TestImport_WrongPassword(t *testing.T) {
	src := newTestManager(t)
	dst := newTestManager(t)
	_, err := src.CreateKey(KeyTypeSearchable, 32, 0, "")
	require.NoError(t, err)

	bundle, err := src.ExportKeys("right")
	require.NoError(t, err)

	err = dst.ImportKeys(bundle, "wrong")
	require.ErrorIs(t, err, ErrAuthentication)
	var ae *AuthenticationError
	require.ErrorAs(t, err, &ae)

	ids, err := dst.ListKeys("", false)
	require.NoError(t, err)
	require.Empty(t, ids, "nothing is imported on failure")
}

func TestImport_Tampered(t *testing.T) {
	src := newTestManager(t)
	dst := newTestManager(t)
	_, err := src.CreateKey(KeyTypeSearchable, 32, 0, "")
	require.NoError(t, err)

	bundle, err := src.ExportKeys("pw")
	require.NoError(t, err)

	for _, pos := range []int{0, saltSize, len(bundle) - 1} {
		tampered := append([]byte(nil), bundle...)
		tampered[pos] ^= 0x01
		require.ErrorIs(t, dst.ImportKeys(tampered, "pw"), ErrAuthentication, "byte %d", pos)
	}
}

func TestImport_MalformedBundle(t *testing.T) {
	m := newTestManager(t)

	for _, n := range []int{0, 10, saltSize + gcmNonceSize} {
		require.ErrorIs(t, m.ImportKeys(make([]byte, n), "pw"), ErrInvalidFormat, "length %d", n)
	}
	require.ErrorIs(t, m.ImportKeysBase64("%%%", "pw"), ErrInvalidFormat)
}

func TestImport_NeverReactivates(t *testing.T) {
	src := newTestManager(t)
	id, err := src.CreateKey(KeyTypeBlindIndex, 32, 0, "")
	require.NoError(t, err)
	bundle, err := src.ExportKeys("pw")
	require.NoError(t, err)

	// Same store, key retired after the export was taken.
	require.NoError(t, src.DeleteKey(id))
	require.NoError(t, src.ImportKeys(bundle, "pw"))

	_, err = src.GetKey(id)
	require.ErrorIs(t, err, ErrKeyInactive)
}

func TestImport_ReplacesExisting(t *testing.T) {
	src := newTestManager(t)
	id, err := src.CreateKey(KeyTypeOPE, 32, 0, "")
	require.NoError(t, err)
	bundle, err := src.ExportKeys("pw")
	require.NoError(t, err)

	dst := newTestManager(t)
	require.NoError(t, dst.ImportKeys(bundle, "pw"))
	require.NoError(t, dst.ImportKeys(bundle, "pw"), "importing twice is a merge")

	ids, err := dst.ListKeys("", false)
	require.NoError(t, err)
	require.Equal(t, []string{id}, ids)
}

func TestExportImport_Base64(t *testing.T) {
	src := newTestManager(t)
	dst := newTestManager(t)
	id, err := src.CreateKey(KeyTypeSearchable, 32, 0, "")
	require.NoError(t, err)

	encoded, err := src.ExportKeysBase64("pw")
	require.NoError(t, err)
	_, err = base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	require.NoError(t, dst.ImportKeysBase64(encoded, "pw"))
	want, err := src.GetKey(id)
	require.NoError(t, err)
	got, err := dst.GetKey(id)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestImport_IterationMismatch(t *testing.T) {
	src := newTestManager(t, withWeakKDFForTesting(1000))
	dst := newTestManager(t, withWeakKDFForTesting(2000))
	_, err := src.CreateKey(KeyTypeSearchable, 32, 0, "")
	require.NoError(t, err)

	bundle, err := src.ExportKeys("pw")
	require.NoError(t, err)
	require.ErrorIs(t, dst.ImportKeys(bundle, "pw"), ErrAuthentication)
}
