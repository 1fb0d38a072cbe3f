package keys_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmerrifield20/MedRecordLedger/internal/keys"
)

const hexKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestLoadServiceKey_keygenFile(t *testing.T) {
	want, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	ints := make([]int, len(want))
	for i, b := range want {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	got, err := keys.LoadServiceKey(path, "")
	require.NoError(t, err)
	assert.Equal(t, want.PublicKey(), got.PublicKey())
}

func TestLoadServiceKey_base58(t *testing.T) {
	want, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	got, err := keys.LoadServiceKey("", want.String())
	require.NoError(t, err)
	assert.Equal(t, want.PublicKey(), got.PublicKey())

	_, err = keys.LoadServiceKey("", "")
	assert.ErrorIs(t, err, keys.ErrNoServiceKey)
}

func TestParseEncryptionKey(t *testing.T) {
	key, err := keys.ParseEncryptionKey(hexKey)
	require.NoError(t, err)
	assert.Len(t, key, keys.EncryptionKeySize)

	_, err = keys.ParseEncryptionKey("abcd")
	assert.Error(t, err)
	_, err = keys.ParseEncryptionKey("zz")
	assert.Error(t, err)
}

func TestVaultSource_kv2(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/secret/data/medrecord", r.URL.Path)
		assert.Equal(t, "root-token", r.Header.Get("X-Vault-Token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"data":{"encryption_key":"` + hexKey + `"},"metadata":{"version":1}}}`))
	}))
	defer srv.Close()

	src, err := keys.NewVaultSource(srv.URL, "root-token", "/secret/data/medrecord/", "")
	require.NoError(t, err)
	key, err := src.EncryptionKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(0x1f), key[31])
}

func TestVaultSource_missingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"other":"x"}}`))
	}))
	defer srv.Close()

	src, err := keys.NewVaultSource(srv.URL, "t", "secret/medrecord", "encryption_key")
	require.NoError(t, err)
	_, err = src.EncryptionKey(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "encryption_key"))
}
