package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv
}

func TestParsePrivateKey(t *testing.T) {
	priv := newKey(t)

	full, err := ParsePrivateKey(base58.Encode(priv))
	require.NoError(t, err)
	assert.Equal(t, priv, full)

	seed, err := ParsePrivateKey(base58.Encode(priv.Seed()))
	require.NoError(t, err)
	assert.Equal(t, priv, seed)

	tampered := append([]byte{}, priv...)
	tampered[63] ^= 0xff
	_, err = ParsePrivateKey(base58.Encode(tampered))
	assert.Error(t, err)

	_, err = ParsePrivateKey("not-base58!")
	assert.Error(t, err)
	_, err = ParsePrivateKey(base58.Encode([]byte{1, 2, 3}))
	assert.Error(t, err)
}

func TestEncryptDecrypt(t *testing.T) {
	priv := newKey(t)

	blob, err := EncryptKey(base58.Encode(priv), "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(blob), base58.Encode(priv))

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, priv, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)

	_, err = EncryptKey(base58.Encode(priv), "")
	assert.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	priv := newKey(t)
	dir := t.TempDir()

	ints := make([]int, len(priv))
	for i, b := range priv {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	require.NoError(t, err)
	keypairPath := filepath.Join(dir, "id.json")
	require.NoError(t, os.WriteFile(keypairPath, data, 0o600))

	blob, err := EncryptKey(base58.Encode(priv), "pw")
	require.NoError(t, err)
	encPath := filepath.Join(dir, "key.enc.json")
	require.NoError(t, os.WriteFile(encPath, blob, 0o600))

	for name, cfg := range map[string]KeyConfig{
		"raw":       {RawPrivateKey: base58.Encode(priv)},
		"keypair":   {KeypairPath: keypairPath},
		"encrypted": {EncryptedKeyPath: encPath, KeyPassword: "pw"},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := LoadKey(cfg)
			require.NoError(t, err)
			assert.Equal(t, priv, got)
		})
	}

	_, err = LoadKey(KeyConfig{})
	assert.Error(t, err)
}

func TestWalletAddress(t *testing.T) {
	priv := newKey(t)
	w := NewWallet(priv)
	assert.Equal(t, base58.Encode(priv.Public().(ed25519.PublicKey)), w.Address())
	assert.Equal(t, priv, w.PrivateKey())
}
