package crypto

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "mycelium-chat-test-")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, os.RemoveAll(dir)) })
	return dir
}

func TestLoadSigningKeyGeneratesAndReloads(t *testing.T) {
	dir := newTestDir(t)

	// 1. No key on disk yet: one gets generated and saved
	key, err := LoadSigningKey(dir)
	require.NoError(t, err)
	require.NotNil(t, key)

	// 2. Loading again returns the same key
	loaded, err := LoadSigningKey(dir)
	require.NoError(t, err)
	require.Equal(t, key, loaded, "loaded key should be the same as the saved key")
}

func TestSignAndVerify(t *testing.T) {
	key, err := GenerateSigningKey()
	require.NoError(t, err)

	data := []byte("announcement payload")
	sig := Sign(key, data)
	pub := EncodePublicKey(key)

	require.True(t, Verify(data, sig, pub))
	require.False(t, Verify([]byte("tampered payload"), sig, pub))

	other, err := GenerateSigningKey()
	require.NoError(t, err)
	require.False(t, Verify(data, sig, EncodePublicKey(other)), "wrong key must not verify")
}

func TestVerifyRejectsGarbageKeys(t *testing.T) {
	key, err := GenerateSigningKey()
	require.NoError(t, err)
	data := []byte("payload")
	sig := Sign(key, data)

	require.False(t, Verify(data, sig, "not base64!!"))
	require.False(t, Verify(data, sig, "c2hvcnQ="), "wrong-length key must not verify")
	require.False(t, Verify(data, nil, EncodePublicKey(key)))
}
