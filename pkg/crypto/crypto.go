package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
)

const signingKeyFileName = "signing.key"

// GenerateSigningKey creates a fresh ed25519 signing keypair.
func GenerateSigningKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	return priv, err
}

// SaveSigningKey writes the private key to the data directory.
func SaveSigningKey(key ed25519.PrivateKey, dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, signingKeyFileName), key, 0600)
}

// LoadSigningKey loads the signing key from the data directory,
// generating and saving a new one if none exists.
func LoadSigningKey(dir string) (ed25519.PrivateKey, error) {
	keyPath := filepath.Join(dir, signingKeyFileName)

	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		if os.IsNotExist(err) {
			priv, err := GenerateSigningKey()
			if err != nil {
				return nil, err
			}
			if err := SaveSigningKey(priv, dir); err != nil {
				return nil, err
			}
			return priv, nil
		}
		return nil, err
	}

	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("corrupt signing key %s: %d bytes", keyPath, len(keyBytes))
	}
	return ed25519.PrivateKey(keyBytes), nil
}

// Sign signs data with the private key.
func Sign(priv ed25519.PrivateKey, data []byte) []byte {
	return ed25519.Sign(priv, data)
}

// Verify checks a signature against a base64-encoded public key. Any
// decoding failure counts as a failed verification: forged keys are
// untrusted input, not errors.
func Verify(data, signature []byte, publicKeyB64 string) bool {
	pub, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, signature)
}

// EncodePublicKey returns the base64 form of the verification key, as
// carried in announced profiles.
func EncodePublicKey(priv ed25519.PrivateKey) string {
	pub := priv.Public().(ed25519.PublicKey)
	return base64.StdEncoding.EncodeToString(pub)
}
