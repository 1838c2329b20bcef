package libp2p

import (
	"crypto/ed25519"
	"fmt"

	lpcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/mik-tf/mycelium-chat/pkg/crypto"
	"github.com/mik-tf/mycelium-chat/pkg/directory"
)

// NodeIdentity is the local participant's identity provider: one ed25519
// keypair both signs announcements and derives the libp2p peer ID used as
// the network address.
type NodeIdentity struct {
	signingKey ed25519.PrivateKey
	hostKey    lpcrypto.PrivKey
	seed       directory.IdentitySeed
}

// LoadNodeIdentity loads (or generates) the signing key under baseDir and
// builds the identity seed. An empty identityID falls back to the derived
// peer ID, keeping it stable across restarts.
func LoadNodeIdentity(baseDir, identityID, displayName, avatarRef string) (*NodeIdentity, error) {
	dataDir, err := getDataDir(baseDir)
	if err != nil {
		return nil, err
	}

	signingKey, err := crypto.LoadSigningKey(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load or generate identity: %w", err)
	}

	hostKey, err := lpcrypto.UnmarshalEd25519PrivateKey(signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to convert signing key: %w", err)
	}

	if identityID == "" {
		pid, err := peer.IDFromPrivateKey(hostKey)
		if err != nil {
			return nil, err
		}
		identityID = pid.String()
	}

	return &NodeIdentity{
		signingKey: signingKey,
		hostKey:    hostKey,
		seed: directory.IdentitySeed{
			IdentityID:  identityID,
			PublicKey:   crypto.EncodePublicKey(signingKey),
			DisplayName: displayName,
			AvatarRef:   avatarRef,
		},
	}, nil
}

// Sign signs data with the participant's key.
func (i *NodeIdentity) Sign(data []byte) []byte {
	return crypto.Sign(i.signingKey, data)
}

// Verify checks a signature against another participant's announced
// public key.
func (i *NodeIdentity) Verify(data, signature []byte, publicKey string) bool {
	return crypto.Verify(data, signature, publicKey)
}

// Seed returns the local participant's profile seed.
func (i *NodeIdentity) Seed() directory.IdentitySeed {
	return i.seed
}
