package directory

// IdentitySeed is the identity provider's view of the local participant,
// used to create the initial profile.
type IdentitySeed struct {
	IdentityID  string
	PublicKey   string // base64 verification key
	DisplayName string
	AvatarRef   string
}

// Identity supplies the local signing capability and verifies announcement
// signatures from other participants.
type Identity interface {
	Sign(data []byte) []byte
	Verify(data, signature []byte, publicKey string) bool
	Seed() IdentitySeed
}
