package directory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mik-tf/mycelium-chat/pkg/crypto"
)

// newTestDir creates a temporary directory for testing and returns its path.
func newTestDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "mycelium-chat-test-")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, os.RemoveAll(dir)) })
	return dir
}

// memBus is an in-memory transport fabric: every registered address gets
// its own memTransport and topic sends fan out to current subscribers.
type memBus struct {
	mu    sync.Mutex
	peers map[string]*memTransport
}

func newMemBus() *memBus {
	return &memBus{peers: make(map[string]*memTransport)}
}

func (b *memBus) transport(address string) *memTransport {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.peers[address]; ok {
		return t
	}
	t := &memTransport{
		bus:     b,
		address: address,
		topics:  make(map[string]bool),
		inbox:   make(chan ReceivedMessage, 64),
	}
	b.peers[address] = t
	return t
}

type memTransport struct {
	bus     *memBus
	address string

	mu     sync.Mutex
	topics map[string]bool

	inbox chan ReceivedMessage

	sendErr error // when set, topic sends fail
	recvErr error // when set, receives fail
}

func (m *memTransport) subscribed(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.topics[topic]
}

func (m *memTransport) setTopics(topics []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = make(map[string]bool, len(topics))
	for _, t := range topics {
		m.topics[t] = true
	}
}

func (m *memTransport) SendToTopic(_ context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	err := m.sendErr
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	for _, peer := range m.bus.peers {
		if peer == m || !peer.subscribed(topic) {
			continue
		}
		select {
		case peer.inbox <- ReceivedMessage{Topic: topic, Payload: payload}:
		default:
		}
	}
	return nil
}

func (m *memTransport) SendDirect(_ context.Context, address string, payload []byte) error {
	m.bus.mu.Lock()
	peer, ok := m.bus.peers[address]
	m.bus.mu.Unlock()
	if !ok {
		return nil // best effort, unknown peer
	}
	select {
	case peer.inbox <- ReceivedMessage{Payload: payload}:
	default:
	}
	return nil
}

func (m *memTransport) Receive(ctx context.Context, topics []string, timeout time.Duration) ([]ReceivedMessage, error) {
	m.mu.Lock()
	err := m.recvErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.setTopics(topics)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-m.inbox:
		batch := []ReceivedMessage{msg}
		for {
			select {
			case next := <-m.inbox:
				batch = append(batch, next)
			default:
				return batch, nil
			}
		}
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// testIdentity signs with a real ed25519 key so signature verification is
// exercised end to end.
type testIdentity struct {
	key  []byte
	seed IdentitySeed
}

func newTestIdentity(t *testing.T, identityID, displayName string) *testIdentity {
	key, err := crypto.GenerateSigningKey()
	require.NoError(t, err)
	return &testIdentity{
		key: key,
		seed: IdentitySeed{
			IdentityID:  identityID,
			PublicKey:   crypto.EncodePublicKey(key),
			DisplayName: displayName,
		},
	}
}

func (i *testIdentity) Sign(data []byte) []byte {
	return crypto.Sign(i.key, data)
}

func (i *testIdentity) Verify(data, signature []byte, publicKey string) bool {
	return crypto.Verify(data, signature, publicKey)
}

func (i *testIdentity) Seed() IdentitySeed { return i.seed }

// newTestStore seeds an in-memory profile store for one participant.
func newTestStore(t *testing.T, identity *testIdentity, address string, visibility Visibility, groups ...string) *ProfileStore {
	store, err := NewProfileStore("")
	require.NoError(t, err)
	seed := identity.Seed()
	require.NoError(t, store.Set(Profile{
		IdentityID:     seed.IdentityID,
		NetworkAddress: address,
		DisplayName:    seed.DisplayName,
		Status:         StatusOnline,
		Visibility:     visibility,
		Groups:         groups,
		PublicKey:      seed.PublicKey,
	}))
	return store
}

// signedAnnouncement builds a valid announcement wire payload for a
// remote profile, signed with its identity.
func signedAnnouncement(t *testing.T, identity *testIdentity, p Profile, ttlSeconds int) []byte {
	sig := identity.Sign(SigningBytes(p, p.LastSeen))
	ann := Announcement{
		Kind:          KindAnnouncement,
		SchemaVersion: SchemaVersion,
		Profile:       p,
		Timestamp:     p.LastSeen,
		Signature:     base64.StdEncoding.EncodeToString(sig),
		TTLSeconds:    ttlSeconds,
	}
	data, err := json.Marshal(ann)
	require.NoError(t, err)
	return data
}
