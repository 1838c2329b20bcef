package libp2p

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/mik-tf/mycelium-chat/pkg/directory"
)

// newTestDir creates a temporary directory for testing and returns its path.
func newTestDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "mycelium-chat-test-")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, os.RemoveAll(dir)) })
	return dir
}

func newTestNode(t *testing.T) *DirectoryNode {
	dir := newTestDir(t)
	identity, err := LoadNodeIdentity(dir, "", "tester", "")
	require.NoError(t, err)
	node, err := NewDirectoryNode(0, dir, identity)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, node.Close()) })
	return node
}

func connectNodes(t *testing.T, a, b *DirectoryNode) {
	addrInfo := peer.AddrInfo{ID: b.host.ID(), Addrs: b.host.Addrs()}
	addrs, err := peer.AddrInfoToP2pAddrs(&addrInfo)
	require.NoError(t, err)
	require.NoError(t, a.ConnectToPeer(addrs[0].String()))
	time.Sleep(1 * time.Second)
}

func TestNewDirectoryNode(t *testing.T) {
	node := newTestNode(t)
	require.NotNil(t, node.host)
	require.NotNil(t, node.dht)
	require.NotNil(t, node.pubsub)
	require.NotEmpty(t, node.LocalAddress())
}

func TestIdentityStableAcrossRestarts(t *testing.T) {
	dir := newTestDir(t)
	id1, err := LoadNodeIdentity(dir, "", "tester", "")
	require.NoError(t, err)
	id2, err := LoadNodeIdentity(dir, "", "tester", "")
	require.NoError(t, err)
	require.Equal(t, id1.Seed().IdentityID, id2.Seed().IdentityID)
	require.Equal(t, id1.Seed().PublicKey, id2.Seed().PublicKey)
}

func TestSendDirectRoundTrip(t *testing.T) {
	node1 := newTestNode(t)
	node2 := newTestNode(t)
	connectNodes(t, node1, node2)

	payload := []byte(`{"kind":"response","requestId":"r1","profiles":[],"timestamp":1}`)
	err := node1.SendDirect(context.Background(), node2.LocalAddress(), payload)
	require.NoError(t, err)

	msgs, err := node2.Receive(context.Background(), nil, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, payload, msgs[0].Payload)
	require.Empty(t, msgs[0].Topic, "direct messages carry no topic")
}

func TestTopicPublishReceive(t *testing.T) {
	node1 := newTestNode(t)
	node2 := newTestNode(t)
	connectNodes(t, node1, node2)

	topics := []string{directory.TopicGlobal}

	// Subscribe node2 before publishing so the mesh is formed.
	_, err := node2.Receive(context.Background(), topics, 100*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(2 * time.Second)

	payload := []byte(`{"kind":"query","requestId":"q1","requesterAddress":"x","filters":{}}`)
	require.NoError(t, node1.SendToTopic(context.Background(), directory.TopicGlobal, payload))

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		msgs, err := node2.Receive(context.Background(), topics, 1*time.Second)
		require.NoError(t, err)
		if len(msgs) > 0 {
			require.Equal(t, payload, msgs[0].Payload)
			require.Equal(t, directory.TopicGlobal, msgs[0].Topic)
			return
		}
	}
	t.Fatal("timed out waiting for topic message")
}
