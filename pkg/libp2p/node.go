package libp2p

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/routing"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"

	"github.com/mik-tf/mycelium-chat/pkg/directory"
)

// DirectoryNode is the libp2p-backed transport for the user directory:
// GossipSub topics carry announcements and queries, direct streams carry
// query responses.
type DirectoryNode struct {
	host    host.Host
	ctx     context.Context
	cancel  context.CancelFunc
	dht     *dht.IpfsDHT
	pubsub  *pubsub.PubSub
	dataDir string

	// Joined pubsub topics and their receive pumps
	topics    map[string]*pubsub.Topic
	subs      map[string]*pubsub.Subscription
	topicsMux sync.Mutex

	incoming chan directory.ReceivedMessage

	contacts *ContactManager
}

// NewDirectoryNode creates a node listening on the given port. An empty
// baseDir uses the default user data directory.
func NewDirectoryNode(port int, baseDir string, identity *NodeIdentity) (*DirectoryNode, error) {
	ctx, cancel := context.WithCancel(context.Background())

	dataDir, err := getDataDir(baseDir)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}

	var idht *dht.IpfsDHT

	cm, err := connmgr.NewConnManager(50, 200, connmgr.WithGracePeriod(time.Minute))
	if err != nil {
		cancel()
		return nil, err
	}

	var staticRelays []peer.AddrInfo
	for _, addr := range dht.DefaultBootstrapPeers {
		pi, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			log.Printf("Failed to parse bootstrap peer: %v", err)
			continue
		}
		staticRelays = append(staticRelays, *pi)
	}

	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(
			fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", port),
			fmt.Sprintf("/ip4/0.0.0.0/udp/%d/quic", port+1),
		),
		libp2p.Identity(identity.hostKey),
		libp2p.ConnectionManager(cm),
		libp2p.EnableAutoRelayWithStaticRelays(staticRelays),
		libp2p.EnableHolePunching(),
		libp2p.NATPortMap(),
		libp2p.Routing(func(h host.Host) (routing.PeerRouting, error) {
			var err error
			idht, err = dht.New(ctx, h, dht.Mode(dht.ModeServer))
			return idht, err
		}),
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create pubsub: %w", err)
	}

	contacts, err := NewContactManager(filepath.Join(dataDir, "contacts.json"))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to load contacts: %w", err)
	}

	node := &DirectoryNode{
		host:     h,
		ctx:      ctx,
		cancel:   cancel,
		dht:      idht,
		pubsub:   ps,
		dataDir:  dataDir,
		topics:   make(map[string]*pubsub.Topic),
		subs:     make(map[string]*pubsub.Subscription),
		incoming: make(chan directory.ReceivedMessage, 256),
		contacts: contacts,
	}

	h.SetStreamHandler(DirectoryProtocol, node.handleDirectStream)

	fmt.Printf("✅ Directory Node ID: %s\n", h.ID().String())
	fmt.Printf("✅ Listening on:\n")
	for _, addr := range h.Addrs() {
		fmt.Printf("   %s/p2p/%s\n", addr, h.ID().String())
	}

	return node, nil
}

// Bootstrap connects to the public DHT and starts background peer
// discovery for the directory namespace.
func (n *DirectoryNode) Bootstrap() error {
	fmt.Println("⏳ Starting decentralized bootstrap...")

	publicDHT := []string{
		"/dnsaddr/bootstrap.libp2p.io/p2p/QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN",
		"/dnsaddr/bootstrap.libp2p.io/p2p/QmQCU2EcMqAqQPR2i9bChDtGNJchTbq5TbXJJ16u19uLTa",
		"/dnsaddr/bootstrap.libp2p.io/p2p/QmbLHAnMoJPWSCR5Zhtx6BHJX9KiKNN6tpvbUcqanj75Nb",
		"/dnsaddr/bootstrap.libp2p.io/p2p/QmcZf59bWwK5XFi76CZX8cbJ4BhTzzA3gU1ZjYZcYW3dwt",
		"/ip4/104.131.131.82/tcp/4001/p2p/QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ",
	}

	connected := false
	for _, addr := range publicDHT {
		if err := n.ConnectToPeer(addr); err == nil {
			connected = true
			fmt.Printf("✅ Connected to public DHT node\n")
			break
		}
	}

	if err := n.dht.Bootstrap(n.ctx); err != nil {
		log.Printf("⚠️ DHT bootstrap warning: %v\n", err)
	}

	go n.startPeerDiscovery()

	if !connected {
		fmt.Println("⚠️ No initial DHT connection - will discover peers organically")
	}
	return nil
}

// LocalAddress returns the node's network address: its libp2p peer ID,
// derived from the signing public key.
func (n *DirectoryNode) LocalAddress() string {
	return n.host.ID().String()
}

// Contacts returns the out-of-band friends address book.
func (n *DirectoryNode) Contacts() *ContactManager {
	return n.contacts
}

// DataDir returns the node's data directory.
func (n *DirectoryNode) DataDir() string {
	return n.dataDir
}

// Close shuts down the node and its subscriptions.
func (n *DirectoryNode) Close() error {
	n.cancel()
	n.topicsMux.Lock()
	for _, sub := range n.subs {
		sub.Cancel()
	}
	n.subs = make(map[string]*pubsub.Subscription)
	n.topicsMux.Unlock()
	return n.host.Close()
}

// getDataDir returns the application's data directory. A non-empty
// baseDir overrides the default under the user home.
func getDataDir(baseDir string) (string, error) {
	if baseDir != "" {
		return baseDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mycelium-chat"), nil
}
