package libp2p

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// ConnectToPeer connects to a peer given its multiaddress string.
func (n *DirectoryNode) ConnectToPeer(addrStr string) error {
	addr, err := multiaddr.NewMultiaddr(addrStr)
	if err != nil {
		return fmt.Errorf("invalid multiaddress: %w", err)
	}
	peerInfo, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return fmt.Errorf("failed to get peer info: %w", err)
	}

	ctx, cancel := context.WithTimeout(n.ctx, 30*time.Second)
	defer cancel()
	if err := n.host.Connect(ctx, *peerInfo); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// ListPeers prints the node's current network connections.
func (n *DirectoryNode) ListPeers() {
	peers := n.host.Network().Peers()
	fmt.Printf("📊 Network Status: %d connected peers\n", len(peers))
	for _, id := range peers {
		status := "disconnected"
		if n.host.Network().Connectedness(id) == network.Connected {
			status = "connected"
		}
		fmt.Printf("  - %s (%s)\n", id.String(), status)
	}
}
