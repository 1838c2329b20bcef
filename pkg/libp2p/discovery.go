package libp2p

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	discovery "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	"github.com/libp2p/go-libp2p/p2p/discovery/util"
)

// startPeerDiscovery advertises the directory namespace and periodically
// looks for other directory nodes, so GossipSub has peers to mesh with.
func (n *DirectoryNode) startPeerDiscovery() {
	routingDiscovery := discovery.NewRoutingDiscovery(n.dht)
	util.Advertise(n.ctx, routingDiscovery, DirectoryNamespace)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			peerChan, err := routingDiscovery.FindPeers(n.ctx, DirectoryNamespace)
			if err != nil {
				continue
			}
			n.processPeerDiscovery(peerChan)
		}
	}
}

// processPeerDiscovery connects to peers found via the DHT namespace.
func (n *DirectoryNode) processPeerDiscovery(peerChan <-chan peer.AddrInfo) {
	for p := range peerChan {
		if p.ID == n.host.ID() || len(p.Addrs) == 0 {
			continue
		}

		go func(pi peer.AddrInfo) {
			ctx, cancel := context.WithTimeout(n.ctx, 15*time.Second)
			defer cancel()
			if err := n.host.Connect(ctx, pi); err == nil {
				fmt.Printf("✅ Connected to directory peer: %s\n", pi.ID.String()[:12])
			}
		}(p)
	}
}
