package libp2p

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/mik-tf/mycelium-chat/pkg/directory"
)

// DirectoryNode implements directory.Transport: topic sends go over
// GossipSub, direct sends open a stream to the peer, and Receive drains
// the node's shared inbound channel.

// SendToTopic publishes a payload to a GossipSub topic, joining it first
// if needed.
func (n *DirectoryNode) SendToTopic(ctx context.Context, topic string, payload []byte) error {
	t, err := n.joinTopic(topic)
	if err != nil {
		return fmt.Errorf("failed to join topic %s: %w", topic, err)
	}
	return t.Publish(ctx, payload)
}

// SendDirect opens a stream to the peer whose ID is the address and
// writes the payload.
func (n *DirectoryNode) SendDirect(ctx context.Context, address string, payload []byte) error {
	pid, err := peer.Decode(address)
	if err != nil {
		return fmt.Errorf("invalid peer address %q: %w", address, err)
	}

	s, err := n.host.NewStream(ctx, pid, DirectoryProtocol)
	if err != nil {
		return fmt.Errorf("failed to open stream to peer %s: %w", address, err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Printf("Error closing stream: %v", err)
		}
	}()

	if _, err := s.Write(payload); err != nil {
		return fmt.Errorf("failed to send direct message: %w", err)
	}
	return s.CloseWrite()
}

// Receive subscribes to any not-yet-subscribed topics, drops
// subscriptions no longer wanted, and returns the batch of messages that
// arrived within the timeout. An empty batch means the timeout elapsed
// quietly, which is not an error.
func (n *DirectoryNode) Receive(ctx context.Context, topics []string, timeout time.Duration) ([]directory.ReceivedMessage, error) {
	if err := n.ensureSubscriptions(topics); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-n.incoming:
		batch := []directory.ReceivedMessage{msg}
		for {
			select {
			case m := <-n.incoming:
				batch = append(batch, m)
			default:
				return batch, nil
			}
		}
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.ctx.Done():
		return nil, fmt.Errorf("node closed")
	}
}

// joinTopic returns the cached topic handle, joining on first use.
func (n *DirectoryNode) joinTopic(name string) (*pubsub.Topic, error) {
	n.topicsMux.Lock()
	defer n.topicsMux.Unlock()

	if t, ok := n.topics[name]; ok {
		return t, nil
	}
	t, err := n.pubsub.Join(name)
	if err != nil {
		return nil, err
	}
	n.topics[name] = t
	return t, nil
}

// ensureSubscriptions reconciles the running receive pumps with the
// wanted topic set.
func (n *DirectoryNode) ensureSubscriptions(topics []string) error {
	wanted := make(map[string]bool, len(topics))
	for _, t := range topics {
		wanted[t] = true
	}

	n.topicsMux.Lock()
	defer n.topicsMux.Unlock()

	for name, sub := range n.subs {
		if !wanted[name] {
			sub.Cancel()
			delete(n.subs, name)
		}
	}

	for name := range wanted {
		if _, ok := n.subs[name]; ok {
			continue
		}
		t, ok := n.topics[name]
		if !ok {
			var err error
			t, err = n.pubsub.Join(name)
			if err != nil {
				return fmt.Errorf("failed to join topic %s: %w", name, err)
			}
			n.topics[name] = t
		}
		sub, err := t.Subscribe()
		if err != nil {
			return fmt.Errorf("failed to subscribe to topic %s: %w", name, err)
		}
		n.subs[name] = sub
		go n.pumpSubscription(sub, name)
	}
	return nil
}

// pumpSubscription forwards one topic's messages into the shared inbound
// channel until the subscription is cancelled. Self-originated messages
// are dropped here, matching GossipSub's local loopback.
func (n *DirectoryNode) pumpSubscription(sub *pubsub.Subscription, topic string) {
	for {
		msg, err := sub.Next(n.ctx)
		if err != nil {
			return
		}
		if msg.GetFrom() == n.host.ID() {
			continue
		}
		select {
		case n.incoming <- directory.ReceivedMessage{Topic: topic, Payload: msg.GetData()}:
		case <-n.ctx.Done():
			return
		}
	}
}

// handleDirectStream receives one directly-sent payload and queues it for
// the next Receive call. Direct messages carry an empty topic.
func (n *DirectoryNode) handleDirectStream(s network.Stream) {
	defer func() {
		if err := s.Close(); err != nil {
			log.Printf("Error closing stream: %v", err)
		}
	}()

	payload, err := io.ReadAll(s)
	if err != nil {
		log.Printf("Failed to read direct message: %v", err)
		return
	}
	if len(payload) == 0 {
		return
	}

	select {
	case n.incoming <- directory.ReceivedMessage{Payload: payload}:
	case <-n.ctx.Done():
	}
}
