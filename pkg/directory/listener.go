package directory

import (
	"context"
	"encoding/base64"
	"log"
	"strings"
	"time"
)

const (
	backoffInitial = 1 * time.Second
	backoffMax     = 30 * time.Second
)

// Listener is the long-lived receive loop. It pulls message batches from
// the topics the local participant observes, decodes each by its kind
// discriminator, and dispatches to the responder, the coordinator, or the
// discovered-users cache. A hostile or corrupt peer can never crash or
// stall the loop: bad messages are dropped, transport errors are retried
// with exponential backoff.
type Listener struct {
	store          *ProfileStore
	transport      Transport
	identity       Identity
	cache          *Cache
	responder      *Responder
	coordinator    *Coordinator
	receiveTimeout time.Duration
	verbose        bool
}

// NewListener wires the receive loop to its three dispatch targets.
func NewListener(store *ProfileStore, transport Transport, identity Identity, cache *Cache, responder *Responder, coordinator *Coordinator, receiveTimeout time.Duration) *Listener {
	return &Listener{
		store:          store,
		transport:      transport,
		identity:       identity,
		cache:          cache,
		responder:      responder,
		coordinator:    coordinator,
		receiveTimeout: receiveTimeout,
	}
}

// SetVerbose enables logging of dropped messages (forged signatures,
// unparsable payloads), which are expected background noise.
func (l *Listener) SetVerbose(v bool) { l.verbose = v }

// Run receives until the context is cancelled. Batches are re-requested
// back-to-back on success; transport errors back off from 1s up to 30s.
func (l *Listener) Run(ctx context.Context) {
	backoff := backoffInitial
	for {
		if ctx.Err() != nil {
			return
		}

		topics := l.listenTopics()
		msgs, err := l.transport.Receive(ctx, topics, l.receiveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("listener: receive failed, retrying in %s: %v", backoff, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
			continue
		}
		backoff = backoffInitial

		for _, msg := range msgs {
			l.handle(ctx, msg)
		}
	}
}

// listenTopics recomputes the observed topic set each cycle so visibility
// and group changes take effect without restarting the loop.
func (l *Listener) listenTopics() []string {
	profile, ok := l.store.Get()
	if !ok {
		return []string{TopicGlobal}
	}
	return ListenTopics(profile)
}

func (l *Listener) handle(ctx context.Context, msg ReceivedMessage) {
	decoded, err := DecodeMessage(msg.Payload)
	if err != nil {
		l.debugf("listener: dropping message on %q: %v", msg.Topic, err)
		return
	}

	switch m := decoded.(type) {
	case *Announcement:
		l.handleAnnouncement(m)
	case *DiscoveryQuery:
		l.responder.Handle(ctx, *m)
	case *DiscoveryResponse:
		l.coordinator.Deliver(m)
	}
}

func (l *Listener) handleAnnouncement(a *Announcement) {
	if !supportedSchema(a.SchemaVersion) {
		l.debugf("listener: dropping announcement with schema %q", a.SchemaVersion)
		return
	}

	sig, err := base64.StdEncoding.DecodeString(a.Signature)
	if err != nil {
		l.debugf("listener: dropping announcement from %s: bad signature encoding", a.Profile.IdentityID)
		return
	}
	if !l.identity.Verify(SigningBytes(a.Profile, a.Timestamp), sig, a.Profile.PublicKey) {
		// Forged or corrupted announcements are expected noise from an
		// untrusted network; never a hard error.
		l.debugf("listener: dropping announcement from %s: signature does not verify", a.Profile.IdentityID)
		return
	}

	local, ok := l.store.Get()
	if !ok {
		return
	}
	if a.Profile.IdentityID == local.IdentityID {
		return
	}
	if !AcceptAnnouncement(a.Profile, local) {
		return
	}

	l.cache.Upsert(a.Profile, a.TTLSeconds)
}

func (l *Listener) debugf(format string, args ...any) {
	if l.verbose {
		log.Printf(format, args...)
	}
}

// supportedSchema accepts any announcement sharing our major schema
// version.
func supportedSchema(version string) bool {
	major, _, _ := strings.Cut(version, ".")
	current, _, _ := strings.Cut(SchemaVersion, ".")
	return major == current
}
