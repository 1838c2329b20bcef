package directory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/benbjohnson/clock"
)

// Announcer periodically publishes a freshly signed announcement of the
// local profile to the topic set its visibility selects.
type Announcer struct {
	store      *ProfileStore
	transport  Transport
	identity   Identity
	clock      clock.Clock
	interval   time.Duration
	ttlSeconds int
}

// NewAnnouncer creates an announcer publishing every interval with the
// given advisory TTL.
func NewAnnouncer(store *ProfileStore, transport Transport, identity Identity, clk clock.Clock, interval time.Duration, ttlSeconds int) *Announcer {
	return &Announcer{
		store:      store,
		transport:  transport,
		identity:   identity,
		clock:      clk,
		interval:   interval,
		ttlSeconds: ttlSeconds,
	}
}

// Run announces once immediately, then on every interval tick until the
// context is cancelled.
func (a *Announcer) Run(ctx context.Context) {
	if err := a.AnnounceNow(ctx); err != nil {
		log.Printf("announcer: initial announce failed: %v", err)
	}

	ticker := a.clock.Ticker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.AnnounceNow(ctx); err != nil {
				log.Printf("announcer: periodic announce failed: %v", err)
			}
		}
	}
}

// AnnounceNow signs the current profile and publishes it to every topic in
// its visibility set. Per-topic publish failures are logged and do not
// abort the remaining topics; the next cycle self-heals.
func (a *Announcer) AnnounceNow(ctx context.Context) error {
	profile, ok := a.store.Touch()
	if !ok {
		return fmt.Errorf("no profile to announce")
	}

	topics := AnnounceTopics(profile)
	if len(topics) == 0 {
		return nil
	}

	timestamp := profile.LastSeen
	signature := a.identity.Sign(SigningBytes(profile, timestamp))
	ann := Announcement{
		Kind:          KindAnnouncement,
		SchemaVersion: SchemaVersion,
		Profile:       profile,
		Timestamp:     timestamp,
		Signature:     base64.StdEncoding.EncodeToString(signature),
		TTLSeconds:    a.ttlSeconds,
	}
	data, err := json.Marshal(ann)
	if err != nil {
		return fmt.Errorf("marshal announcement: %w", err)
	}

	for _, topic := range topics {
		if err := a.transport.SendToTopic(ctx, topic, data); err != nil {
			log.Printf("announcer: publish to %s failed: %v", topic, err)
		}
	}
	return nil
}
