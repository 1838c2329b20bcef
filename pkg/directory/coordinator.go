package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// pendingQuery accumulates responses for one in-flight discover call.
type pendingQuery struct {
	profiles map[string]Profile // identityId -> newest profile
}

// Coordinator issues discovery queries and aggregates the responses that
// arrive within a fixed collection window. Completion is determined by the
// time budget alone: the number of responders is never known in advance.
type Coordinator struct {
	store      *ProfileStore
	transport  Transport
	cache      *Cache
	clock      clock.Clock
	window     time.Duration
	ttlSeconds int

	mu      sync.Mutex
	pending map[string]*pendingQuery
}

// NewCoordinator creates a discovery coordinator with the given collection
// window. Delivered profiles are written to the discovered-users cache
// with the given TTL hint.
func NewCoordinator(store *ProfileStore, transport Transport, cache *Cache, clk clock.Clock, window time.Duration, ttlSeconds int) *Coordinator {
	return &Coordinator{
		store:      store,
		transport:  transport,
		cache:      cache,
		clock:      clk,
		window:     window,
		ttlSeconds: ttlSeconds,
		pending:    make(map[string]*pendingQuery),
	}
}

// Discover broadcasts a query, collects matching responses for the
// collection window, and returns the deduplicated profiles. Zero responses
// yield an empty result, not an error. Concurrent calls are independent.
func (c *Coordinator) Discover(ctx context.Context, filters Filters) ([]Profile, error) {
	local, ok := c.store.Get()
	if !ok {
		return nil, fmt.Errorf("discover: no local profile")
	}

	requestID := uuid.NewString()
	query := DiscoveryQuery{
		Kind:             KindQuery,
		RequestID:        requestID,
		RequesterAddress: local.NetworkAddress,
		Filters:          filters,
	}
	data, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("discover: marshal query: %w", err)
	}

	c.mu.Lock()
	c.pending[requestID] = &pendingQuery{profiles: make(map[string]Profile)}
	c.mu.Unlock()

	// Publish per topic is independent best-effort; a failed topic still
	// leaves the others collecting.
	for _, topic := range QueryTopics(filters) {
		if err := c.transport.SendToTopic(ctx, topic, data); err != nil {
			log.Printf("discover: publish to %s failed: %v", topic, err)
		}
	}

	timer := c.clock.Timer(c.window)
	defer timer.Stop()
	select {
	case <-timer.C:
		return c.finalize(requestID), nil
	case <-ctx.Done():
		// Early cancellation discards partial results.
		c.finalize(requestID)
		return nil, ctx.Err()
	}
}

// Deliver routes one inbound response to its pending collection, if any.
// Responses for unknown or already-finalized requestIds are dropped.
// Accepted profiles also feed the discovered-users cache, the same sink
// verified announcements write to.
func (c *Coordinator) Deliver(resp *DiscoveryResponse) {
	local, _ := c.store.Get()

	c.mu.Lock()
	p, ok := c.pending[resp.RequestID]
	if !ok {
		c.mu.Unlock()
		return
	}
	accepted := make([]Profile, 0, len(resp.Profiles))
	for _, profile := range resp.Profiles {
		// A misbehaving responder must not plant a private profile, nor
		// echo the local participant back as a discovery.
		if profile.Visibility == VisibilityPrivate || profile.IdentityID == "" {
			continue
		}
		if profile.IdentityID == local.IdentityID {
			continue
		}
		accepted = append(accepted, profile.Clone())
		if existing, ok := p.profiles[profile.IdentityID]; ok && existing.LastSeen > profile.LastSeen {
			continue
		}
		p.profiles[profile.IdentityID] = profile.Clone()
	}
	c.mu.Unlock()

	// Upsert outside the lock: cache subscribers run on this goroutine.
	for _, profile := range accepted {
		c.cache.Upsert(profile, c.ttlSeconds)
	}
}

// CancelAll deregisters every in-flight collection, discarding partial
// results. Used at teardown.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = make(map[string]*pendingQuery)
}

func (c *Coordinator) finalize(requestID string) []Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[requestID]
	if !ok {
		return nil
	}
	delete(c.pending, requestID)
	profiles := make([]Profile, 0, len(p.profiles))
	for _, profile := range p.profiles {
		profiles = append(profiles, profile)
	}
	return profiles
}
