package directory

import (
	"sync"
	"time"
)

// Entry is one discovered participant together with the advisory expiry
// hint from its most recent announcement. The cache never evicts;
// staleness is the consumer's policy call.
type Entry struct {
	Profile    Profile
	TTLSeconds int
}

// Expired reports whether the entry's TTL hint has elapsed relative to
// its lastSeen. Entries without a TTL never expire.
func (e Entry) Expired(now time.Time) bool {
	if e.TTLSeconds <= 0 {
		return false
	}
	return now.UnixMilli() > e.Profile.LastSeen+int64(e.TTLSeconds)*1000
}

// Cache is the concurrent-safe map of other participants' profiles,
// written by the listener and the discovery coordinator and read by
// external consumers.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	subs    []func(Profile)
}

// NewCache creates an empty discovered-users cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// OnUserDiscovered registers a callback fired whenever the cache stores a
// new entry or one whose profile materially changed. Callbacks run on the
// upserting goroutine and must not block.
func (c *Cache) OnUserDiscovered(fn func(Profile)) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// Upsert stores a profile keyed by identityId, replacing any entry with an
// older lastSeen. It reports whether the profile was stored.
func (c *Cache) Upsert(p Profile, ttlSeconds int) bool {
	c.mu.Lock()
	existing, ok := c.entries[p.IdentityID]
	if ok && existing.Profile.LastSeen > p.LastSeen {
		c.mu.Unlock()
		return false
	}
	notify := !ok || materiallyChanged(existing.Profile, p)
	c.entries[p.IdentityID] = Entry{Profile: p.Clone(), TTLSeconds: ttlSeconds}
	var subs []func(Profile)
	if notify {
		subs = append(subs, c.subs...)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(p.Clone())
	}
	return true
}

// Get returns the cached entry for an identityId.
func (c *Cache) Get(identityID string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[identityID]
	if !ok {
		return Entry{}, false
	}
	e.Profile = e.Profile.Clone()
	return e, true
}

// List returns a snapshot of all cached profiles. Order carries no
// meaning.
func (c *Cache) List() []Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	profiles := make([]Profile, 0, len(c.entries))
	for _, e := range c.entries {
		profiles = append(profiles, e.Profile.Clone())
	}
	return profiles
}

// Entries returns a snapshot of all cached entries with their TTL hints.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		e.Profile = e.Profile.Clone()
		entries = append(entries, e)
	}
	return entries
}

// materiallyChanged reports whether a profile update is worth notifying
// subscribers about; a bare lastSeen refresh is not.
func materiallyChanged(old, new Profile) bool {
	if old.DisplayName != new.DisplayName ||
		old.AvatarRef != new.AvatarRef ||
		old.Status != new.Status ||
		old.Visibility != new.Visibility ||
		old.NetworkAddress != new.NetworkAddress {
		return true
	}
	return !sameGroupSet(old.Groups, new.Groups)
}

// sameGroupSet compares group memberships as sets; the order a peer
// happens to announce them in carries no meaning.
func sameGroupSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	members := make(map[string]bool, len(a))
	for _, g := range a {
		members[g] = true
	}
	for _, g := range b {
		if !members[g] {
			return false
		}
	}
	return true
}
