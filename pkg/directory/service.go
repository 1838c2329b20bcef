package directory

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Config carries the tunable parameters of the discovery service.
type Config struct {
	AnnounceInterval time.Duration // how often the profile is re-announced
	CollectionWindow time.Duration // how long discover() collects responses
	ReceiveTimeout   time.Duration // per-call transport receive bound
	TTLSeconds       int           // advisory expiry hint on announcements
	Verbose          bool          // log dropped messages
}

// DefaultConfig returns the protocol defaults.
func DefaultConfig() Config {
	return Config{
		AnnounceInterval: 300 * time.Second,
		CollectionWindow: 5 * time.Second,
		ReceiveTimeout:   2 * time.Second,
		TTLSeconds:       300,
	}
}

// Service is the user-directory and discovery subsystem: it owns the
// announcer timer, the listener loop, and any number of in-flight
// discovery collections, and exposes the directory to external consumers.
type Service struct {
	cfg         Config
	store       *ProfileStore
	cache       *Cache
	announcer   *Announcer
	listener    *Listener
	coordinator *Coordinator

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewService wires the directory components over the given transport and
// identity. The profile store must hold a profile before Start.
func NewService(store *ProfileStore, transport Transport, identity Identity, cfg Config) *Service {
	return newService(store, transport, identity, cfg, clock.New())
}

func newService(store *ProfileStore, transport Transport, identity Identity, cfg Config, clk clock.Clock) *Service {
	cache := NewCache()
	coordinator := NewCoordinator(store, transport, cache, clk, cfg.CollectionWindow, cfg.TTLSeconds)
	responder := NewResponder(store, transport)
	listener := NewListener(store, transport, identity, cache, responder, coordinator, cfg.ReceiveTimeout)
	listener.SetVerbose(cfg.Verbose)
	announcer := NewAnnouncer(store, transport, identity, clk, cfg.AnnounceInterval, cfg.TTLSeconds)

	return &Service{
		cfg:         cfg,
		store:       store,
		cache:       cache,
		announcer:   announcer,
		listener:    listener,
		coordinator: coordinator,
	}
}

// Start launches the announce timer and the receive loop. Profile
// mutations from here on trigger an immediate re-announcement.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("service already started")
	}
	if _, ok := s.store.Get(); !ok {
		return fmt.Errorf("%w: start requires a profile", ErrInvalidProfile)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})

	s.store.OnChange(func(Profile) {
		go func() {
			if err := s.announcer.AnnounceNow(ctx); err != nil && ctx.Err() == nil {
				log.Printf("service: re-announce after profile change failed: %v", err)
			}
		}()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.announcer.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.listener.Run(ctx)
	}()
	go func() {
		wg.Wait()
		close(s.stopped)
	}()
	return nil
}

// Stop cancels the announce timer, the receive loop, and every in-flight
// discovery collection, then waits for the loops to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	stopped := s.stopped
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	s.store.OnChange(nil)
	cancel()
	s.coordinator.CancelAll()
	<-stopped
}

// Announce signs and publishes a fresh announcement immediately.
func (s *Service) Announce(ctx context.Context) error {
	return s.announcer.AnnounceNow(ctx)
}

// Discover broadcasts a query and returns the profiles that responded
// within the collection window.
func (s *Service) Discover(ctx context.Context, filters Filters) ([]Profile, error) {
	return s.coordinator.Discover(ctx, filters)
}

// DiscoveredUsers returns a snapshot of every cached remote profile.
func (s *Service) DiscoveredUsers() []Profile {
	return s.cache.List()
}

// Cache exposes the discovered-users cache for consumers that need TTL
// hints or point lookups.
func (s *Service) Cache() *Cache {
	return s.cache
}

// OnUserDiscovered subscribes to cache updates for new or materially
// changed entries.
func (s *Service) OnUserDiscovered(fn func(Profile)) {
	s.cache.OnUserDiscovered(fn)
}

// Profile returns the local profile.
func (s *Service) Profile() (Profile, bool) {
	return s.store.Get()
}

// UpdateStatus changes the local presence status and re-announces.
func (s *Service) UpdateStatus(status Status) error {
	return s.store.UpdateStatus(status)
}

// UpdateVisibility changes the local visibility level and re-announces.
func (s *Service) UpdateVisibility(v Visibility, groups []string) error {
	return s.store.UpdateVisibility(v, groups)
}
