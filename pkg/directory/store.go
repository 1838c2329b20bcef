package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrInvalidProfile is returned by profile store mutators when a profile
// invariant is violated. It is the only error class surfaced as a hard
// failure to local application code.
var ErrInvalidProfile = errors.New("invalid profile")

// ProfileStore holds the local participant's profile and persists it
// across restarts. Mutators bump lastSeen and notify the registered
// change callback so the announcer can republish.
type ProfileStore struct {
	mu       sync.RWMutex
	profile  *Profile
	filePath string
	onChange func(Profile)
	nowMS    func() int64
}

// NewProfileStore creates a store backed by the given JSON file, loading
// any previously persisted profile. An empty filePath disables
// persistence.
func NewProfileStore(filePath string) (*ProfileStore, error) {
	s := &ProfileStore{
		filePath: filePath,
		nowMS:    func() int64 { return time.Now().UnixMilli() },
	}
	if filePath != "" {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// OnChange registers the callback invoked after every successful
// mutation. Only one callback is supported; the service owns it.
func (s *ProfileStore) OnChange(fn func(Profile)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Get returns the current profile, if one exists.
func (s *ProfileStore) Get() (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return Profile{}, false
	}
	return s.profile.Clone(), true
}

// Set validates and stores a profile. Once a profile exists its
// identityId is immutable.
func (s *ProfileStore) Set(p Profile) error {
	s.mu.Lock()
	if err := s.validate(p); err != nil {
		s.mu.Unlock()
		return err
	}

	p = p.Clone()
	if p.Visibility != VisibilityGroups {
		p.Groups = nil
	}
	p.LastSeen = s.bumpedLastSeen(p.LastSeen)

	s.profile = &p
	if err := s.persist(); err != nil {
		s.mu.Unlock()
		return err
	}
	fn := s.onChange
	stored := p.Clone()
	s.mu.Unlock()

	if fn != nil {
		fn(stored)
	}
	return nil
}

// UpdateStatus changes the presence status, bumping lastSeen.
func (s *ProfileStore) UpdateStatus(status Status) error {
	return s.mutate(func(p *Profile) { p.Status = status })
}

// UpdateVisibility changes the visibility level and group memberships,
// bumping lastSeen. Groups are dropped unless visibility is groups.
func (s *ProfileStore) UpdateVisibility(v Visibility, groups []string) error {
	return s.mutate(func(p *Profile) {
		p.Visibility = v
		if v == VisibilityGroups {
			p.Groups = append([]string(nil), groups...)
		} else {
			p.Groups = nil
		}
	})
}

// Touch bumps lastSeen to now and persists, without firing the change
// callback. The announcer calls this on every periodic publish.
func (s *ProfileStore) Touch() (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return Profile{}, false
	}
	s.profile.LastSeen = s.bumpedLastSeen(0)
	if err := s.persist(); err != nil {
		// Next mutation or announce cycle retries the write.
		fmt.Fprintf(os.Stderr, "profile store: persist failed: %v\n", err)
	}
	return s.profile.Clone(), true
}

func (s *ProfileStore) mutate(apply func(*Profile)) error {
	s.mu.Lock()
	if s.profile == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: no profile set", ErrInvalidProfile)
	}
	updated := s.profile.Clone()
	apply(&updated)
	if err := s.validate(updated); err != nil {
		s.mu.Unlock()
		return err
	}
	updated.LastSeen = s.bumpedLastSeen(0)
	s.profile = &updated
	if err := s.persist(); err != nil {
		s.mu.Unlock()
		return err
	}
	fn := s.onChange
	stored := updated.Clone()
	s.mu.Unlock()

	if fn != nil {
		fn(stored)
	}
	return nil
}

// validate checks profile invariants. Caller holds the lock.
func (s *ProfileStore) validate(p Profile) error {
	if p.IdentityID == "" {
		return fmt.Errorf("%w: empty identityId", ErrInvalidProfile)
	}
	if s.profile != nil && s.profile.IdentityID != p.IdentityID {
		return fmt.Errorf("%w: identityId cannot change from %q to %q",
			ErrInvalidProfile, s.profile.IdentityID, p.IdentityID)
	}
	switch p.Status {
	case StatusOnline, StatusAway, StatusOffline, StatusDoNotDisturb:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidProfile, p.Status)
	}
	switch p.Visibility {
	case VisibilityPublic, VisibilityGroups, VisibilityFriends, VisibilityPrivate:
	default:
		return fmt.Errorf("%w: unknown visibility %q", ErrInvalidProfile, p.Visibility)
	}
	return nil
}

// bumpedLastSeen returns a lastSeen that never goes backwards, even if the
// wall clock does. Caller holds the lock.
func (s *ProfileStore) bumpedLastSeen(candidate int64) int64 {
	now := s.nowMS()
	if candidate > now {
		now = candidate
	}
	if s.profile != nil && s.profile.LastSeen > now {
		now = s.profile.LastSeen
	}
	return now
}

// persist writes the profile to disk via a temp file rename so a crash
// mid-write cannot corrupt the stored profile. Caller holds the lock.
func (s *ProfileStore) persist() error {
	if s.filePath == "" || s.profile == nil {
		return nil
	}
	data, err := json.MarshalIndent(s.profile, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.filePath)
}

func (s *ProfileStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("corrupt profile file %s: %w", s.filePath, err)
	}
	s.profile = &p
	return nil
}
