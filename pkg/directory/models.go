package directory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Status is a participant's presence state.
type Status string

const (
	StatusOnline       Status = "online"
	StatusAway         Status = "away"
	StatusOffline      Status = "offline"
	StatusDoNotDisturb Status = "doNotDisturb"
)

// Visibility controls which topics receive announcements and which
// queries the participant answers.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityGroups  Visibility = "groups"
	VisibilityFriends Visibility = "friends"
	VisibilityPrivate Visibility = "private"
)

// Profile is one participant's public presence record.
type Profile struct {
	IdentityID     string     `json:"identityId"`
	NetworkAddress string     `json:"networkAddress"`
	DisplayName    string     `json:"displayName"`
	AvatarRef      string     `json:"avatarRef,omitempty"`
	Status         Status     `json:"status"`
	Visibility     Visibility `json:"visibility"`
	Groups         []string   `json:"groups,omitempty"`
	LastSeen       int64      `json:"lastSeen"` // ms since epoch
	PublicKey      string     `json:"publicKey"`
}

// Message kind discriminators.
const (
	KindAnnouncement = "announcement"
	KindQuery        = "query"
	KindResponse     = "response"
)

// SchemaVersion is the wire schema carried by announcements.
const SchemaVersion = "1.0"

// Announcement is a signed envelope broadcasting a Profile.
type Announcement struct {
	Kind          string  `json:"kind"`
	SchemaVersion string  `json:"schemaVersion"`
	Profile       Profile `json:"profile"`
	Timestamp     int64   `json:"timestamp"`
	Signature     string  `json:"signature"` // base64 over SigningBytes
	TTLSeconds    int     `json:"ttlSeconds"`
}

// Filters narrows a discovery query.
type Filters struct {
	Groups     []string `json:"groups,omitempty"`
	Statuses   []Status `json:"statuses,omitempty"`
	TextSearch string   `json:"textSearch,omitempty"`
}

// DiscoveryQuery is a broadcast request for matching profiles.
type DiscoveryQuery struct {
	Kind             string  `json:"kind"`
	RequestID        string  `json:"requestId"`
	RequesterAddress string  `json:"requesterAddress"`
	Filters          Filters `json:"filters"`
}

// DiscoveryResponse is a direct reply to a query.
type DiscoveryResponse struct {
	Kind      string    `json:"kind"`
	RequestID string    `json:"requestId"`
	Profiles  []Profile `json:"profiles"`
	Timestamp int64     `json:"timestamp"`
}

// DecodeMessage parses a wire payload into one of the three message types
// by its kind discriminator.
func DecodeMessage(data []byte) (any, error) {
	var env struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	switch env.Kind {
	case KindAnnouncement:
		var a Announcement
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("malformed announcement: %w", err)
		}
		return &a, nil
	case KindQuery:
		var q DiscoveryQuery
		if err := json.Unmarshal(data, &q); err != nil {
			return nil, fmt.Errorf("malformed query: %w", err)
		}
		return &q, nil
	case KindResponse:
		var r DiscoveryResponse
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("malformed response: %w", err)
		}
		return &r, nil
	default:
		return nil, fmt.Errorf("unknown message kind %q", env.Kind)
	}
}

// SigningBytes returns the canonical serialization of a profile and
// timestamp that announcement signatures cover. Groups are sorted so the
// bytes are stable regardless of how the profile was built.
func SigningBytes(p Profile, timestamp int64) []byte {
	canonical := p
	if len(p.Groups) > 0 {
		canonical.Groups = append([]string(nil), p.Groups...)
		sort.Strings(canonical.Groups)
	}

	data, err := json.Marshal(struct {
		Profile   Profile `json:"profile"`
		Timestamp int64   `json:"timestamp"`
	}{canonical, timestamp})
	if err != nil {
		// Profile contains only marshalable fields.
		panic(fmt.Sprintf("marshal signing bytes: %v", err))
	}
	return data
}

// Clone returns a copy of the profile with its own groups slice.
func (p Profile) Clone() Profile {
	c := p
	if p.Groups != nil {
		c.Groups = append([]string(nil), p.Groups...)
	}
	return c
}

// InGroup reports whether the profile is a member of the group.
func (p Profile) InGroup(group string) bool {
	for _, g := range p.Groups {
		if g == group {
			return true
		}
	}
	return false
}

func groupsIntersect(a, b []string) bool {
	for _, g := range a {
		for _, h := range b {
			if g == h {
				return true
			}
		}
	}
	return false
}

// AcceptAnnouncement applies the announcer's own visibility rule against
// the local participant: should the local participant cache this remote
// profile. Private never broadcasts, friends rely on out-of-band address
// exchange, so broadcast announcements claiming either are refused.
func AcceptAnnouncement(remote, local Profile) bool {
	switch remote.Visibility {
	case VisibilityPublic:
		return true
	case VisibilityGroups:
		return groupsIntersect(remote.Groups, local.Groups)
	default:
		return false
	}
}

// ShouldRespond decides whether a participant with the given local profile
// answers an incoming discovery query. Rules are evaluated in order; the
// first failing rule rejects.
func ShouldRespond(q DiscoveryQuery, local Profile) bool {
	if local.Visibility == VisibilityPrivate {
		return false
	}
	if len(q.Filters.Groups) > 0 && local.Visibility == VisibilityGroups {
		if !groupsIntersect(q.Filters.Groups, local.Groups) {
			return false
		}
	}
	if len(q.Filters.Statuses) > 0 {
		member := false
		for _, s := range q.Filters.Statuses {
			if s == local.Status {
				member = true
				break
			}
		}
		if !member {
			return false
		}
	}
	if q.Filters.TextSearch != "" {
		needle := strings.ToLower(q.Filters.TextSearch)
		if !strings.Contains(strings.ToLower(local.DisplayName), needle) {
			return false
		}
	}
	return true
}
