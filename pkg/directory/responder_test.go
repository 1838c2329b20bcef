package directory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// receivedResponse pulls the next direct response off a transport inbox,
// or reports that none arrived.
func receivedResponse(t *testing.T, peer *memTransport) (DiscoveryResponse, bool) {
	t.Helper()
	select {
	case msg := <-peer.inbox:
		var resp DiscoveryResponse
		require.NoError(t, json.Unmarshal(msg.Payload, &resp))
		require.Equal(t, KindResponse, resp.Kind)
		return resp, true
	case <-time.After(100 * time.Millisecond):
		return DiscoveryResponse{}, false
	}
}

func TestResponderAnswersEligibleQuery(t *testing.T) {
	bus := newMemBus()
	identity := newTestIdentity(t, "bob", "Bob")
	store := newTestStore(t, identity, "addr-bob", VisibilityPublic)
	responder := NewResponder(store, bus.transport("addr-bob"))
	requester := bus.transport("addr-alice")

	responder.Handle(context.Background(), DiscoveryQuery{
		Kind:             KindQuery,
		RequestID:        "req-1",
		RequesterAddress: "addr-alice",
	})

	resp, ok := receivedResponse(t, requester)
	require.True(t, ok)
	require.Equal(t, "req-1", resp.RequestID)
	require.Len(t, resp.Profiles, 1)
	require.Equal(t, "bob", resp.Profiles[0].IdentityID)
	require.NotZero(t, resp.Timestamp)
}

func TestResponderSilentWhenRejected(t *testing.T) {
	bus := newMemBus()
	requester := bus.transport("addr-alice")

	cases := []struct {
		name       string
		visibility Visibility
		groups     []string
		query      DiscoveryQuery
	}{
		{
			name:       "private never responds",
			visibility: VisibilityPrivate,
			query:      DiscoveryQuery{Kind: KindQuery, RequestID: "r", RequesterAddress: "addr-alice"},
		},
		{
			name:       "group filter without membership",
			visibility: VisibilityGroups,
			groups:     []string{"devs"},
			query: DiscoveryQuery{Kind: KindQuery, RequestID: "r", RequesterAddress: "addr-alice",
				Filters: Filters{Groups: []string{"ops"}}},
		},
		{
			name:       "status filter mismatch",
			visibility: VisibilityPublic,
			query: DiscoveryQuery{Kind: KindQuery, RequestID: "r", RequesterAddress: "addr-alice",
				Filters: Filters{Statuses: []Status{StatusAway}}},
		},
		{
			name:       "name filter mismatch",
			visibility: VisibilityPublic,
			query: DiscoveryQuery{Kind: KindQuery, RequestID: "r", RequesterAddress: "addr-alice",
				Filters: Filters{TextSearch: "zelda"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			identity := newTestIdentity(t, "bob", "Bob")
			store := newTestStore(t, identity, "addr-bob", tc.visibility, tc.groups...)
			responder := NewResponder(store, bus.transport("addr-bob"))

			responder.Handle(context.Background(), tc.query)

			_, ok := receivedResponse(t, requester)
			require.False(t, ok, "no response expected")
		})
	}
}

func TestResponderIgnoresOwnQuery(t *testing.T) {
	bus := newMemBus()
	identity := newTestIdentity(t, "bob", "Bob")
	store := newTestStore(t, identity, "addr-bob", VisibilityPublic)
	responder := NewResponder(store, bus.transport("addr-bob"))
	self := bus.transport("addr-bob")

	responder.Handle(context.Background(), DiscoveryQuery{
		Kind:             KindQuery,
		RequestID:        "req-self",
		RequesterAddress: "addr-bob",
	})

	_, ok := receivedResponse(t, self)
	require.False(t, ok, "must not answer a looped-back own query")
}

func TestResponderCaseInsensitiveNameFilter(t *testing.T) {
	bus := newMemBus()
	identity := newTestIdentity(t, "bob", "Bob Builder")
	store := newTestStore(t, identity, "addr-bob", VisibilityPublic)
	responder := NewResponder(store, bus.transport("addr-bob"))
	requester := bus.transport("addr-alice")

	responder.Handle(context.Background(), DiscoveryQuery{
		Kind:             KindQuery,
		RequestID:        "req-2",
		RequesterAddress: "addr-alice",
		Filters:          Filters{TextSearch: "BUILD"},
	})

	resp, ok := receivedResponse(t, requester)
	require.True(t, ok)
	require.Equal(t, "Bob Builder", resp.Profiles[0].DisplayName)
}
