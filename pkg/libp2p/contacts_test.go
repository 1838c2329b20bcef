package libp2p

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mik-tf/mycelium-chat/pkg/directory"
)

func TestContactsUpsertByName(t *testing.T) {
	path := filepath.Join(newTestDir(t), "contacts.json")
	cm, err := NewContactManager(path)
	require.NoError(t, err)

	cm.AddContact("alice", "addr-1")
	cm.AddContact("alice", "addr-2")
	require.Len(t, cm.ListContacts(), 1, "same name updates, not duplicates")

	contact, ok := cm.GetContact("alice")
	require.True(t, ok)
	require.Equal(t, "addr-2", contact.Address)
}

func TestContactsFromDiscoveredProfile(t *testing.T) {
	path := filepath.Join(newTestDir(t), "contacts.json")
	cm, err := NewContactManager(path)
	require.NoError(t, err)

	contact := cm.AddFromProfile(directory.Profile{
		IdentityID:     "bob-id",
		NetworkAddress: "addr-bob",
		DisplayName:    "Bob",
	})
	require.Equal(t, "Bob", contact.Name)
	require.Equal(t, "addr-bob", contact.Address)

	// A profile without a display name falls back to its identityId.
	contact = cm.AddFromProfile(directory.Profile{
		IdentityID:     "carol-id",
		NetworkAddress: "addr-carol",
	})
	require.Equal(t, "carol-id", contact.Name)

	require.NoError(t, cm.SaveContacts())
	reloaded, err := NewContactManager(path)
	require.NoError(t, err)
	require.Len(t, reloaded.ListContacts(), 2)
	bob, ok := reloaded.GetContactByAddress("addr-bob")
	require.True(t, ok)
	require.Equal(t, "Bob", bob.Name)
}
