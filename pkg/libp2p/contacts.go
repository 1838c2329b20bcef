package libp2p

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/mik-tf/mycelium-chat/pkg/directory"
)

// Contact is one entry in the out-of-band friends address book: a name
// mapped to a network address exchanged outside the directory protocol.
// Participants with friends visibility are reached through this book, not
// through broadcast announcements.
type Contact struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// ContactManager manages the contacts.
type ContactManager struct {
	contacts []Contact
	lock     sync.RWMutex
	filePath string
}

// NewContactManager creates a new ContactManager.
func NewContactManager(filePath string) (*ContactManager, error) {
	cm := &ContactManager{
		filePath: filePath,
	}
	if err := cm.LoadContacts(); err != nil {
		return nil, err
	}
	return cm, nil
}

// LoadContacts loads contacts from the JSON file.
func (cm *ContactManager) LoadContacts() error {
	cm.lock.Lock()
	defer cm.lock.Unlock()

	file, err := os.ReadFile(cm.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			cm.contacts = []Contact{}
			return nil
		}
		return err
	}

	return json.Unmarshal(file, &cm.contacts)
}

// SaveContacts saves contacts to the JSON file.
func (cm *ContactManager) SaveContacts() error {
	cm.lock.RLock()
	defer cm.lock.RUnlock()

	file, err := json.MarshalIndent(cm.contacts, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(cm.filePath, file, 0644)
}

// AddContact adds a contact, replacing any existing entry with the same
// name. Names are the book's key: re-befriending someone updates their
// address rather than duplicating them.
func (cm *ContactManager) AddContact(name, address string) {
	cm.lock.Lock()
	defer cm.lock.Unlock()

	for i, contact := range cm.contacts {
		if contact.Name == name {
			cm.contacts[i].Address = address
			return
		}
	}
	cm.contacts = append(cm.contacts, Contact{Name: name, Address: address})
}

// AddFromProfile records a discovered participant as a contact, keyed by
// their display name. This is how a directory discovery becomes a friend
// relationship: the address moves from the broadcast protocol into the
// out-of-band book.
func (cm *ContactManager) AddFromProfile(p directory.Profile) Contact {
	name := p.DisplayName
	if name == "" {
		name = p.IdentityID
	}
	cm.AddContact(name, p.NetworkAddress)
	return Contact{Name: name, Address: p.NetworkAddress}
}

// GetContact returns a contact by name.
func (cm *ContactManager) GetContact(name string) (Contact, bool) {
	cm.lock.RLock()
	defer cm.lock.RUnlock()

	for _, contact := range cm.contacts {
		if contact.Name == name {
			return contact, true
		}
	}
	return Contact{}, false
}

// GetContactByAddress returns a contact by network address.
func (cm *ContactManager) GetContactByAddress(address string) (Contact, bool) {
	cm.lock.RLock()
	defer cm.lock.RUnlock()

	for _, contact := range cm.contacts {
		if contact.Address == address {
			return contact, true
		}
	}
	return Contact{}, false
}

// ListContacts returns all contacts.
func (cm *ContactManager) ListContacts() []Contact {
	cm.lock.RLock()
	defer cm.lock.RUnlock()

	return cm.contacts
}
