package libp2p

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mik-tf/mycelium-chat/pkg/directory"
)

// StartDirectoryCLI runs the interactive command loop against a started
// discovery service.
func (n *DirectoryNode) StartDirectoryCLI(svc *directory.Service) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Printf("\n✅ Decentralized User Directory Started!\n")
	fmt.Printf("Commands:\n")
	fmt.Printf("  /profile                     - Show your profile\n")
	fmt.Printf("  /status <status>             - Set status (online, away, offline, doNotDisturb)\n")
	fmt.Printf("  /visibility <level> [groups] - Set visibility (public, groups, friends, private)\n")
	fmt.Printf("  /discover [text]             - Find users, optionally by display name\n")
	fmt.Printf("  /discover-group <g1,g2>      - Find users in specific groups\n")
	fmt.Printf("  /users                       - List discovered users\n")
	fmt.Printf("  /announce                    - Re-announce your profile now\n")
	fmt.Printf("  /contacts                    - List contacts\n")
	fmt.Printf("  /add-contact <name> <addr>   - Add a contact (out-of-band friend exchange)\n")
	fmt.Printf("  /add-friend <identityId>     - Save a discovered user as a contact\n")
	fmt.Printf("  /peers                       - List network peers\n")
	fmt.Printf("  /connect <addr>              - Connect to a specific peer\n")
	fmt.Printf("  /quit                        - Exit\n")
	fmt.Printf("\nNetwork is fully decentralized - no directory server needed!\n")
	fmt.Print("> ")

	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			fmt.Print("> ")
			continue
		}

		switch {
		case input == "/quit":
			fmt.Println("🔌 Shutting down directory node...")
			return

		case input == "/profile":
			profile, ok := svc.Profile()
			if !ok {
				fmt.Println("No profile set.")
				break
			}
			printProfile(profile)

		case strings.HasPrefix(input, "/status "):
			status := directory.Status(strings.TrimSpace(input[8:]))
			if err := svc.UpdateStatus(status); err != nil {
				log.Printf("❌ Failed to update status: %v\n", err)
			} else {
				fmt.Printf("✅ Status set to %s\n", status)
			}

		case strings.HasPrefix(input, "/visibility "):
			parts := strings.Fields(input[12:])
			if len(parts) == 0 {
				fmt.Println("Usage: /visibility <public|groups|friends|private> [group1,group2]")
				break
			}
			var groups []string
			if len(parts) > 1 {
				groups = splitGroups(parts[1])
			}
			if err := svc.UpdateVisibility(directory.Visibility(parts[0]), groups); err != nil {
				log.Printf("❌ Failed to update visibility: %v\n", err)
			} else {
				fmt.Printf("✅ Visibility set to %s\n", parts[0])
			}

		case strings.HasPrefix(input, "/discover-group "):
			groups := splitGroups(strings.TrimSpace(input[16:]))
			if len(groups) == 0 {
				fmt.Println("Usage: /discover-group <group1,group2>")
				break
			}
			n.runDiscover(svc, directory.Filters{Groups: groups})

		case input == "/discover":
			n.runDiscover(svc, directory.Filters{})

		case strings.HasPrefix(input, "/discover "):
			text := strings.TrimSpace(input[10:])
			n.runDiscover(svc, directory.Filters{TextSearch: text})

		case input == "/users":
			entries := svc.Cache().Entries()
			if len(entries) == 0 {
				fmt.Println("No users discovered yet. Try /discover.")
				break
			}
			fmt.Printf("Discovered users (%d):\n", len(entries))
			now := time.Now()
			for _, e := range entries {
				stale := ""
				if e.Expired(now) {
					stale = " (stale)"
				}
				fmt.Printf("  - %s [%s] %s%s\n",
					e.Profile.DisplayName, e.Profile.Status, e.Profile.IdentityID, stale)
			}

		case input == "/announce":
			if err := svc.Announce(n.ctx); err != nil {
				log.Printf("❌ Failed to announce: %v\n", err)
			} else {
				fmt.Println("✅ Profile announced")
			}

		case input == "/contacts":
			contacts := n.contacts.ListContacts()
			if len(contacts) == 0 {
				fmt.Println("No contacts found. Use /add-contact <name> <address> to add one.")
			} else {
				fmt.Println("Contacts:")
				for _, contact := range contacts {
					fmt.Printf("  - %s: %s\n", contact.Name, contact.Address)
				}
			}

		case strings.HasPrefix(input, "/add-contact "):
			parts := strings.SplitN(input[13:], " ", 2)
			if len(parts) < 2 {
				fmt.Println("Usage: /add-contact <name> <address>")
				break
			}
			n.contacts.AddContact(parts[0], strings.TrimSpace(parts[1]))
			if err := n.contacts.SaveContacts(); err != nil {
				log.Printf("❌ Failed to save contacts: %v\n", err)
			} else {
				fmt.Printf("✅ Contact '%s' added.\n", parts[0])
			}

		case strings.HasPrefix(input, "/add-friend "):
			id := strings.TrimSpace(input[12:])
			entry, ok := svc.Cache().Get(id)
			if !ok {
				fmt.Printf("No discovered user with id %s. Try /discover first.\n", id)
				break
			}
			contact := n.contacts.AddFromProfile(entry.Profile)
			if err := n.contacts.SaveContacts(); err != nil {
				log.Printf("❌ Failed to save contacts: %v\n", err)
			} else {
				fmt.Printf("✅ Saved %s (%s) as a contact.\n", contact.Name, contact.Address)
			}

		case input == "/peers":
			n.ListPeers()

		case strings.HasPrefix(input, "/connect "):
			addr := strings.TrimSpace(input[9:])
			if err := n.ConnectToPeer(addr); err != nil {
				fmt.Printf("❌ Connection failed: %v\n", err)
			} else {
				fmt.Printf("✅ Connected successfully\n")
			}

		default:
			fmt.Println("Unknown command. Type /quit to exit.")
		}
		fmt.Print("> ")
	}
}

func (n *DirectoryNode) runDiscover(svc *directory.Service, filters directory.Filters) {
	fmt.Println("⏳ Discovering users...")
	profiles, err := svc.Discover(n.ctx, filters)
	if err != nil {
		log.Printf("❌ Discovery failed: %v\n", err)
		return
	}
	if len(profiles) == 0 {
		fmt.Println("No users found.")
		return
	}
	fmt.Printf("Found %d user(s):\n", len(profiles))
	for _, p := range profiles {
		printProfile(p)
	}
}

func printProfile(p directory.Profile) {
	fmt.Printf("  - %s [%s] visibility=%s\n", p.DisplayName, p.Status, p.Visibility)
	fmt.Printf("    id: %s\n", p.IdentityID)
	fmt.Printf("    address: %s\n", p.NetworkAddress)
	if len(p.Groups) > 0 {
		fmt.Printf("    groups: %s\n", strings.Join(p.Groups, ", "))
	}
}

func splitGroups(s string) []string {
	var groups []string
	for _, g := range strings.Split(s, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

// StartDirectory is the main entry point: it builds the node, seeds the
// profile, starts the discovery service, and hands off to the CLI.
func StartDirectory(port int, baseDir, identityID, displayName string) error {
	if port == 0 {
		// Use a random port to allow multiple nodes on the same machine
		port = 8000 + int(time.Now().Unix()%1000)
	}

	identity, err := LoadNodeIdentity(baseDir, identityID, displayName, "")
	if err != nil {
		return err
	}

	node, err := NewDirectoryNode(port, baseDir, identity)
	if err != nil {
		return fmt.Errorf("failed to create directory node: %w", err)
	}
	defer func() {
		if err := node.Close(); err != nil {
			log.Printf("Error closing node: %v", err)
		}
	}()

	store, err := directory.NewProfileStore(filepath.Join(node.DataDir(), "profile.json"))
	if err != nil {
		return fmt.Errorf("failed to open profile store: %w", err)
	}
	if err := seedProfile(store, identity, node.LocalAddress()); err != nil {
		return err
	}

	svc := directory.NewService(store, node, identity, directory.DefaultConfig())
	if err := svc.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start discovery service: %w", err)
	}
	defer svc.Stop()

	svc.OnUserDiscovered(func(p directory.Profile) {
		fmt.Printf("\r🔍 Discovered user: %s [%s]\n> ", p.DisplayName, p.Status)
	})

	if err := node.Bootstrap(); err != nil {
		return fmt.Errorf("failed to bootstrap: %w", err)
	}

	time.Sleep(3 * time.Second)

	node.StartDirectoryCLI(svc)
	return nil
}

// seedProfile creates the initial profile on first run, or refreshes the
// mutable seed fields on later runs.
func seedProfile(store *directory.ProfileStore, identity *NodeIdentity, address string) error {
	seed := identity.Seed()
	if existing, ok := store.Get(); ok {
		existing.NetworkAddress = address
		if seed.DisplayName != "" {
			existing.DisplayName = seed.DisplayName
		}
		return store.Set(existing)
	}

	displayName := seed.DisplayName
	if displayName == "" {
		displayName = seed.IdentityID
	}
	return store.Set(directory.Profile{
		IdentityID:     seed.IdentityID,
		NetworkAddress: address,
		DisplayName:    displayName,
		AvatarRef:      seed.AvatarRef,
		Status:         directory.StatusOnline,
		Visibility:     directory.VisibilityPublic,
		PublicKey:      seed.PublicKey,
	})
}
