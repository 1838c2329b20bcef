package main

import (
	"flag"
	"log"

	"github.com/mik-tf/mycelium-chat/pkg/libp2p"
)

func main() {
	var port int
	var dataDir string
	var identityID string
	var displayName string
	flag.IntVar(&port, "port", 0, "Listen port (random if not specified)")
	flag.StringVar(&dataDir, "data", "", "Data directory (default ~/.mycelium-chat)")
	flag.StringVar(&identityID, "id", "", "Identity ID (default: derived peer ID)")
	flag.StringVar(&displayName, "name", "", "Display name shown to other users")
	flag.Parse()

	if err := libp2p.StartDirectory(port, dataDir, identityID, displayName); err != nil {
		log.Fatalf("Failed to start directory: %v", err)
	}
}
