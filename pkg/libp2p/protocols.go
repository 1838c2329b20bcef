package libp2p

const (
	// DirectoryProtocol carries directly-sent directory messages
	// (discovery responses) over a libp2p stream.
	DirectoryProtocol = "/mycelium-chat/directory/1.0.0"

	// DirectoryNamespace is the DHT rendezvous namespace directory nodes
	// advertise under to find each other.
	DirectoryNamespace = "mycelium-chat-directory"
)
