package directory

import (
	"context"
	"time"
)

// ReceivedMessage is one inbound payload with the topic it arrived on.
// Directly-sent messages carry an empty topic.
type ReceivedMessage struct {
	Topic   string
	Payload []byte
}

// Transport is the topic-addressed, best-effort message transport the
// directory runs over. Delivery is not guaranteed and no ordering is
// assumed across topics or senders.
type Transport interface {
	// SendToTopic publishes a payload to every subscriber of a topic.
	SendToTopic(ctx context.Context, topic string, payload []byte) error

	// SendDirect delivers a payload to a single participant's network
	// address, bypassing topic broadcast.
	SendDirect(ctx context.Context, address string, payload []byte) error

	// Receive blocks up to timeout and returns the batch of messages that
	// arrived on the given topics (plus any directly-sent messages). An
	// empty batch with a nil error means the timeout elapsed quietly.
	Receive(ctx context.Context, topics []string, timeout time.Duration) ([]ReceivedMessage, error)
}
