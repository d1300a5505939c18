package broker

import (
	"context"

	"github.com/relaymesh/gateway/internal/stream"
)

// A Message is a single message received from a queue subscription.
type Message struct {
	// Data is the message payload.
	Data []byte

	// Ack acknowledges the message with the broker, preventing redelivery.
	Ack func() error
}

// Client is the interface to the gateway's message broker.
type Client interface {
	// Publish publishes data on the given channel.
	Publish(ctx context.Context, channel string, data []byte) error

	// QueueSubscribe subscribes to the given channel as a member of
	// queueGroup, so that each message is delivered to at most one member of
	// the group across all gateway instances.
	//
	// The subscription is durable: messages published while no member with
	// the same durableName is subscribed are delivered upon resubscription.
	// Messages must be acknowledged explicitly.
	//
	// The returned stream ends, without error, when ctx is canceled.
	QueueSubscribe(
		ctx context.Context,
		channel, queueGroup, durableName string,
	) (stream.Stream[Message], error)
}

// SubscriptionStream returns a stream that yields messages received on ch
// until the subscription's lifetime context is canceled, at which point stop
// is invoked and the stream ends without error.
func SubscriptionStream(
	lifetime context.Context,
	ch <-chan Message,
	stop func(),
) stream.Stream[Message] {
	stopped := false

	return stream.Func[Message](func(ctx context.Context) (m Message, ok bool, err error) {
		if stopped {
			return m, false, nil
		}

		// The lifetime context is often the same context the consumer polls
		// with; ending the subscription must win over failing the poll.
		select {
		case <-lifetime.Done():
			stop()
			stopped = true
			return m, false, nil
		default:
		}

		select {
		case <-lifetime.Done():
			stop()
			stopped = true
			return m, false, nil
		case <-ctx.Done():
			return m, false, ctx.Err()
		case m = <-ch:
			return m, true, nil
		}
	})
}
