package memorybroker

import (
	"context"
	"slices"
	"sync"

	"github.com/relaymesh/gateway/internal/broker"
	"github.com/relaymesh/gateway/internal/stream"
)

// subscriptionBuffer bounds the number of undelivered messages per queue
// group.
const subscriptionBuffer = 1024

// Broker is an implementation of [broker.Client] that delivers messages in
// memory. It is intended for use in tests.
//
// Each channel retains its full backlog, so a queue group subscribed after
// messages were published still receives them, mimicking a durable
// subscription.
type Broker struct {
	m        sync.Mutex
	channels map[string]*channelState

	// OnAck, when non-nil, is invoked each time a message is acknowledged.
	OnAck func(channel string, data []byte)
}

type channelState struct {
	backlog [][]byte
	groups  map[string]chan broker.Message
}

// Publish publishes data on the given channel.
func (b *Broker) Publish(ctx context.Context, channel string, data []byte) error {
	b.m.Lock()
	defer b.m.Unlock()

	data = slices.Clone(data)

	state := b.channelState(channel)
	state.backlog = append(state.backlog, data)

	for _, group := range state.groups {
		select {
		case group <- b.newMessage(channel, data):
		default:
			panic("queue group buffer is full")
		}
	}

	return ctx.Err()
}

// QueueSubscribe subscribes to the given channel as a member of queueGroup.
//
// All members of a group share one queue, so each message is received by at
// most one member.
func (b *Broker) QueueSubscribe(
	ctx context.Context,
	channel, queueGroup, durableName string,
) (stream.Stream[broker.Message], error) {
	b.m.Lock()
	defer b.m.Unlock()

	state := b.channelState(channel)

	group, ok := state.groups[queueGroup]
	if !ok {
		group = make(chan broker.Message, subscriptionBuffer)
		for _, data := range state.backlog {
			group <- b.newMessage(channel, data)
		}

		if state.groups == nil {
			state.groups = map[string]chan broker.Message{}
		}
		state.groups[queueGroup] = group
	}

	return broker.SubscriptionStream(ctx, group, func() {}), nil
}

// Published returns the payloads published on the given channel, in order.
func (b *Broker) Published(channel string) [][]byte {
	b.m.Lock()
	defer b.m.Unlock()

	return slices.Clone(b.channelState(channel).backlog)
}

func (b *Broker) channelState(channel string) *channelState {
	state, ok := b.channels[channel]
	if !ok {
		state = &channelState{}
		if b.channels == nil {
			b.channels = map[string]*channelState{}
		}
		b.channels[channel] = state
	}

	return state
}

func (b *Broker) newMessage(channel string, data []byte) broker.Message {
	return broker.Message{
		Data: data,
		Ack: func() error {
			if b.OnAck != nil {
				b.OnAck(channel, data)
			}
			return nil
		},
	}
}
