package natsstreaming

import (
	"context"
	"fmt"

	"github.com/nats-io/stan.go"
	"github.com/relaymesh/gateway/internal/broker"
	"github.com/relaymesh/gateway/internal/stream"
)

// Client is an implementation of [broker.Client] backed by a NATS Streaming
// cluster.
type Client struct {
	// Conn is the NATS Streaming connection to use.
	Conn stan.Conn
}

// Connect establishes a NATS Streaming connection. An empty url connects to
// the default NATS address.
func Connect(clusterID, clientID, url string) (*Client, error) {
	var options []stan.Option
	if url != "" {
		options = append(options, stan.NatsURL(url))
	}

	conn, err := stan.Connect(clusterID, clientID, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS Streaming cluster %q: %w", clusterID, err)
	}

	return &Client{Conn: conn}, nil
}

// Publish publishes data on the given channel.
func (c *Client) Publish(ctx context.Context, channel string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.Conn.Publish(channel, data); err != nil {
		return fmt.Errorf("unable to publish to channel %q: %w", channel, err)
	}

	return nil
}

// QueueSubscribe subscribes to the given channel as a member of queueGroup.
//
// The subscription uses manual acknowledgment mode; each message must be
// acknowledged via [broker.Message.Ack]. The subscription is closed (but not
// unsubscribed, so the durable state survives) when ctx is canceled.
func (c *Client) QueueSubscribe(
	ctx context.Context,
	channel, queueGroup, durableName string,
) (stream.Stream[broker.Message], error) {
	ch := make(chan broker.Message)

	sub, err := c.Conn.QueueSubscribe(
		channel,
		queueGroup,
		func(m *stan.Msg) {
			select {
			case <-ctx.Done():
			case ch <- broker.Message{
				Data: m.Data,
				Ack:  m.Ack,
			}:
			}
		},
		stan.DurableName(durableName),
		stan.SetManualAckMode(),
		stan.DeliverAllAvailable(),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to subscribe to channel %q: %w", channel, err)
	}

	return broker.SubscriptionStream(
		ctx,
		ch,
		func() {
			sub.Close()
		},
	), nil
}

// Close closes the underlying NATS Streaming connection.
func (c *Client) Close() error {
	return c.Conn.Close()
}
