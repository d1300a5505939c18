package memorybroker_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	. "github.com/relaymesh/gateway/internal/broker/memorybroker"
)

func TestBroker(t *testing.T) {
	t.Parallel()

	t.Run("it delivers messages published before the subscription began", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		b := &Broker{}

		if err := b.Publish(ctx, "<channel>", []byte("<message-1>")); err != nil {
			t.Fatal(err)
		}
		if err := b.Publish(ctx, "<channel>", []byte("<message-2>")); err != nil {
			t.Fatal(err)
		}

		sub, err := b.QueueSubscribe(ctx, "<channel>", "<group>", "<durable>")
		if err != nil {
			t.Fatal(err)
		}

		for _, expect := range []string{"<message-1>", "<message-2>"} {
			m, ok, err := sub.Next(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				t.Fatal("expected a message")
			}
			if diff := cmp.Diff(expect, string(m.Data)); diff != "" {
				t.Fatal(diff)
			}
		}
	})

	t.Run("it delivers each message to at most one member of a queue group", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		b := &Broker{}

		sub1, err := b.QueueSubscribe(ctx, "<channel>", "<group>", "<durable-1>")
		if err != nil {
			t.Fatal(err)
		}
		sub2, err := b.QueueSubscribe(ctx, "<channel>", "<group>", "<durable-2>")
		if err != nil {
			t.Fatal(err)
		}

		if err := b.Publish(ctx, "<channel>", []byte("<message>")); err != nil {
			t.Fatal(err)
		}

		m, ok, err := sub1.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("expected a message")
		}
		if string(m.Data) != "<message>" {
			t.Fatalf("unexpected message: %q", m.Data)
		}

		// The other member must not receive the same message.
		shortCtx, shortCancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer shortCancel()

		if _, ok, _ := sub2.Next(shortCtx); ok {
			t.Fatal("did not expect the message to be delivered twice")
		}
	})

	t.Run("it ends the subscription when the context is canceled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		subCtx, subCancel := context.WithCancel(ctx)

		b := &Broker{}

		sub, err := b.QueueSubscribe(subCtx, "<channel>", "<group>", "<durable>")
		if err != nil {
			t.Fatal(err)
		}

		subCancel()

		_, ok, err := sub.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("expected the stream to end")
		}
	})
}
