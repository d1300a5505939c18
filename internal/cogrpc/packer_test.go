package cogrpc

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/relaymesh/gateway/internal/awala"
	"github.com/relaymesh/gateway/internal/stream"
)

func TestPackCargoMessages(t *testing.T) {
	t.Parallel()

	messages := func(sizes ...int) stream.Stream[awala.CargoMessage] {
		var values []awala.CargoMessage
		for i, n := range sizes {
			values = append(values, awala.CargoMessage{
				Serialized: bytes.Repeat([]byte{byte('a' + i)}, n),
			})
		}
		return stream.FromSlice(values)
	}

	collect := func(t *testing.T, source stream.Stream[awala.CargoMessage]) [][][]byte {
		t.Helper()

		batches, err := stream.Collect(
			context.Background(),
			packCargoMessages(source),
		)
		if err != nil {
			t.Fatal(err)
		}
		return batches
	}

	t.Run("it packs messages that fit the budget into a single batch", func(t *testing.T) {
		t.Parallel()

		batches := collect(t, messages(100, 200, 300))

		if len(batches) != 1 {
			t.Fatalf("unexpected number of batches: got %d, want 1", len(batches))
		}
		if len(batches[0]) != 3 {
			t.Fatalf("unexpected number of messages: got %d, want 3", len(batches[0]))
		}
	})

	t.Run("it flushes a batch when the next message would exceed the budget", func(t *testing.T) {
		t.Parallel()

		half := maxCargoPayloadSize/2 + 1

		batches := collect(t, messages(half, half, 100))

		if len(batches) != 2 {
			t.Fatalf("unexpected number of batches: got %d, want 2", len(batches))
		}
		if len(batches[0]) != 1 {
			t.Fatalf("unexpected number of messages in first batch: got %d, want 1", len(batches[0]))
		}
		if len(batches[1]) != 2 {
			t.Fatalf("unexpected number of messages in second batch: got %d, want 2", len(batches[1]))
		}
	})

	t.Run("it emits an oversized message as a batch of one", func(t *testing.T) {
		t.Parallel()

		batches := collect(t, messages(100, maxCargoPayloadSize+1, 100))

		if len(batches) != 3 {
			t.Fatalf("unexpected number of batches: got %d, want 3", len(batches))
		}
		for i, batch := range batches {
			if len(batch) != 1 {
				t.Fatalf("unexpected number of messages in batch %d: got %d, want 1", i, len(batch))
			}
		}
	})

	t.Run("it preserves message order", func(t *testing.T) {
		t.Parallel()

		batches := collect(t, messages(1, 2, 3))

		var flat [][]byte
		for _, batch := range batches {
			flat = append(flat, batch...)
		}

		for i, m := range flat {
			if len(m) != i+1 {
				t.Fatalf("unexpected message at position %d: %d bytes", i, len(m))
			}
		}
	})

	t.Run("it yields no batches for an empty source", func(t *testing.T) {
		t.Parallel()

		batches := collect(t, messages())

		if len(batches) != 0 {
			t.Fatalf("unexpected number of batches: got %d, want 0", len(batches))
		}
	})

	t.Run("it fails when the source fails", func(t *testing.T) {
		t.Parallel()

		expect := errors.New("<error>")

		_, err := stream.Collect(
			context.Background(),
			packCargoMessages(stream.Fail[awala.CargoMessage](expect)),
		)
		if !errors.Is(err, expect) {
			t.Fatalf("unexpected error: got %v, want %v", err, expect)
		}
	})
}
