package stream_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	. "github.com/relaymesh/gateway/internal/stream"
)

func TestFromSlice(t *testing.T) {
	t.Parallel()

	t.Run("it yields the elements in order", func(t *testing.T) {
		t.Parallel()

		values, err := Collect(
			context.Background(),
			FromSlice([]string{"<one>", "<two>", "<three>"}),
		)
		if err != nil {
			t.Fatal(err)
		}

		expect := []string{"<one>", "<two>", "<three>"}
		if diff := cmp.Diff(expect, values); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("it stops when the context is canceled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, _, err := FromSlice([]int{1, 2, 3}).Next(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected error: got %v, want %v", err, context.Canceled)
		}
	})
}

func TestFromChannel(t *testing.T) {
	t.Parallel()

	t.Run("it ends when the channel is closed", func(t *testing.T) {
		t.Parallel()

		ch := make(chan int, 2)
		ch <- 1
		ch <- 2
		close(ch)

		values, err := Collect(context.Background(), FromChannel(ch))
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff([]int{1, 2}, values); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("it fails when the context is canceled while waiting", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, _, err := FromChannel(make(chan int)).Next(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected error: got %v, want %v", err, context.Canceled)
		}
	})
}

func TestConcat(t *testing.T) {
	t.Parallel()

	t.Run("it exhausts each stream before moving to the next", func(t *testing.T) {
		t.Parallel()

		values, err := Collect(
			context.Background(),
			Concat(
				FromSlice([]string{"<a>", "<b>"}),
				FromSlice[string](nil),
				FromSlice([]string{"<c>"}),
			),
		)
		if err != nil {
			t.Fatal(err)
		}

		expect := []string{"<a>", "<b>", "<c>"}
		if diff := cmp.Diff(expect, values); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("it propagates a failure from the active stream", func(t *testing.T) {
		t.Parallel()

		expect := errors.New("<error>")

		values, err := Collect(
			context.Background(),
			Concat(
				FromSlice([]string{"<a>"}),
				Fail[string](expect),
			),
		)
		if !errors.Is(err, expect) {
			t.Fatalf("unexpected error: got %v, want %v", err, expect)
		}

		if diff := cmp.Diff([]string{"<a>"}, values); diff != "" {
			t.Fatal(diff)
		}
	})
}
