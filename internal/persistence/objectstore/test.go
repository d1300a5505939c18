package objectstore

import (
	"bytes"
	"context"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/relaymesh/gateway/internal/stream"
)

// RunTests runs tests that confirm a [Client] implementation behaves
// correctly.
func RunTests(
	t *testing.T,
	newClient func(t *testing.T) (_ Client, bucket string),
) {
	setup := func(t *testing.T) (context.Context, Client, string) {
		t.Helper()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		t.Cleanup(cancel)

		client, bucket := newClient(t)
		return ctx, client, bucket
	}

	t.Run("func GetObject()", func(t *testing.T) {
		t.Run("it returns nil if the key does not exist", func(t *testing.T) {
			ctx, client, bucket := setup(t)

			obj, err := client.GetObject(ctx, "<key>", bucket)
			if err != nil {
				t.Fatal(err)
			}
			if obj != nil {
				t.Fatalf("unexpected object: got %v, want nil", obj)
			}
		})

		t.Run("it returns the body and metadata of a stored object", func(t *testing.T) {
			ctx, client, bucket := setup(t)

			expect := &Object{
				Body:     []byte("<body>"),
				Metadata: map[string]string{"expiry": "12345"},
			}
			if err := client.PutObject(ctx, expect, "<key>", bucket); err != nil {
				t.Fatal(err)
			}

			actual, err := client.GetObject(ctx, "<key>", bucket)
			if err != nil {
				t.Fatal(err)
			}
			if actual == nil {
				t.Fatal("expected the object to exist")
			}
			if !bytes.Equal(expect.Body, actual.Body) {
				t.Fatalf("unexpected body: got %q, want %q", actual.Body, expect.Body)
			}
			if diff := cmp.Diff(expect.Metadata, actual.Metadata); diff != "" {
				t.Fatal(diff)
			}
		})
	})

	t.Run("func DeleteObject()", func(t *testing.T) {
		t.Run("it deletes the object", func(t *testing.T) {
			ctx, client, bucket := setup(t)

			if err := client.PutObject(ctx, &Object{Body: []byte("<body>")}, "<key>", bucket); err != nil {
				t.Fatal(err)
			}
			if err := client.DeleteObject(ctx, "<key>", bucket); err != nil {
				t.Fatal(err)
			}

			obj, err := client.GetObject(ctx, "<key>", bucket)
			if err != nil {
				t.Fatal(err)
			}
			if obj != nil {
				t.Fatal("did not expect the object to exist")
			}
		})

		t.Run("it tolerates a key that does not exist", func(t *testing.T) {
			ctx, client, bucket := setup(t)

			if err := client.DeleteObject(ctx, "<key>", bucket); err != nil {
				t.Fatal(err)
			}
		})
	})

	t.Run("func ListObjectKeys()", func(t *testing.T) {
		t.Run("it lists only the keys that start with the prefix", func(t *testing.T) {
			ctx, client, bucket := setup(t)

			for _, key := range []string{
				"parcels/a/1",
				"parcels/a/2",
				"parcels/b/1",
			} {
				if err := client.PutObject(ctx, &Object{Body: []byte("<body>")}, key, bucket); err != nil {
					t.Fatal(err)
				}
			}

			keys, err := stream.Collect(
				ctx,
				client.ListObjectKeys(ctx, "parcels/a/", bucket),
			)
			if err != nil {
				t.Fatal(err)
			}

			slices.Sort(keys)
			expect := []string{"parcels/a/1", "parcels/a/2"}
			if diff := cmp.Diff(expect, keys); diff != "" {
				t.Fatal(diff)
			}
		})

		t.Run("it yields nothing when no keys match", func(t *testing.T) {
			ctx, client, bucket := setup(t)

			keys, err := stream.Collect(
				ctx,
				client.ListObjectKeys(ctx, "<prefix>/", bucket),
			)
			if err != nil {
				t.Fatal(err)
			}
			if len(keys) != 0 {
				t.Fatalf("unexpected keys: %v", keys)
			}
		})
	})
}
