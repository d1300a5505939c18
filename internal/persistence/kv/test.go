package kv

import (
	"bytes"
	"context"
	"testing"
	"time"
)

// RunTests runs tests that confirm a [Store] implementation behaves correctly.
func RunTests(
	t *testing.T,
	newStore func(t *testing.T) Store,
) {
	setup := func(t *testing.T) (context.Context, Keyspace) {
		t.Helper()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		t.Cleanup(cancel)

		ks, err := newStore(t).Open(ctx, "<keyspace>")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() {
			ks.Close()
		})

		return ctx, ks
	}

	t.Run("func Get()", func(t *testing.T) {
		t.Run("it returns an empty value if the key does not exist", func(t *testing.T) {
			ctx, ks := setup(t)

			v, err := ks.Get(ctx, []byte("<key>"))
			if err != nil {
				t.Fatal(err)
			}
			if len(v) != 0 {
				t.Fatalf("unexpected value: got %q, want empty", v)
			}
		})

		t.Run("it returns the value most recently set", func(t *testing.T) {
			ctx, ks := setup(t)

			for _, expect := range [][]byte{
				[]byte("<value-1>"),
				[]byte("<value-2>"),
			} {
				if err := ks.Set(ctx, []byte("<key>"), expect); err != nil {
					t.Fatal(err)
				}

				actual, err := ks.Get(ctx, []byte("<key>"))
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(expect, actual) {
					t.Fatalf("unexpected value: got %q, want %q", actual, expect)
				}
			}
		})
	})

	t.Run("func Has()", func(t *testing.T) {
		t.Run("it reports whether the key exists", func(t *testing.T) {
			ctx, ks := setup(t)

			ok, err := ks.Has(ctx, []byte("<key>"))
			if err != nil {
				t.Fatal(err)
			}
			if ok {
				t.Fatal("did not expect the key to exist")
			}

			if err := ks.Set(ctx, []byte("<key>"), []byte("<value>")); err != nil {
				t.Fatal(err)
			}

			ok, err = ks.Has(ctx, []byte("<key>"))
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				t.Fatal("expected the key to exist")
			}
		})
	})

	t.Run("func Set()", func(t *testing.T) {
		t.Run("it deletes the key when the value is empty", func(t *testing.T) {
			ctx, ks := setup(t)

			if err := ks.Set(ctx, []byte("<key>"), []byte("<value>")); err != nil {
				t.Fatal(err)
			}
			if err := ks.Set(ctx, []byte("<key>"), nil); err != nil {
				t.Fatal(err)
			}

			ok, err := ks.Has(ctx, []byte("<key>"))
			if err != nil {
				t.Fatal(err)
			}
			if ok {
				t.Fatal("did not expect the key to exist")
			}
		})

		t.Run("it tolerates deleting a key that does not exist", func(t *testing.T) {
			ctx, ks := setup(t)

			if err := ks.Set(ctx, []byte("<key>"), nil); err != nil {
				t.Fatal(err)
			}
		})
	})

	t.Run("func Range()", func(t *testing.T) {
		t.Run("it visits every key/value pair exactly once", func(t *testing.T) {
			ctx, ks := setup(t)

			expect := map[string]string{
				"<key-1>": "<value-1>",
				"<key-2>": "<value-2>",
				"<key-3>": "<value-3>",
			}
			for k, v := range expect {
				if err := ks.Set(ctx, []byte(k), []byte(v)); err != nil {
					t.Fatal(err)
				}
			}

			actual := map[string]string{}
			err := ks.Range(
				ctx,
				func(_ context.Context, k, v []byte) (bool, error) {
					if _, ok := actual[string(k)]; ok {
						t.Fatalf("visited %q more than once", k)
					}
					actual[string(k)] = string(v)
					return true, nil
				},
			)
			if err != nil {
				t.Fatal(err)
			}

			if len(actual) != len(expect) {
				t.Fatalf("unexpected number of keys: got %d, want %d", len(actual), len(expect))
			}
			for k, v := range expect {
				if actual[k] != v {
					t.Fatalf("unexpected value for %q: got %q, want %q", k, actual[k], v)
				}
			}
		})

		t.Run("it stops when fn returns false", func(t *testing.T) {
			ctx, ks := setup(t)

			for _, k := range []string{"<key-1>", "<key-2>", "<key-3>"} {
				if err := ks.Set(ctx, []byte(k), []byte("<value>")); err != nil {
					t.Fatal(err)
				}
			}

			count := 0
			err := ks.Range(
				ctx,
				func(context.Context, []byte, []byte) (bool, error) {
					count++
					return false, nil
				},
			)
			if err != nil {
				t.Fatal(err)
			}

			if count != 1 {
				t.Fatalf("unexpected number of keys visited: got %d, want 1", count)
			}
		})
	})

	t.Run("keyspaces are isolated from one another", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		t.Cleanup(cancel)

		store := newStore(t)

		ks1, err := store.Open(ctx, "<keyspace-1>")
		if err != nil {
			t.Fatal(err)
		}
		defer ks1.Close()

		ks2, err := store.Open(ctx, "<keyspace-2>")
		if err != nil {
			t.Fatal(err)
		}
		defer ks2.Close()

		if err := ks1.Set(ctx, []byte("<key>"), []byte("<value>")); err != nil {
			t.Fatal(err)
		}

		ok, err := ks2.Has(ctx, []byte("<key>"))
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("did not expect the key to exist in another keyspace")
		}
	})
}
