package parcelstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dogmatiq/spruce"
	"github.com/google/go-cmp/cmp"
	"github.com/relaymesh/gateway/internal/awala"
	"github.com/relaymesh/gateway/internal/awala/awalatest"
	"github.com/relaymesh/gateway/internal/broker/memorybroker"
	"github.com/relaymesh/gateway/internal/ledger"
	. "github.com/relaymesh/gateway/internal/parcelstore"
	"github.com/relaymesh/gateway/internal/persistence/driver/memory"
	"github.com/relaymesh/gateway/internal/pki"
	"github.com/relaymesh/gateway/internal/stream"
)

const (
	bucket          = "<bucket>"
	internetAddress = "gateway.example.com"
	privatePeerID   = "<private-peer>"
)

type deps struct {
	Objects *memory.ObjectStore
	Broker  *memorybroker.Broker
	Store   *Store
}

func setup(t *testing.T) (context.Context, *deps) {
	t.Helper()

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	d := &deps{
		Objects: &memory.ObjectStore{},
		Broker:  &memorybroker.Broker{},
	}

	d.Store = &Store{
		Objects:         d.Objects,
		Bucket:          bucket,
		InternetAddress: internetAddress,
		Broker:          d.Broker,
		Validator: &awalatest.ParcelValidatorStub{
			ValidateTrustedFunc: func(
				_ context.Context,
				_ *awala.Parcel,
				_ []byte,
				_ []*awala.Certificate,
			) ([]*awala.Certificate, error) {
				return []*awala.Certificate{
					{SubjectID: "<sender>"},
					{SubjectID: privatePeerID},
					{SubjectID: "<root>"},
				}, nil
			},
			ValidateStandaloneFunc: func(
				context.Context,
				*awala.Parcel,
				[]byte,
			) error {
				return nil
			},
		},
		Certificates: &pki.CertificateStore{
			KV: &memory.KeyValueStore{},
		},
		Collections: &ledger.ParcelCollections{
			KV: &memory.KeyValueStore{},
		},
		Clock: func() time.Time {
			return now
		},
	}

	return context.Background(), d
}

func privatePeerParcel() *awala.Parcel {
	return &awala.Parcel{
		ID:       "<parcel>",
		SenderID: "<sender>",
		Recipient: awala.Recipient{
			ID: "<recipient>",
		},
		ExpiryDate: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
	}
}

func internetPeerParcel() *awala.Parcel {
	return &awala.Parcel{
		ID:       "<parcel>",
		SenderID: "<sender>",
		Recipient: awala.Recipient{
			ID:              "<recipient>",
			InternetAddress: "endpoint.example.com",
		},
		ExpiryDate: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestStore_StoreParcelForPrivatePeer(t *testing.T) {
	t.Parallel()

	t.Run("it stores the parcel with its expiry and announces the key", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)
		parcel := privatePeerParcel()

		key, err := d.Store.StoreParcelForPrivatePeer(
			ctx,
			parcel,
			[]byte("<serialized>"),
			spruce.NewLogger(t),
		)
		if err != nil {
			t.Fatal(err)
		}

		obj, err := d.Objects.GetObject(ctx, key, bucket)
		if err != nil {
			t.Fatal(err)
		}
		if obj == nil {
			t.Fatal("expected parcel object to exist")
		}
		if diff := cmp.Diff([]byte("<serialized>"), obj.Body); diff != "" {
			t.Fatal(diff)
		}
		if obj.Metadata["parcel-expiry"] != "1717286400" {
			t.Fatalf("unexpected expiry metadata: %q", obj.Metadata["parcel-expiry"])
		}

		published := d.Broker.Published("pdc-parcel." + privatePeerID)
		if diff := cmp.Diff([][]byte{[]byte(key)}, published); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("it propagates validation failures", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)
		d.Store.Validator = &awalatest.ParcelValidatorStub{}

		if _, err := d.Store.StoreParcelForPrivatePeer(
			ctx,
			privatePeerParcel(),
			[]byte("<serialized>"),
			spruce.NewLogger(t),
		); !errors.Is(err, awala.ErrInvalidMessage) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestStore_StoreParcelForInternetPeer(t *testing.T) {
	t.Parallel()

	t.Run("it stores the parcel and queues it for delivery", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)
		parcel := internetPeerParcel()

		key, err := d.Store.StoreParcelForInternetPeer(
			ctx,
			parcel,
			[]byte("<serialized>"),
			privatePeerID,
			spruce.NewLogger(t),
		)
		if err != nil {
			t.Fatal(err)
		}

		if !d.Objects.Exists("parcels/endpoint-bound/"+key, bucket) {
			t.Fatal("expected parcel object to exist")
		}

		published := d.Broker.Published("internet-parcels")
		if len(published) != 1 {
			t.Fatalf("unexpected number of queued messages: got %d, want 1", len(published))
		}

		var message struct {
			ParcelObjectKey        string    `json:"parcelObjectKey"`
			ParcelRecipientAddress string    `json:"parcelRecipientAddress"`
			ParcelExpiryDate       time.Time `json:"parcelExpiryDate"`
			DeliveryAttempts       int       `json:"deliveryAttempts"`
		}
		if err := json.Unmarshal(published[0], &message); err != nil {
			t.Fatal(err)
		}

		if message.ParcelObjectKey != key {
			t.Fatalf("unexpected object key: got %q, want %q", message.ParcelObjectKey, key)
		}
		if message.ParcelRecipientAddress != "endpoint.example.com" {
			t.Fatalf("unexpected recipient address: %q", message.ParcelRecipientAddress)
		}
		if !message.ParcelExpiryDate.Equal(parcel.ExpiryDate) {
			t.Fatalf(
				"unexpected expiry: got %s, want %s",
				message.ParcelExpiryDate,
				parcel.ExpiryDate,
			)
		}
		if message.DeliveryAttempts != 0 {
			t.Fatalf("unexpected delivery attempts: %d", message.DeliveryAttempts)
		}
	})

	t.Run("it records the collection", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)
		parcel := internetPeerParcel()

		if _, err := d.Store.StoreParcelForInternetPeer(
			ctx,
			parcel,
			[]byte("<serialized>"),
			privatePeerID,
			spruce.NewLogger(t),
		); err != nil {
			t.Fatal(err)
		}

		collected, err := d.Store.Collections.WasCollected(ctx, parcel, privatePeerID)
		if err != nil {
			t.Fatal(err)
		}
		if !collected {
			t.Fatal("expected parcel to be recorded as collected")
		}
	})

	t.Run("it skips parcels that were already collected", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)
		parcel := internetPeerParcel()

		if _, err := d.Store.StoreParcelForInternetPeer(
			ctx,
			parcel,
			[]byte("<serialized>"),
			privatePeerID,
			spruce.NewLogger(t),
		); err != nil {
			t.Fatal(err)
		}

		key, err := d.Store.StoreParcelForInternetPeer(
			ctx,
			parcel,
			[]byte("<serialized>"),
			privatePeerID,
			spruce.NewLogger(t),
		)
		if err != nil {
			t.Fatal(err)
		}
		if key != "" {
			t.Fatalf("unexpected key for duplicate parcel: %q", key)
		}

		published := d.Broker.Published("internet-parcels")
		if len(published) != 1 {
			t.Fatalf("unexpected number of queued messages: got %d, want 1", len(published))
		}
	})

	t.Run("it propagates validation failures", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)
		d.Store.Validator = &awalatest.ParcelValidatorStub{}

		if _, err := d.Store.StoreParcelForInternetPeer(
			ctx,
			internetPeerParcel(),
			[]byte("<serialized>"),
			privatePeerID,
			spruce.NewLogger(t),
		); !errors.Is(err, awala.ErrInvalidMessage) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestStore_StoreParcelFromPrivatePeer(t *testing.T) {
	t.Parallel()

	t.Run("it treats a recipient without an Internet address as private-peer-bound", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)

		key, err := d.Store.StoreParcelFromPrivatePeer(
			ctx,
			privatePeerParcel(),
			[]byte("<serialized>"),
			privatePeerID,
			spruce.NewLogger(t),
		)
		if err != nil {
			t.Fatal(err)
		}

		if len(d.Broker.Published("pdc-parcel."+privatePeerID)) != 1 {
			t.Fatal("expected the parcel to be announced on the peer's channel")
		}
		if !d.Objects.Exists(key, bucket) {
			t.Fatal("expected parcel object to exist")
		}
	})

	t.Run("it treats the gateway's own Internet address as private-peer-bound", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)

		parcel := privatePeerParcel()
		parcel.Recipient.InternetAddress = internetAddress

		if _, err := d.Store.StoreParcelFromPrivatePeer(
			ctx,
			parcel,
			[]byte("<serialized>"),
			privatePeerID,
			spruce.NewLogger(t),
		); err != nil {
			t.Fatal(err)
		}

		if len(d.Broker.Published("pdc-parcel."+privatePeerID)) != 1 {
			t.Fatal("expected the parcel to be announced on the peer's channel")
		}
	})

	t.Run("it treats other Internet addresses as Internet-bound", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)

		if _, err := d.Store.StoreParcelFromPrivatePeer(
			ctx,
			internetPeerParcel(),
			[]byte("<serialized>"),
			privatePeerID,
			spruce.NewLogger(t),
		); err != nil {
			t.Fatal(err)
		}

		if len(d.Broker.Published("internet-parcels")) != 1 {
			t.Fatal("expected the parcel to be queued for Internet delivery")
		}
	})
}

func TestStore_RetrieveParcelsForPrivatePeer(t *testing.T) {
	t.Parallel()

	t.Run("it yields the peer's active parcels", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)

		key, err := d.Store.StoreParcelForPrivatePeer(
			ctx,
			privatePeerParcel(),
			[]byte("<serialized>"),
			spruce.NewLogger(t),
		)
		if err != nil {
			t.Fatal(err)
		}

		parcels, err := stream.Collect(
			ctx,
			d.Store.RetrieveParcelsForPrivatePeer(ctx, privatePeerID, spruce.NewLogger(t)),
		)
		if err != nil {
			t.Fatal(err)
		}

		if len(parcels) != 1 {
			t.Fatalf("unexpected number of parcels: got %d, want 1", len(parcels))
		}
		if parcels[0].Key != key {
			t.Fatalf("unexpected key: got %q, want %q", parcels[0].Key, key)
		}
		if diff := cmp.Diff([]byte("<serialized>"), parcels[0].Body); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("it does not yield other peers' parcels", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)

		if _, err := d.Store.StoreParcelForPrivatePeer(
			ctx,
			privatePeerParcel(),
			[]byte("<serialized>"),
			spruce.NewLogger(t),
		); err != nil {
			t.Fatal(err)
		}

		parcels, err := stream.Collect(
			ctx,
			d.Store.RetrieveParcelsForPrivatePeer(ctx, "<other-peer>", spruce.NewLogger(t)),
		)
		if err != nil {
			t.Fatal(err)
		}
		if len(parcels) != 0 {
			t.Fatalf("unexpected number of parcels: got %d, want 0", len(parcels))
		}
	})
}

func TestStore_StreamParcelsForPrivatePeer(t *testing.T) {
	t.Parallel()

	t.Run("it deletes the parcel on acknowledgment", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)

		key, err := d.Store.StoreParcelForPrivatePeer(
			ctx,
			privatePeerParcel(),
			[]byte("<serialized>"),
			spruce.NewLogger(t),
		)
		if err != nil {
			t.Fatal(err)
		}

		parcels := d.Store.StreamParcelsForPrivatePeer(ctx, privatePeerID, spruce.NewLogger(t))

		m, ok, err := parcels.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("expected a parcel")
		}

		if err := m.Ack(ctx); err != nil {
			t.Fatal(err)
		}

		if d.Objects.Exists(key, bucket) {
			t.Fatal("expected parcel object to be deleted")
		}
	})
}

func TestStore_LiveStreamParcelsForPrivatePeer(t *testing.T) {
	t.Parallel()

	t.Run("it yields parcels announced on the peer's channel", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)

		key, err := d.Store.StoreParcelForPrivatePeer(
			ctx,
			privatePeerParcel(),
			[]byte("<serialized>"),
			spruce.NewLogger(t),
		)
		if err != nil {
			t.Fatal(err)
		}

		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		parcels, err := d.Store.LiveStreamParcelsForPrivatePeer(
			streamCtx,
			privatePeerID,
			spruce.NewLogger(t),
		)
		if err != nil {
			t.Fatal(err)
		}

		m, ok, err := parcels.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("expected a parcel")
		}
		if m.Key != key {
			t.Fatalf("unexpected key: got %q, want %q", m.Key, key)
		}
	})

	t.Run("it acknowledges the broker before deleting the object", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)

		key, err := d.Store.StoreParcelForPrivatePeer(
			ctx,
			privatePeerParcel(),
			[]byte("<serialized>"),
			spruce.NewLogger(t),
		)
		if err != nil {
			t.Fatal(err)
		}

		acked := false
		d.Broker.OnAck = func(channel string, data []byte) {
			acked = true

			// The object must still be present at the moment the broker
			// acknowledgment lands.
			if !d.Objects.Exists(key, bucket) {
				t.Error("parcel object was deleted before the broker was acknowledged")
			}
		}

		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		parcels, err := d.Store.LiveStreamParcelsForPrivatePeer(
			streamCtx,
			privatePeerID,
			spruce.NewLogger(t),
		)
		if err != nil {
			t.Fatal(err)
		}

		m, _, err := parcels.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}

		if err := m.Ack(ctx); err != nil {
			t.Fatal(err)
		}

		if !acked {
			t.Fatal("expected the broker message to be acknowledged")
		}
		if d.Objects.Exists(key, bucket) {
			t.Fatal("expected parcel object to be deleted")
		}
	})

	t.Run("it ends when the stream's context is canceled", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)

		streamCtx, cancel := context.WithCancel(ctx)

		parcels, err := d.Store.LiveStreamParcelsForPrivatePeer(
			streamCtx,
			privatePeerID,
			spruce.NewLogger(t),
		)
		if err != nil {
			t.Fatal(err)
		}

		cancel()

		_, ok, err := parcels.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("expected the stream to end")
		}
	})
}

func TestStore_DeleteParcelForPrivatePeer(t *testing.T) {
	t.Parallel()

	t.Run("it deletes the parcel", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)

		parcel := privatePeerParcel()
		key, err := d.Store.StoreParcelForPrivatePeer(
			ctx,
			parcel,
			[]byte("<serialized>"),
			spruce.NewLogger(t),
		)
		if err != nil {
			t.Fatal(err)
		}

		if err := d.Store.DeleteParcelForPrivatePeer(
			ctx,
			parcel.ID,
			parcel.SenderID,
			parcel.Recipient.ID,
			privatePeerID,
		); err != nil {
			t.Fatal(err)
		}

		if d.Objects.Exists(key, bucket) {
			t.Fatal("expected parcel object to be deleted")
		}
	})

	t.Run("it is a no-op if the parcel does not exist", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)

		if err := d.Store.DeleteParcelForPrivatePeer(
			ctx,
			"<parcel>",
			"<sender>",
			"<recipient>",
			privatePeerID,
		); err != nil {
			t.Fatal(err)
		}
	})
}

func TestStore_RetrieveParcelForInternetPeer(t *testing.T) {
	t.Parallel()

	t.Run("it returns the parcel's serialization", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)

		key, err := d.Store.StoreParcelForInternetPeer(
			ctx,
			internetPeerParcel(),
			[]byte("<serialized>"),
			privatePeerID,
			spruce.NewLogger(t),
		)
		if err != nil {
			t.Fatal(err)
		}

		body, err := d.Store.RetrieveParcelForInternetPeer(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]byte("<serialized>"), body); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("it returns nil if the parcel does not exist", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)

		body, err := d.Store.RetrieveParcelForInternetPeer(ctx, "<missing>")
		if err != nil {
			t.Fatal(err)
		}
		if body != nil {
			t.Fatalf("unexpected body: %q", body)
		}
	})

	t.Run("it is absent after deletion", func(t *testing.T) {
		t.Parallel()

		ctx, d := setup(t)

		key, err := d.Store.StoreParcelForInternetPeer(
			ctx,
			internetPeerParcel(),
			[]byte("<serialized>"),
			privatePeerID,
			spruce.NewLogger(t),
		)
		if err != nil {
			t.Fatal(err)
		}

		if err := d.Store.DeleteParcelForInternetPeer(ctx, key); err != nil {
			t.Fatal(err)
		}

		body, err := d.Store.RetrieveParcelForInternetPeer(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if body != nil {
			t.Fatalf("unexpected body: %q", body)
		}
	})
}
