package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dogmatiq/spruce"
	"github.com/relaymesh/gateway"
	"github.com/relaymesh/gateway/internal/awala"
	"github.com/relaymesh/gateway/internal/awala/awalatest"
	"github.com/relaymesh/gateway/internal/broker/memorybroker"
	"github.com/relaymesh/gateway/internal/persistence/driver/memory"
)

func testSuite() awala.Suite {
	return awala.Suite{
		ParcelValidator: &awalatest.ParcelValidatorStub{
			ValidateTrustedFunc: func(
				context.Context,
				*awala.Parcel,
				[]byte,
				[]*awala.Certificate,
			) ([]*awala.Certificate, error) {
				return []*awala.Certificate{
					{SubjectID: "<sender>"},
					{SubjectID: "<private-peer>"},
					{SubjectID: "<root>"},
				}, nil
			},
		},
		CCAParser:     &awalatest.CCAParserStub{},
		SessionKeys:   &awalatest.SessionKeyStoreStub{},
		CargoSealer:   &awalatest.CargoSealerStub{},
		PCASerializer: &awalatest.PCASerializerStub{},
	}
}

func TestGateway(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T) (*gateway.Gateway, *memorybroker.Broker) {
		t.Helper()

		b := &memorybroker.Broker{}

		g := gateway.New(
			testSuite(),
			gateway.WithInternetAddress("gateway.example.com"),
			gateway.WithKeyValueStore(&memory.KeyValueStore{}),
			gateway.WithObjectStore(&memory.ObjectStore{}, "<bucket>"),
			gateway.WithBroker(b),
			gateway.WithLogger(spruce.NewLogger(t)),
			gateway.WithGRPCListenAddress("127.0.0.1:0"),
		)

		return g, b
	}

	t.Run("it announces stored parcels on the peer's channel", func(t *testing.T) {
		t.Parallel()

		g, b := setup(t)

		key, err := g.StoreParcelFromPrivatePeer(
			context.Background(),
			&awala.Parcel{
				ID:       "<parcel>",
				SenderID: "<sender>",
				Recipient: awala.Recipient{
					ID: "<recipient>",
				},
				ExpiryDate: time.Now().Add(time.Hour),
			},
			[]byte("<serialized>"),
			"<private-peer>",
		)
		if err != nil {
			t.Fatal(err)
		}
		if key == "" {
			t.Fatal("expected a non-empty parcel key")
		}

		published := b.Published("pdc-parcel.<private-peer>")
		if len(published) != 1 {
			t.Fatalf("unexpected number of announcements: got %d, want 1", len(published))
		}
	})

	t.Run("it stops serving when its context is canceled", func(t *testing.T) {
		t.Parallel()

		g, _ := setup(t)

		ctx, cancel := context.WithCancel(context.Background())

		result := make(chan error, 1)
		go func() {
			result <- g.Run(ctx)
		}()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-result:
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("unexpected error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for the gateway to stop")
		}
	})

	t.Run("it panics if the cryptographic suite is incomplete", func(t *testing.T) {
		t.Parallel()

		defer func() {
			if recover() == nil {
				t.Fatal("expected a panic")
			}
		}()

		gateway.New(awala.Suite{})
	})
}
