// Package gateway implements a store-and-forward gateway node for a
// delay-tolerant mesh network.
//
// The gateway persists parcels moving in both directions between its private
// peers and the Internet, and serves the cargo relay protocol over which
// private peers collect the parcels and acknowledgments awaiting them.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/relaymesh/gateway/internal/awala"
	"github.com/relaymesh/gateway/internal/cogrpc"
	"github.com/relaymesh/gateway/internal/gatewayconfig"
	"github.com/relaymesh/gateway/internal/ledger"
	"github.com/relaymesh/gateway/internal/parcelstore"
	"github.com/relaymesh/gateway/internal/pki"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// FerriteRegistry is a registry of the environment variables used by the
// gateway.
//
// It can be used with the [ferrite] package.
var FerriteRegistry = gatewayconfig.FerriteRegistry

// Gateway is a store-and-forward gateway node.
type Gateway struct {
	config       gatewayconfig.Config
	logger       *slog.Logger
	parcels      *parcelstore.Store
	certificates *pki.CertificateStore
	service      *cogrpc.Service
}

// New returns a gateway that relays messages using the given cryptographic
// suite.
func New(suite awala.Suite, options ...Option) *Gateway {
	if suite.ParcelValidator == nil ||
		suite.CCAParser == nil ||
		suite.SessionKeys == nil ||
		suite.CargoSealer == nil ||
		suite.PCASerializer == nil {
		panic("cryptographic suite is incomplete")
	}

	cfg := gatewayconfig.New(options)
	cfg.Suite = suite

	certificates := &pki.CertificateStore{
		KV: cfg.Persistence.KeyValue,
	}

	collections := &ledger.ParcelCollections{
		KV: cfg.Persistence.KeyValue,
	}

	parcels := &parcelstore.Store{
		Objects:         cfg.Persistence.Objects,
		Bucket:          cfg.Persistence.Bucket,
		InternetAddress: cfg.Gateway.InternetAddress,
		Broker:          cfg.Broker.Client,
		Validator:       suite.ParcelValidator,
		Certificates:    certificates,
		Collections:     collections,
	}

	service := &cogrpc.Service{
		Parcels: parcels,
		Fulfillments: &ledger.Fulfillments{
			KV: cfg.Persistence.KeyValue,
		},
		Collections:     collections,
		CCAParser:       suite.CCAParser,
		SessionKeys:     suite.SessionKeys,
		Sealer:          suite.CargoSealer,
		PCASerializer:   suite.PCASerializer,
		InternetAddress: cfg.Gateway.InternetAddress,
		Telemetry:       cfg.Telemetry,
	}

	return &Gateway{
		config:       cfg,
		logger:       cfg.Telemetry.Recorder("gateway").Logger(),
		parcels:      parcels,
		certificates: certificates,
		service:      service,
	}
}

// StoreParcelFromPrivatePeer stores a parcel received from the private peer
// identified by peerID, dispatching on the parcel's destination.
//
// It is the entry point for the external ingestion surface, which delivers
// validated parcels into the gateway. It returns the key under which the
// parcel was stored, or an empty key if the parcel was skipped as a
// duplicate.
func (g *Gateway) StoreParcelFromPrivatePeer(
	ctx context.Context,
	parcel *awala.Parcel,
	serialized []byte,
	peerID string,
) (string, error) {
	return g.parcels.StoreParcelFromPrivatePeer(ctx, parcel, serialized, peerID, g.logger)
}

// RetrieveParcelForInternetPeer returns the serialization of an
// Internet-bound parcel by the key carried in its delivery queue message, or
// nil if the parcel no longer exists.
//
// It is used by the external delivery worker.
func (g *Gateway) RetrieveParcelForInternetPeer(
	ctx context.Context,
	key string,
) ([]byte, error) {
	return g.parcels.RetrieveParcelForInternetPeer(ctx, key)
}

// DeleteParcelForInternetPeer deletes an Internet-bound parcel once it has
// been delivered. It is a no-op if the parcel does not exist.
func (g *Gateway) DeleteParcelForInternetPeer(ctx context.Context, key string) error {
	return g.parcels.DeleteParcelForInternetPeer(ctx, key)
}

// SaveOwnCertificate persists one of the gateway's own certificates, which
// anchor the trust of parcels bound for private peers.
func (g *Gateway) SaveOwnCertificate(ctx context.Context, cert *awala.Certificate) error {
	return g.certificates.Save(ctx, cert)
}

// Run serves the cargo relay protocol.
//
// It blocks until ctx is canceled or an error occurs.
func (g *Gateway) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", g.config.GRPC.ListenAddress)
	if err != nil {
		return fmt.Errorf(
			"unable to listen on %q: %w",
			g.config.GRPC.ListenAddress,
			err,
		)
	}

	options := append(
		[]grpc.ServerOption{cogrpc.ServerOption()},
		g.config.GRPC.ServerOptions...,
	)

	srv := grpc.NewServer(options...)
	g.service.Register(srv)

	g.logger.Info(
		"Cargo relay server listening",
		slog.String("address", lis.Addr().String()),
	)

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := srv.Serve(lis); err != nil {
			return fmt.Errorf("cargo relay server stopped: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		srv.GracefulStop()
		return ctx.Err()
	})

	return eg.Wait()
}

// Close releases the broker connection, if the gateway established it.
func (g *Gateway) Close() error {
	if g.config.Broker.Close != nil {
		return g.config.Broker.Close()
	}
	return nil
}
