// Package cogrpc implements the gRPC service over which private peers
// collect the cargo awaiting them.
package cogrpc

import (
	"context"

	"github.com/relaymesh/gateway/internal/awala"
	"github.com/relaymesh/gateway/internal/ledger"
	"github.com/relaymesh/gateway/internal/parcelstore"
	"github.com/relaymesh/gateway/internal/telemetry"
)

// Service is the gateway's cargo relay service.
type Service struct {
	// Parcels holds the parcels awaiting collection.
	Parcels *parcelstore.Store

	// Fulfillments makes each CCA single-use.
	Fulfillments *ledger.Fulfillments

	// Collections produces the PCAs owed to each peer.
	Collections *ledger.ParcelCollections

	// CCAParser parses the CCA presented by the caller.
	CCAParser awala.CCAParser

	// SessionKeys decrypts the collection request embedded in the CCA.
	SessionKeys awala.SessionKeyStore

	// Sealer produces the signed, encrypted cargo serializations.
	Sealer awala.CargoSealer

	// PCASerializer produces the signed serializations of the PCAs included
	// in cargo.
	PCASerializer awala.PCASerializer

	// InternetAddress is this gateway's own public address. CCAs bound for
	// any other address are refused.
	InternetAddress string

	// Telemetry records traces, metrics and logs.
	Telemetry *telemetry.Provider
}

// A Call is a single inbound CollectCargo invocation.
//
// It abstracts the underlying gRPC stream so the handler can be exercised
// without a server.
type Call interface {
	// Context returns the context of the invocation, which carries the
	// caller's metadata.
	Context() context.Context

	// Send writes one cargo serialization to the outbound stream.
	Send(cargo []byte) error
}
