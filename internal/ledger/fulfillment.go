// Package ledger records the gateway's security-relevant history: which CCAs
// have been fulfilled and which parcels each private peer has collected.
package ledger

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"

	"github.com/relaymesh/gateway/internal/awala"
	"github.com/relaymesh/gateway/internal/persistence/kv"
)

const fulfillmentKeyspace = "cca-fulfillments"

// Fulfillments records which CCAs have already been used to collect cargo,
// making each CCA single-use.
type Fulfillments struct {
	// KV is the document store in which fulfillments are persisted.
	KV kv.Store
}

// WasFulfilled reports whether cca has already been fulfilled.
func (f *Fulfillments) WasFulfilled(
	ctx context.Context,
	cca *awala.CargoCollectionAuthorization,
) (bool, error) {
	ks, err := f.KV.Open(ctx, fulfillmentKeyspace)
	if err != nil {
		return false, fmt.Errorf("unable to open fulfillment keyspace: %w", err)
	}
	defer ks.Close()

	k := fulfillmentKey(cca)

	ok, err := ks.Has(ctx, k[:])
	if err != nil {
		return false, fmt.Errorf("unable to query fulfillment ledger: %w", err)
	}

	return ok, nil
}

// Record marks cca as fulfilled.
//
// Recording a CCA that is already recorded is a no-op; the original record
// is never overwritten.
func (f *Fulfillments) Record(
	ctx context.Context,
	cca *awala.CargoCollectionAuthorization,
) error {
	ks, err := f.KV.Open(ctx, fulfillmentKeyspace)
	if err != nil {
		return fmt.Errorf("unable to open fulfillment keyspace: %w", err)
	}
	defer ks.Close()

	k := fulfillmentKey(cca)

	ok, err := ks.Has(ctx, k[:])
	if err != nil {
		return fmt.Errorf("unable to query fulfillment ledger: %w", err)
	}
	if ok {
		return nil
	}

	// The CCA's expiry is retained so that stale records can be swept once
	// the CCA could no longer be replayed anyway.
	v := strconv.FormatInt(cca.ExpiryDate.Unix(), 10)

	if err := ks.Set(ctx, k[:], []byte(v)); err != nil {
		return fmt.Errorf("unable to record fulfillment: %w", err)
	}

	return nil
}

// fulfillmentKey is the CCA's identity within the ledger.
//
// The digest covers the full signed serialization, which the peer cannot
// vary without invalidating the signature.
func fulfillmentKey(cca *awala.CargoCollectionAuthorization) [sha256.Size]byte {
	return sha256.Sum256(cca.Serialized)
}
