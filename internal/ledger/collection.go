package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relaymesh/gateway/internal/awala"
	"github.com/relaymesh/gateway/internal/persistence/kv"
	"github.com/relaymesh/gateway/internal/stream"
)

const collectionKeyspace = "parcel-collections"

// ParcelCollections records which Internet-bound parcels each private peer
// has already handed over, so that re-sent parcels are not queued for
// delivery twice.
type ParcelCollections struct {
	// KV is the document store in which collection records are persisted.
	KV kv.Store
}

type collectionRecord struct {
	SenderID         string    `json:"senderId"`
	RecipientAddress string    `json:"recipientAddress"`
	ParcelID         string    `json:"parcelId"`
	ExpiryDate       time.Time `json:"expiryDate"`
}

// WasCollected reports whether parcel was already collected from the private
// peer identified by peerID.
func (c *ParcelCollections) WasCollected(
	ctx context.Context,
	parcel *awala.Parcel,
	peerID string,
) (bool, error) {
	ks, err := c.KV.Open(ctx, collectionKeyspace)
	if err != nil {
		return false, fmt.Errorf("unable to open collection keyspace: %w", err)
	}
	defer ks.Close()

	ok, err := ks.Has(ctx, collectionKey(parcel, peerID))
	if err != nil {
		return false, fmt.Errorf("unable to query collection ledger: %w", err)
	}

	return ok, nil
}

// Record marks parcel as collected from the private peer identified by
// peerID.
func (c *ParcelCollections) Record(
	ctx context.Context,
	parcel *awala.Parcel,
	peerID string,
) error {
	ks, err := c.KV.Open(ctx, collectionKeyspace)
	if err != nil {
		return fmt.Errorf("unable to open collection keyspace: %w", err)
	}
	defer ks.Close()

	v, err := json.Marshal(collectionRecord{
		SenderID:         parcel.SenderID,
		RecipientAddress: recipientAddress(parcel),
		ParcelID:         parcel.ID,
		ExpiryDate:       parcel.ExpiryDate,
	})
	if err != nil {
		return fmt.Errorf("unable to marshal collection record: %w", err)
	}

	if err := ks.Set(ctx, collectionKey(parcel, peerID), v); err != nil {
		return fmt.Errorf("unable to record collection: %w", err)
	}

	return nil
}

// GeneratePCAs returns a stream of parcel collection acknowledgements for
// every parcel the private peer identified by peerID has collected, each
// serialized by serialize and ready for inclusion in a cargo.
func (c *ParcelCollections) GeneratePCAs(
	ctx context.Context,
	peerID string,
	serialize func(*awala.ParcelCollectionAck) ([]byte, error),
) stream.Stream[awala.CargoMessage] {
	ks, err := c.KV.Open(ctx, collectionKeyspace)
	if err != nil {
		return stream.Fail[awala.CargoMessage](
			fmt.Errorf("unable to open collection keyspace: %w", err),
		)
	}

	prefix := []byte(peerID + "\x00")

	var records []collectionRecord
	if err := ks.Range(
		ctx,
		func(_ context.Context, k, v []byte) (bool, error) {
			if !bytes.HasPrefix(k, prefix) {
				return true, nil
			}

			var rec collectionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return false, fmt.Errorf("unable to unmarshal collection record: %w", err)
			}

			records = append(records, rec)
			return true, nil
		},
	); err != nil {
		ks.Close()
		return stream.Fail[awala.CargoMessage](
			fmt.Errorf("unable to range collection ledger: %w", err),
		)
	}
	ks.Close()

	i := 0
	return stream.Func[awala.CargoMessage](
		func(context.Context) (awala.CargoMessage, bool, error) {
			if i >= len(records) {
				return awala.CargoMessage{}, false, nil
			}

			rec := records[i]
			i++

			data, err := serialize(&awala.ParcelCollectionAck{
				SenderEndpointID:         rec.SenderID,
				RecipientEndpointAddress: rec.RecipientAddress,
				ParcelID:                 rec.ParcelID,
			})
			if err != nil {
				return awala.CargoMessage{}, false, fmt.Errorf("unable to serialize PCA: %w", err)
			}

			return awala.CargoMessage{
				ExpiryDate: rec.ExpiryDate,
				Serialized: data,
			}, true, nil
		},
	)
}

// collectionKey identifies one (peer, sender, parcel) triple. The parcel ID
// is hashed because it is attacker-chosen and of unbounded length.
func collectionKey(parcel *awala.Parcel, peerID string) []byte {
	digest := sha256.Sum256([]byte(parcel.ID))

	var k []byte
	k = append(k, peerID...)
	k = append(k, 0)
	k = append(k, parcel.SenderID...)
	k = append(k, 0)
	k = append(k, fmt.Sprintf("%x", digest)...)

	return k
}

// recipientAddress is the address a PCA for parcel must name, preferring the
// Internet address when the parcel left the local network.
func recipientAddress(parcel *awala.Parcel) string {
	if parcel.Recipient.InternetAddress != "" {
		return parcel.Recipient.InternetAddress
	}
	return parcel.Recipient.ID
}
