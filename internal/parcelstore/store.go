package parcelstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/relaymesh/gateway/internal/awala"
	"github.com/relaymesh/gateway/internal/broker"
	"github.com/relaymesh/gateway/internal/ledger"
	"github.com/relaymesh/gateway/internal/persistence/objectstore"
	"github.com/relaymesh/gateway/internal/pki"
	"github.com/relaymesh/gateway/internal/stream"
)

const (
	// privatePeerChannelPrefix is the broker channel prefix on which keys of
	// parcels bound for a private peer are announced. The peer's gateway
	// address completes the channel name.
	privatePeerChannelPrefix = "pdc-parcel."

	// internetParcelsChannel is the broker channel on which Internet-bound
	// parcels are queued for the external delivery worker.
	internetParcelsChannel = "internet-parcels"

	// collectionQueueGroup is the queue group shared by all gateway
	// instances serving live parcel collection.
	collectionQueueGroup = "active-parcels"
)

// Store persists parcels in the object store and announces them on the
// message broker.
type Store struct {
	// Objects is the object store in which parcel serializations are kept.
	Objects objectstore.Client

	// Bucket is the object store bucket that holds parcels.
	Bucket string

	// InternetAddress is this gateway's own public address, used to
	// recognize parcels that stay within the local network.
	InternetAddress string

	// Broker announces newly stored parcels to their consumers.
	Broker broker.Client

	// Validator verifies parcel signatures and certification paths.
	Validator awala.ParcelValidator

	// Certificates holds the gateway's own certificates, which anchor the
	// certification paths of parcels bound for private peers.
	Certificates *pki.CertificateStore

	// Collections records which Internet-bound parcels each private peer has
	// already handed over.
	Collections *ledger.ParcelCollections

	// Clock is used to judge parcel expiry. If it is nil, time.Now() is
	// used.
	Clock func() time.Time
}

// A StreamMessage is a parcel delivered by one of the streaming retrieval
// operations.
type StreamMessage struct {
	Key        string
	Body       []byte
	ExpiryDate time.Time

	// Ack signals that the parcel has been handed to its consumer. It
	// removes the parcel from the object store and, for live streams,
	// acknowledges the underlying broker message first, so the broker never
	// redelivers a parcel that has already been removed.
	Ack func(ctx context.Context) error
}

// queuedInternetBoundParcelMessage is the JSON payload queued for the
// external delivery worker.
type queuedInternetBoundParcelMessage struct {
	ParcelObjectKey        string    `json:"parcelObjectKey"`
	ParcelRecipientAddress string    `json:"parcelRecipientAddress"`
	ParcelExpiryDate       time.Time `json:"parcelExpiryDate"`
	DeliveryAttempts       int       `json:"deliveryAttempts"`
}

// StoreParcelFromPrivatePeer stores a parcel received from the private peer
// identified by privatePeerID, dispatching on the parcel's destination.
//
// It returns the key under which the parcel was stored, or an empty key if
// the parcel was skipped as a duplicate.
func (s *Store) StoreParcelFromPrivatePeer(
	ctx context.Context,
	parcel *awala.Parcel,
	serialized []byte,
	privatePeerID string,
	logger *slog.Logger,
) (string, error) {
	a := parcel.Recipient.InternetAddress
	if a == "" || a == s.InternetAddress {
		return s.StoreParcelForPrivatePeer(ctx, parcel, serialized, logger)
	}
	return s.StoreParcelForInternetPeer(ctx, parcel, serialized, privatePeerID, logger)
}

// StoreParcelForPrivatePeer stores a parcel bound for an endpoint served by
// a private peer, and announces it on the peer's channel.
func (s *Store) StoreParcelForPrivatePeer(
	ctx context.Context,
	parcel *awala.Parcel,
	serialized []byte,
	logger *slog.Logger,
) (string, error) {
	trusted, err := s.Certificates.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("unable to retrieve trusted certificates: %w", err)
	}

	path, err := s.Validator.ValidateTrusted(ctx, parcel, serialized, trusted)
	if err != nil {
		return "", fmt.Errorf("unable to validate parcel: %w", err)
	}
	if len(path) < 2 {
		return "", fmt.Errorf("unable to validate parcel: %w", awala.ErrInvalidMessage)
	}

	// The second-to-last certificate in the path is that of the private
	// gateway serving the recipient.
	gatewayAddress := path[len(path)-2].SubjectID

	key, err := KeyForPrivatePeerParcel(
		parcel.ID,
		parcel.SenderID,
		parcel.Recipient.ID,
		gatewayAddress,
	)
	if err != nil {
		return "", err
	}

	if err := s.Objects.PutObject(
		ctx,
		&objectstore.Object{
			Body: serialized,
			Metadata: map[string]string{
				expiryMetadataKey: strconv.FormatInt(parcel.ExpiryDate.Unix(), 10),
			},
		},
		key,
		s.Bucket,
	); err != nil {
		return "", fmt.Errorf("unable to store parcel: %w", err)
	}

	if err := s.Broker.Publish(
		ctx,
		privatePeerChannelPrefix+gatewayAddress,
		[]byte(key),
	); err != nil {
		return "", fmt.Errorf("unable to announce parcel: %w", err)
	}

	logger.Debug(
		"Parcel stored for private peer",
		slog.String("parcelObjectKey", key),
		slog.String("privateGatewayAddress", gatewayAddress),
	)

	return key, nil
}

// StoreParcelForInternetPeer stores a parcel bound for an Internet-reachable
// endpoint and queues it for the external delivery worker.
//
// Re-sending a parcel the peer already handed over is a no-op; the empty key
// is returned and nothing is queued.
func (s *Store) StoreParcelForInternetPeer(
	ctx context.Context,
	parcel *awala.Parcel,
	serialized []byte,
	privatePeerID string,
	logger *slog.Logger,
) (string, error) {
	if err := s.Validator.ValidateStandalone(ctx, parcel, serialized); err != nil {
		return "", fmt.Errorf("unable to validate parcel: %w", err)
	}

	collected, err := s.Collections.WasCollected(ctx, parcel, privatePeerID)
	if err != nil {
		return "", fmt.Errorf("unable to query collection ledger: %w", err)
	}
	if collected {
		logger.Debug(
			"Ignoring previously collected parcel",
			slog.String("parcelId", parcel.ID),
		)
		return "", nil
	}

	key, err := KeyForInternetPeerParcel(
		privatePeerID,
		parcel.SenderID,
		parcel.Recipient.ID,
		parcel.ID,
	)
	if err != nil {
		return "", err
	}

	if err := s.Objects.PutObject(
		ctx,
		&objectstore.Object{
			Body: serialized,
		},
		internetPeerPrefix+"/"+key,
		s.Bucket,
	); err != nil {
		return "", fmt.Errorf("unable to store parcel: %w", err)
	}

	data, err := json.Marshal(queuedInternetBoundParcelMessage{
		ParcelObjectKey:        key,
		ParcelRecipientAddress: parcel.Recipient.InternetAddress,
		ParcelExpiryDate:       parcel.ExpiryDate,
		DeliveryAttempts:       0,
	})
	if err != nil {
		return "", fmt.Errorf("unable to marshal delivery message: %w", err)
	}

	if err := s.Broker.Publish(ctx, internetParcelsChannel, data); err != nil {
		return "", fmt.Errorf("unable to queue parcel for delivery: %w", err)
	}

	if err := s.Collections.Record(ctx, parcel, privatePeerID); err != nil {
		return "", fmt.Errorf("unable to record collection: %w", err)
	}

	logger.Debug(
		"Parcel queued for Internet delivery",
		slog.String("parcelObjectKey", key),
		slog.String("recipientAddress", parcel.Recipient.InternetAddress),
	)

	return key, nil
}

// RetrieveParcelsForPrivatePeer returns a snapshot stream of the active
// parcels awaiting collection by the private peer identified by peerID.
func (s *Store) RetrieveParcelsForPrivatePeer(
	ctx context.Context,
	peerID string,
	logger *slog.Logger,
) stream.Stream[Object[struct{}]] {
	return activeParcels(
		s.Objects,
		s.Bucket,
		s.clock(),
		logger,
		s.listPrivatePeerParcels(ctx, peerID),
	)
}

// StreamParcelsForPrivatePeer is like RetrieveParcelsForPrivatePeer, but each
// parcel carries an Ack that removes it from the store.
func (s *Store) StreamParcelsForPrivatePeer(
	ctx context.Context,
	peerID string,
	logger *slog.Logger,
) stream.Stream[StreamMessage] {
	parcels := activeParcels(
		s.Objects,
		s.Bucket,
		s.clock(),
		logger,
		s.listPrivatePeerParcels(ctx, peerID),
	)

	return stream.Func[StreamMessage](
		func(ctx context.Context) (StreamMessage, bool, error) {
			obj, ok, err := parcels.Next(ctx)
			if !ok || err != nil {
				return StreamMessage{}, false, err
			}

			return StreamMessage{
				Key:        obj.Key,
				Body:       obj.Body,
				ExpiryDate: obj.ExpiryDate,
				Ack: func(ctx context.Context) error {
					return s.Objects.DeleteObject(ctx, obj.Key, s.Bucket)
				},
			}, true, nil
		},
	)
}

// LiveStreamParcelsForPrivatePeer streams active parcels for the private
// peer identified by peerID as they are announced on the broker.
//
// Each gateway instance serving the peer joins the same queue group, so a
// parcel is delivered to at most one instance. The stream ends, without
// error, when ctx is canceled.
func (s *Store) LiveStreamParcelsForPrivatePeer(
	ctx context.Context,
	peerID string,
	logger *slog.Logger,
) (stream.Stream[StreamMessage], error) {
	messages, err := s.Broker.QueueSubscribe(
		ctx,
		privatePeerChannelPrefix+peerID,
		collectionQueueGroup,
		peerID,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to subscribe to parcel announcements: %w", err)
	}

	source := stream.Func[ObjectMetadata[broker.Message]](
		func(ctx context.Context) (ObjectMetadata[broker.Message], bool, error) {
			m, ok, err := messages.Next(ctx)
			if !ok || err != nil {
				return ObjectMetadata[broker.Message]{}, false, err
			}

			return ObjectMetadata[broker.Message]{
				Key:   string(m.Data),
				Extra: m,
			}, true, nil
		},
	)

	parcels := activeParcels(
		s.Objects,
		s.Bucket,
		s.clock(),
		logger,
		source,
	)

	return stream.Func[StreamMessage](
		func(ctx context.Context) (StreamMessage, bool, error) {
			obj, ok, err := parcels.Next(ctx)
			if !ok || err != nil {
				return StreamMessage{}, false, err
			}

			return StreamMessage{
				Key:        obj.Key,
				Body:       obj.Body,
				ExpiryDate: obj.ExpiryDate,
				Ack: func(ctx context.Context) error {
					if err := obj.Extra.Ack(); err != nil {
						return err
					}
					return s.Objects.DeleteObject(ctx, obj.Key, s.Bucket)
				},
			}, true, nil
		},
	), nil
}

// DeleteParcelForPrivatePeer deletes a parcel bound for a private peer. It
// is a no-op if the parcel does not exist.
func (s *Store) DeleteParcelForPrivatePeer(
	ctx context.Context,
	parcelID, senderID, recipientAddress, recipientGatewayAddress string,
) error {
	key, err := KeyForPrivatePeerParcel(
		parcelID,
		senderID,
		recipientAddress,
		recipientGatewayAddress,
	)
	if err != nil {
		return err
	}

	return s.Objects.DeleteObject(ctx, key, s.Bucket)
}

// DeleteParcelForInternetPeer deletes an Internet-bound parcel by the
// relative key carried in its delivery queue message. It is a no-op if the
// parcel does not exist.
func (s *Store) DeleteParcelForInternetPeer(ctx context.Context, key string) error {
	return s.Objects.DeleteObject(ctx, internetPeerPrefix+"/"+key, s.Bucket)
}

// RetrieveParcelForInternetPeer returns the serialization of an
// Internet-bound parcel by the relative key carried in its delivery queue
// message, or nil if the parcel no longer exists.
func (s *Store) RetrieveParcelForInternetPeer(
	ctx context.Context,
	key string,
) ([]byte, error) {
	obj, err := s.Objects.GetObject(ctx, internetPeerPrefix+"/"+key, s.Bucket)
	if err != nil || obj == nil {
		return nil, err
	}
	return obj.Body, nil
}

func (s *Store) listPrivatePeerParcels(
	ctx context.Context,
	peerID string,
) stream.Stream[ObjectMetadata[struct{}]] {
	keys := s.Objects.ListObjectKeys(
		ctx,
		privatePeerPrefix+"/"+peerID+"/",
		s.Bucket,
	)

	return stream.Func[ObjectMetadata[struct{}]](
		func(ctx context.Context) (ObjectMetadata[struct{}], bool, error) {
			k, ok, err := keys.Next(ctx)
			if !ok || err != nil {
				return ObjectMetadata[struct{}]{}, false, err
			}
			return ObjectMetadata[struct{}]{Key: k}, true, nil
		},
	)
}

func (s *Store) clock() func() time.Time {
	if s.Clock != nil {
		return s.Clock
	}
	return time.Now
}
