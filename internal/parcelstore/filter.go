package parcelstore

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/relaymesh/gateway/internal/persistence/objectstore"
	"github.com/relaymesh/gateway/internal/stream"
)

// expiryMetadataKey is the object metadata key under which a parcel's expiry
// is stored, as decimal Unix seconds.
const expiryMetadataKey = "parcel-expiry"

// ObjectMetadata identifies a stored parcel before its body has been
// fetched. Extra carries stage-specific context, such as the broker message
// to acknowledge.
type ObjectMetadata[E any] struct {
	Key   string
	Extra E
}

// Object is a stored parcel that has passed the active-parcel filter.
type Object[E any] struct {
	Key        string
	Body       []byte
	ExpiryDate time.Time
	Extra      E
}

// activeParcels filters source down to the parcels that still exist and have
// not expired.
//
// Parcels that are missing, carry no parseable expiry, or have expired are
// dropped and logged; they never fail the stream. Infrastructure failures
// do fail it.
func activeParcels[E any](
	objects objectstore.Client,
	bucket string,
	clock func() time.Time,
	logger *slog.Logger,
	source stream.Stream[ObjectMetadata[E]],
) stream.Stream[Object[E]] {
	return stream.Func[Object[E]](
		func(ctx context.Context) (Object[E], bool, error) {
			for {
				md, ok, err := source.Next(ctx)
				if !ok || err != nil {
					return Object[E]{}, false, err
				}

				obj, err := objects.GetObject(ctx, md.Key, bucket)
				if err != nil {
					return Object[E]{}, false, err
				}

				if obj == nil {
					logger.Info(
						"Parcel object could not be found",
						slog.String("parcelObjectKey", md.Key),
					)
					continue
				}

				expiryString, found := obj.Metadata[expiryMetadataKey]
				if !found {
					logger.Warn(
						"Parcel object does not have a valid expiry timestamp",
						slog.String("parcelObjectKey", md.Key),
					)
					continue
				}

				expirySeconds, err := strconv.ParseInt(expiryString, 10, 64)
				if err != nil {
					logger.Warn(
						"Parcel object does not have a valid expiry timestamp",
						slog.String("parcelObjectKey", md.Key),
						slog.String("expiry", expiryString),
					)
					continue
				}

				expiry := time.Unix(expirySeconds, 0)
				if !expiry.After(clock()) {
					logger.Info(
						"Ignoring expired parcel",
						slog.String("parcelObjectKey", md.Key),
						slog.Time("parcelExpiryDate", expiry),
					)
					continue
				}

				return Object[E]{
					Key:        md.Key,
					Body:       obj.Body,
					ExpiryDate: expiry,
					Extra:      md.Extra,
				}, true, nil
			}
		},
	)
}
