package cogrpc

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/url"
	"strings"

	"github.com/relaymesh/gateway/internal/awala"
	"github.com/relaymesh/gateway/internal/fsm"
	"github.com/relaymesh/gateway/internal/stream"
	"github.com/relaymesh/gateway/internal/telemetry"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// authorizationScheme is the type tag that prefixes the CCA in the call's
// authorization metadata.
const authorizationScheme = "Relaynet-CCA"

// CollectCargo serves a single cargo collection exchange.
//
// The caller presents a CCA in the call's authorization metadata; the
// response is a stream of zero or more sealed cargoes containing the PCAs
// owed to the caller followed by its pending parcels. Each CCA is honored at
// most once.
func (s *Service) CollectCargo(call Call) error {
	r := s.Telemetry.Recorder("cogrpc")

	ctx, span := r.StartSpan(call.Context(), "cogrpc.CollectCargo")
	defer span.End()

	logger := r.Logger().With(
		slog.String("grpcMethod", "collectCargo"),
	)
	if p, ok := peer.FromContext(ctx); ok {
		logger = logger.With(
			slog.String("grpcClient", p.Addr.String()),
		)
	}

	c := &collect{
		service:  s,
		call:     call,
		recorder: r,
		logger:   logger,
	}

	return fsm.Start(ctx, c.authenticate)
}

// collect is the state of a single CollectCargo invocation.
type collect struct {
	service  *Service
	call     Call
	recorder *telemetry.Recorder
	logger   *slog.Logger

	cca              *awala.CargoCollectionAuthorization
	ccr              *awala.CargoCollectionRequest
	peerID           string
	cargoesCollected int
}

// authenticate extracts and verifies the caller's CCA.
func (c *collect) authenticate(ctx context.Context) fsm.Action {
	serialized, reason := ccaFromMetadata(ctx)
	if reason != "" {
		return c.refuseInvalidCCA(reason)
	}

	cca, err := c.service.CCAParser.ParseCCA(ctx, serialized)
	if err != nil {
		return c.refuseInvalidCCA("CCA is malformed")
	}

	c.cca = cca
	c.peerID = cca.SenderCertificate.SubjectID
	c.logger = c.logger.With(
		slog.String("peerGatewayAddress", c.peerID),
	)

	ccr, err := c.service.SessionKeys.UnwrapCCR(ctx, cca)
	if err != nil {
		c.logger.Info(
			"Failed to extract Cargo Collection Request",
			slog.Any("err", err),
		)
		return fsm.Fail(status.Error(codes.Unauthenticated, "Invalid CCA"))
	}
	c.ccr = ccr

	return fsm.EnterState(c.authorize)
}

// authorize checks that this gateway may honor the CCA.
func (c *collect) authorize(ctx context.Context) fsm.Action {
	host, ok := recipientHost(c.cca.RecipientAddress)
	if !ok {
		c.logger.Info(
			"Refusing CCA with malformed recipient",
			slog.String("ccaRecipientAddress", c.cca.RecipientAddress),
		)
		return fsm.Fail(status.Error(codes.InvalidArgument, "CCA recipient is malformed"))
	}

	if host != c.service.InternetAddress {
		c.logger.Info(
			"Refusing CCA bound for another gateway",
			slog.String("ccaRecipientAddress", c.cca.RecipientAddress),
		)
		return fsm.Fail(status.Error(codes.InvalidArgument, "CCA recipient is a different gateway"))
	}

	fulfilled, err := c.service.Fulfillments.WasFulfilled(ctx, c.cca)
	if err != nil {
		c.recorder.Error(
			ctx,
			"Failed to query fulfillment ledger",
			err,
			telemetry.String("peerGatewayAddress", c.peerID),
		)
		return fsm.Fail(errInternal())
	}
	if fulfilled {
		c.logger.Info("Refusing CCA that was already fulfilled")
		return fsm.Fail(status.Error(codes.PermissionDenied, "CCA was already fulfilled"))
	}

	return fsm.EnterState(c.generate)
}

// generate assembles the outbound message pipeline: the PCAs owed to the
// peer, followed by its pending parcels.
func (c *collect) generate(ctx context.Context) fsm.Action {
	pcas := c.service.Collections.GeneratePCAs(
		ctx,
		c.peerID,
		func(pca *awala.ParcelCollectionAck) ([]byte, error) {
			return c.service.PCASerializer.SerializePCA(ctx, pca)
		},
	)

	parcels := c.service.Parcels.RetrieveParcelsForPrivatePeer(ctx, c.peerID, c.logger)
	parcelMessages := stream.Func[awala.CargoMessage](
		func(ctx context.Context) (awala.CargoMessage, bool, error) {
			obj, ok, err := parcels.Next(ctx)
			if !ok || err != nil {
				return awala.CargoMessage{}, false, err
			}
			return awala.CargoMessage{
				ExpiryDate: obj.ExpiryDate,
				Serialized: obj.Body,
			}, true, nil
		},
	)

	batches := packCargoMessages(
		stream.Concat(pcas, parcelMessages),
	)

	return fsm.With(batches).EnterState(c.send)
}

// send seals and streams one cargo per batch.
func (c *collect) send(
	ctx context.Context,
	batches stream.Stream[[][]byte],
) fsm.Action {
	batch, ok, err := batches.Next(ctx)
	if err != nil {
		return c.abort(ctx, err)
	}
	if !ok {
		return fsm.EnterState(c.commit)
	}

	cargo, err := c.service.Sealer.SealCargo(ctx, c.cca, c.ccr, batch)
	if err != nil {
		return c.abort(ctx, err)
	}

	if err := c.call.Send(cargo); err != nil {
		return c.abort(ctx, err)
	}

	c.cargoesCollected++

	return fsm.With(batches).EnterState(c.send)
}

// commit records the CCA as fulfilled once the full stream has been flushed.
func (c *collect) commit(ctx context.Context) fsm.Action {
	if err := c.service.Fulfillments.Record(ctx, c.cca); err != nil {
		c.recorder.Error(
			ctx,
			"Failed to record CCA fulfillment",
			err,
			telemetry.String("peerGatewayAddress", c.peerID),
		)
		return fsm.Fail(errInternal())
	}

	c.logger.Info(
		"CCA was fulfilled successfully",
		slog.Int("cargoesCollected", c.cargoesCollected),
	)

	return fsm.Stop()
}

// abort ends the call without recording fulfillment, so the peer may retry
// with the same CCA.
func (c *collect) abort(ctx context.Context, err error) fsm.Action {
	c.recorder.Error(
		ctx,
		"Failed to send cargo",
		err,
		telemetry.String("peerGatewayAddress", c.peerID),
	)
	return fsm.Fail(errInternal())
}

func (c *collect) refuseInvalidCCA(reason string) fsm.Action {
	c.logger.Info(
		"Refusing malformed/invalid CCA",
		slog.String("reason", reason),
	)
	return fsm.Fail(status.Error(codes.Unauthenticated, reason))
}

// ccaFromMetadata extracts the serialized CCA from the call's authorization
// metadata. It returns the refusal reason if the metadata is unusable.
func ccaFromMetadata(ctx context.Context) ([]byte, string) {
	md, _ := metadata.FromIncomingContext(ctx)

	values := md.Get("authorization")
	if len(values) != 1 {
		return nil, "Authorization metadata should be specified exactly once"
	}

	scheme, value, _ := strings.Cut(values[0], " ")
	if scheme != authorizationScheme {
		return nil, "Authorization type should be " + authorizationScheme
	}
	if value == "" {
		return nil, "Authorization value should be set to the CCA"
	}

	serialized, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, "CCA is malformed"
	}

	return serialized, ""
}

// recipientHost extracts the host from a CCA recipient address.
func recipientHost(address string) (string, bool) {
	u, err := url.Parse(address)
	if err != nil || u.Host == "" {
		return "", false
	}
	return u.Host, true
}

func errInternal() error {
	return status.Error(
		codes.Unavailable,
		"Internal server error; please try again later",
	)
}
