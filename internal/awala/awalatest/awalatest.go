// Package awalatest provides test doubles for the cryptographic capability
// interfaces in the awala package.
package awalatest

import (
	"context"

	"github.com/relaymesh/gateway/internal/awala"
)

// ParcelValidatorStub is a test implementation of [awala.ParcelValidator].
type ParcelValidatorStub struct {
	ValidateTrustedFunc func(
		ctx context.Context,
		p *awala.Parcel,
		serialized []byte,
		trusted []*awala.Certificate,
	) ([]*awala.Certificate, error)

	ValidateStandaloneFunc func(
		ctx context.Context,
		p *awala.Parcel,
		serialized []byte,
	) error
}

// ValidateTrusted calls ValidateTrustedFunc, or fails if it is nil.
func (s *ParcelValidatorStub) ValidateTrusted(
	ctx context.Context,
	p *awala.Parcel,
	serialized []byte,
	trusted []*awala.Certificate,
) ([]*awala.Certificate, error) {
	if s.ValidateTrustedFunc == nil {
		return nil, awala.ErrInvalidMessage
	}
	return s.ValidateTrustedFunc(ctx, p, serialized, trusted)
}

// ValidateStandalone calls ValidateStandaloneFunc, or fails if it is nil.
func (s *ParcelValidatorStub) ValidateStandalone(
	ctx context.Context,
	p *awala.Parcel,
	serialized []byte,
) error {
	if s.ValidateStandaloneFunc == nil {
		return awala.ErrInvalidMessage
	}
	return s.ValidateStandaloneFunc(ctx, p, serialized)
}

// CCAParserStub is a test implementation of [awala.CCAParser].
type CCAParserStub struct {
	ParseCCAFunc func(ctx context.Context, serialized []byte) (*awala.CargoCollectionAuthorization, error)
}

// ParseCCA calls ParseCCAFunc, or fails if it is nil.
func (s *CCAParserStub) ParseCCA(
	ctx context.Context,
	serialized []byte,
) (*awala.CargoCollectionAuthorization, error) {
	if s.ParseCCAFunc == nil {
		return nil, awala.ErrInvalidMessage
	}
	return s.ParseCCAFunc(ctx, serialized)
}

// SessionKeyStoreStub is a test implementation of [awala.SessionKeyStore].
type SessionKeyStoreStub struct {
	UnwrapCCRFunc func(ctx context.Context, cca *awala.CargoCollectionAuthorization) (*awala.CargoCollectionRequest, error)
}

// UnwrapCCR calls UnwrapCCRFunc, or fails if it is nil.
func (s *SessionKeyStoreStub) UnwrapCCR(
	ctx context.Context,
	cca *awala.CargoCollectionAuthorization,
) (*awala.CargoCollectionRequest, error) {
	if s.UnwrapCCRFunc == nil {
		return nil, awala.ErrUnknownKey
	}
	return s.UnwrapCCRFunc(ctx, cca)
}

// CargoSealerStub is a test implementation of [awala.CargoSealer] that
// records the message batches it seals.
type CargoSealerStub struct {
	SealCargoFunc func(
		ctx context.Context,
		cca *awala.CargoCollectionAuthorization,
		ccr *awala.CargoCollectionRequest,
		messages [][]byte,
	) ([]byte, error)

	// SealedBatches is the sequence of message batches passed to SealCargo.
	SealedBatches [][][]byte
}

// SealCargo records the batch and calls SealCargoFunc, or returns a marker
// serialization if it is nil.
func (s *CargoSealerStub) SealCargo(
	ctx context.Context,
	cca *awala.CargoCollectionAuthorization,
	ccr *awala.CargoCollectionRequest,
	messages [][]byte,
) ([]byte, error) {
	s.SealedBatches = append(s.SealedBatches, messages)

	if s.SealCargoFunc == nil {
		return []byte("<cargo>"), nil
	}
	return s.SealCargoFunc(ctx, cca, ccr, messages)
}

// PCASerializerStub is a test implementation of [awala.PCASerializer].
type PCASerializerStub struct {
	SerializePCAFunc func(ctx context.Context, pca *awala.ParcelCollectionAck) ([]byte, error)
}

// SerializePCA calls SerializePCAFunc, or returns a marker serialization if
// it is nil.
func (s *PCASerializerStub) SerializePCA(
	ctx context.Context,
	pca *awala.ParcelCollectionAck,
) ([]byte, error) {
	if s.SerializePCAFunc == nil {
		return []byte("<pca:" + pca.ParcelID + ">"), nil
	}
	return s.SerializePCAFunc(ctx, pca)
}
