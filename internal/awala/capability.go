package awala

import (
	"context"
	"errors"
)

// ErrInvalidMessage indicates that a message's signature, structure or
// validity period is invalid.
var ErrInvalidMessage = errors.New("invalid message")

// ErrUnknownKey indicates that the key required to decrypt an envelope is not
// held by this gateway.
var ErrUnknownKey = errors.New("unknown key")

// ErrMalformedEnvelope indicates that a payload is not a recognized encrypted
// envelope.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// ParcelValidator verifies parcel signatures and certification paths.
type ParcelValidator interface {
	// ValidateTrusted verifies p's signature and its certification path
	// against the given trusted certificates.
	//
	// It returns the certification path ordered from the sender's
	// certificate to the trusted root; the second-to-last certificate is
	// that of the private gateway via which the recipient is served, since
	// the sender's authority to message the recipient is delegated through
	// that gateway.
	//
	// It fails with an error satisfying [ErrInvalidMessage] if the parcel is
	// not valid.
	ValidateTrusted(
		ctx context.Context,
		p *Parcel,
		serialized []byte,
		trusted []*Certificate,
	) ([]*Certificate, error)

	// ValidateStandalone verifies p's signature and validity period without
	// requiring its certification path to be anchored in this gateway's
	// certificates.
	//
	// It fails with an error satisfying [ErrInvalidMessage] if the parcel is
	// not valid.
	ValidateStandalone(ctx context.Context, p *Parcel, serialized []byte) error
}

// CCAParser parses serialized cargo collection authorizations.
type CCAParser interface {
	// ParseCCA parses and verifies the signature of a serialized CCA.
	//
	// It fails with an error satisfying [ErrInvalidMessage] if the
	// serialization is malformed.
	ParseCCA(ctx context.Context, serialized []byte) (*CargoCollectionAuthorization, error)
}

// SessionKeyStore holds the gateway's session keys.
type SessionKeyStore interface {
	// UnwrapCCR decrypts the collection request embedded in cca.
	//
	// It fails with an error satisfying [ErrMalformedEnvelope] if the
	// payload is not a recognized encrypted envelope, [ErrUnknownKey] if the
	// decryption key is not held by this gateway, or [ErrInvalidMessage] if
	// the decrypted request is malformed.
	UnwrapCCR(ctx context.Context, cca *CargoCollectionAuthorization) (*CargoCollectionRequest, error)
}

// CargoSealer produces signed, encrypted cargo serializations.
type CargoSealer interface {
	// SealCargo packs messages into a single cargo bound for the sender of
	// cca, encrypting the payload under the session key in ccr and signing
	// the result with the gateway's current identity key.
	SealCargo(
		ctx context.Context,
		cca *CargoCollectionAuthorization,
		ccr *CargoCollectionRequest,
		messages [][]byte,
	) ([]byte, error)
}

// Suite aggregates the cryptographic capabilities the gateway consumes. The
// implementations own the wire format of every message the gateway relays.
type Suite struct {
	ParcelValidator ParcelValidator
	CCAParser       CCAParser
	SessionKeys     SessionKeyStore
	CargoSealer     CargoSealer
	PCASerializer   PCASerializer
}

// PCASerializer serializes parcel collection acknowledgments.
type PCASerializer interface {
	// SerializePCA produces the signed serialization of pca.
	SerializePCA(ctx context.Context, pca *ParcelCollectionAck) ([]byte, error)
}
