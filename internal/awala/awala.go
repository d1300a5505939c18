// Package awala contains the domain types exchanged between the gateway and
// its peers, together with the interfaces to the cryptographic capabilities
// that produce and consume them.
//
// The wire encoding of these types is owned by the cryptographic layer; this
// package only deals in their parsed form and their opaque serializations.
package awala

import "time"

// A Recipient is the addressee of a parcel.
type Recipient struct {
	// ID is the private address of the recipient endpoint.
	ID string

	// InternetAddress is the public address at which the recipient is
	// reachable directly, or empty if the recipient is only reachable via a
	// private gateway.
	InternetAddress string
}

// A Parcel is the parsed form of an addressed, signed, end-to-end encrypted
// message unit.
type Parcel struct {
	// ID is the parcel's identity, unique per sender.
	ID string

	// SenderID is the subject ID of the sender's certificate.
	SenderID string

	// Recipient is the parcel's addressee.
	Recipient Recipient

	// ExpiryDate is the time after which the parcel must not be delivered.
	ExpiryDate time.Time
}

// A Certificate is the parsed form of an identity certificate.
type Certificate struct {
	// SubjectID is the private address of the certificate's subject.
	SubjectID string

	// ExpiryDate is the end of the certificate's validity period.
	ExpiryDate time.Time

	// Serialization is the certificate's DER serialization.
	Serialization []byte
}

// A CargoCollectionAuthorization (CCA) is a single-use, time-bounded
// credential authorizing one cargo collection exchange.
type CargoCollectionAuthorization struct {
	// RecipientAddress is the public address of the gateway the CCA is bound
	// for.
	RecipientAddress string

	// SenderCertificate is the certificate of the private gateway issuing
	// the collection request.
	SenderCertificate *Certificate

	// ExpiryDate is the end of the CCA's validity period.
	ExpiryDate time.Time

	// Payload is the encrypted cargo collection request.
	Payload []byte

	// Serialized is the CCA's full signed serialization, as presented by the
	// peer. It is retained because it is the CCA's canonical identity.
	Serialized []byte
}

// A CargoCollectionRequest (CCR) is the decrypted payload of a CCA.
type CargoCollectionRequest struct {
	// CargoDeliveryAuthorization is the serialized certificate the gateway
	// must sign cargo with.
	CargoDeliveryAuthorization []byte

	// SessionKey is the key under which cargo payloads must be encrypted.
	SessionKey SessionKey
}

// A SessionKey identifies the public half of an ephemeral session key pair.
type SessionKey struct {
	ID        []byte
	PublicKey []byte
}

// A ParcelCollectionAck (PCA) is proof that a parcel was collected by its
// recipient, returned to the original sender's gateway.
type ParcelCollectionAck struct {
	// SenderEndpointID is the private address of the endpoint that sent the
	// original parcel.
	SenderEndpointID string

	// RecipientEndpointAddress is the address of the endpoint the parcel was
	// bound for.
	RecipientEndpointAddress string

	// ParcelID is the identity of the collected parcel.
	ParcelID string
}

// A CargoMessage is a message (a parcel or PCA serialization) destined for
// inclusion in a cargo.
type CargoMessage struct {
	// ExpiryDate is the time after which the message need not be delivered.
	ExpiryDate time.Time

	// Serialized is the message's opaque serialization.
	Serialized []byte
}
