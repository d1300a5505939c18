// Package parcelstore persists parcels in the object store and announces
// them to the delivery pipelines via the message broker.
package parcelstore

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

const (
	// privatePeerPrefix is the object key prefix for parcels bound for
	// endpoints behind a private gateway.
	privatePeerPrefix = "parcels/gateway-bound"

	// internetPeerPrefix is the object key prefix for parcels bound for
	// Internet-reachable endpoints.
	internetPeerPrefix = "parcels/endpoint-bound"
)

// KeyForPrivatePeerParcel returns the object key under which a parcel bound
// for a private peer is stored.
//
// The key groups parcels by the recipient's private gateway so that a single
// prefix listing retrieves everything a given peer may collect.
func KeyForPrivatePeerParcel(
	parcelID string,
	senderID string,
	recipientAddress string,
	recipientGatewayAddress string,
) (string, error) {
	if err := requireComponents(
		component{"parcel id", parcelID},
		component{"sender id", senderID},
		component{"recipient address", recipientAddress},
		component{"recipient gateway address", recipientGatewayAddress},
	); err != nil {
		return "", err
	}

	return fmt.Sprintf(
		"%s/%s/%s/%s/%x",
		privatePeerPrefix,
		recipientGatewayAddress,
		recipientAddress,
		senderID,
		sha256.Sum256([]byte(parcelID)),
	), nil
}

// KeyForInternetPeerParcel returns the object key, relative to the
// Internet-bound prefix, under which a parcel bound for an Internet peer is
// stored.
//
// The relative key is what delivery queue messages carry; prepend
// [internetPeerPrefix] to address the object store directly.
func KeyForInternetPeerParcel(
	privatePeerID string,
	senderID string,
	recipientID string,
	parcelID string,
) (string, error) {
	if err := requireComponents(
		component{"private peer id", privatePeerID},
		component{"sender id", senderID},
		component{"recipient id", recipientID},
		component{"parcel id", parcelID},
	); err != nil {
		return "", err
	}

	return fmt.Sprintf(
		"%s/%s/%s/%x",
		privatePeerID,
		senderID,
		recipientID,
		sha256.Sum256([]byte(parcelID)),
	), nil
}

type component struct {
	Name  string
	Value string
}

func requireComponents(components ...component) error {
	for _, c := range components {
		if c.Value == "" {
			return errors.New(c.Name + " must not be empty")
		}
	}
	return nil
}
