// Package pki persists the gateway's own certificates, which anchor the
// trust of parcels bound for private peers.
package pki

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relaymesh/gateway/internal/awala"
	"github.com/relaymesh/gateway/internal/persistence/kv"
)

const keyspaceName = "own-certificates"

// CertificateStore persists the gateway's own certificates in the document
// store.
type CertificateStore struct {
	// KV is the document store in which certificates are persisted.
	KV kv.Store

	// Clock is used to ignore expired certificates. If it is nil, time.Now()
	// is used.
	Clock func() time.Time
}

type storedCertificate struct {
	SubjectID     string    `json:"subjectId"`
	ExpiryDate    time.Time `json:"expiryDate"`
	Serialization []byte    `json:"serialization"`
}

// Save persists cert.
//
// Saving the same certificate twice is a no-op; distinct certificates for the
// same subject (e.g. across rotations) are retained side by side.
func (s *CertificateStore) Save(ctx context.Context, cert *awala.Certificate) error {
	ks, err := s.KV.Open(ctx, keyspaceName)
	if err != nil {
		return fmt.Errorf("unable to open certificate keyspace: %w", err)
	}
	defer ks.Close()

	v, err := json.Marshal(storedCertificate{
		SubjectID:     cert.SubjectID,
		ExpiryDate:    cert.ExpiryDate,
		Serialization: cert.Serialization,
	})
	if err != nil {
		return fmt.Errorf("unable to marshal certificate: %w", err)
	}

	digest := sha256.Sum256(cert.Serialization)

	if err := ks.Set(ctx, digest[:], v); err != nil {
		return fmt.Errorf("unable to save certificate: %w", err)
	}

	return nil
}

// Retrieve returns the gateway's own certificates, excluding any that have
// expired.
func (s *CertificateStore) Retrieve(ctx context.Context) ([]*awala.Certificate, error) {
	ks, err := s.KV.Open(ctx, keyspaceName)
	if err != nil {
		return nil, fmt.Errorf("unable to open certificate keyspace: %w", err)
	}
	defer ks.Close()

	now := time.Now
	if s.Clock != nil {
		now = s.Clock
	}

	var certs []*awala.Certificate

	if err := ks.Range(
		ctx,
		func(_ context.Context, _, v []byte) (bool, error) {
			var stored storedCertificate
			if err := json.Unmarshal(v, &stored); err != nil {
				return false, fmt.Errorf("unable to unmarshal certificate: %w", err)
			}

			if !stored.ExpiryDate.After(now()) {
				return true, nil
			}

			certs = append(certs, &awala.Certificate{
				SubjectID:     stored.SubjectID,
				ExpiryDate:    stored.ExpiryDate,
				Serialization: stored.Serialization,
			})

			return true, nil
		},
	); err != nil {
		return nil, fmt.Errorf("unable to retrieve certificates: %w", err)
	}

	return certs, nil
}
