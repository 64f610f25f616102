package certs

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/stoq-transport/stoq/internal/logging"
)

// CertificateAuthority validates a peer certificate against an
// external source of truth, used in place of self-signed trust when a
// deployment has an online CA available.
type CertificateAuthority interface {
	// Validate returns nil if cert is trusted for the given peer
	// identity. Any error, including one reporting an inconclusive or
	// unreachable CA, must be treated as rejection by the caller: the
	// verification policy here is fail-closed.
	Validate(ctx context.Context, cert *x509.Certificate, peerID string) error
}

// VerifyWithCA adapts a CertificateAuthority into a
// tls.Config.VerifyPeerCertificate callback. On any CA error, including
// a context timeout or transport failure talking to the CA itself, the
// connection is rejected: an ambiguous answer from the CA is never
// treated as trust.
func VerifyWithCA(ctx context.Context, ca CertificateAuthority, peerID string) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("certs: no peer certificate presented")
		}

		cert, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("certs: parse peer certificate: %w", err)
		}

		if err := ca.Validate(ctx, cert, peerID); err != nil {
			logging.Warn("certificate authority rejected peer", zap.String("peer_id", peerID), zap.Error(err))
			return fmt.Errorf("certs: peer certificate rejected: %w", err)
		}
		return nil
	}
}

// StaticCA trusts a fixed set of certificates by fingerprint, for
// environments that distribute peer identities out of band rather than
// running a live CA service.
type StaticCA struct {
	trusted map[string]struct{}
}

// NewStaticCA returns a StaticCA trusting the given SHA-256
// fingerprints (hex-encoded).
func NewStaticCA(fingerprints []string) *StaticCA {
	trusted := make(map[string]struct{}, len(fingerprints))
	for _, fp := range fingerprints {
		trusted[fp] = struct{}{}
	}
	return &StaticCA{trusted: trusted}
}

// Validate implements CertificateAuthority.
func (s *StaticCA) Validate(_ context.Context, cert *x509.Certificate, _ string) error {
	fp := fingerprintHex(cert)
	if _, ok := s.trusted[fp]; !ok {
		return fmt.Errorf("certs: certificate fingerprint %s not in trust set", fp)
	}
	return nil
}

func fingerprintHex(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}
