// Package certs manages the TLS identity used to authenticate QUIC
// handshakes: self-signed certificate generation for the common
// zero-configuration case, and an online certificate authority
// interface for deployments that need externally verifiable identity.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"
)

// DefaultValidity is how long a self-signed certificate remains valid.
const DefaultValidity = 24 * time.Hour

// GenerateSelfSigned creates a self-signed ECDSA P-256 certificate
// bound to ip, valid for validity starting now. ECDSA is used over RSA
// for the smaller handshake payload QUIC benefits from.
func GenerateSelfSigned(ip net.IP, validity time.Duration) (*tls.Certificate, error) {
	if validity <= 0 {
		validity = DefaultValidity
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("certs: generate private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("certs: generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:         "stoq-node",
			Organization:       []string{"stoq"},
			OrganizationalUnit: []string{"transport"},
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(validity),
		KeyUsage:    x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:    []string{"localhost"},
		IPAddresses: []net.IP{net.IPv6loopback},
	}
	if ip != nil {
		template.IPAddresses = append(template.IPAddresses, ip)
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, fmt.Errorf("certs: create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		return nil, fmt.Errorf("certs: parse certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  privateKey,
		Leaf:        cert,
	}, nil
}

// TLSConfig builds a minimal *tls.Config for QUIC server use around a
// self-signed certificate bound to ip.
func TLSConfig(ip net.IP, nextProtos []string) (*tls.Config, error) {
	cert, err := GenerateSelfSigned(ip, DefaultValidity)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		ClientAuth:   tls.NoClientCert,
		NextProtos:   nextProtos,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
