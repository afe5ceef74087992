package fakes

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

// CertSpec describes a self-signed test certificate.
type CertSpec struct {
	CommonName   string
	Organization string
	NotBefore    time.Time
	NotAfter     time.Time
	Serial       int64
}

// Cert is a generated certificate and its key.
type Cert struct {
	Certificate *x509.Certificate
	Key         *ecdsa.PrivateKey
}

// NewCert generates a self-signed P-256 certificate.
func NewCert(t testing.TB, spec CertSpec) Cert {
	t.Helper()
	if spec.Serial == 0 {
		spec.Serial = 1
	}
	if spec.NotBefore.IsZero() {
		spec.NotBefore = time.Now().Add(-time.Hour)
	}
	if spec.NotAfter.IsZero() {
		spec.NotAfter = time.Now().Add(365 * 24 * time.Hour)
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	subject := pkix.Name{CommonName: spec.CommonName}
	if spec.Organization != "" {
		subject.Organization = []string{spec.Organization}
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(spec.Serial),
		Subject:      subject,
		Issuer:       subject,
		NotBefore:    spec.NotBefore,
		NotAfter:     spec.NotAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return Cert{Certificate: cert, Key: key}
}

// PFX encodes c with its key as a password-protected PKCS#12 file.
func PFX(t testing.TB, c Cert, password string) []byte {
	t.Helper()
	b, err := pkcs12.Modern.Encode(c.Key, c.Certificate, nil, password)
	if err != nil {
		t.Fatalf("encode pkcs12: %v", err)
	}
	return b
}

// CertOnlyPFX encodes c without its private key.
func CertOnlyPFX(t testing.TB, c Cert, password string) []byte {
	t.Helper()
	b, err := pkcs12.Modern.EncodeTrustStore([]*x509.Certificate{c.Certificate}, password)
	if err != nil {
		t.Fatalf("encode pkcs12 trust store: %v", err)
	}
	return b
}
