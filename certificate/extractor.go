package certificate

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/youmark/pkcs8"
	"software.sslmate.com/src/go-pkcs12"
)

const (
	pemTypeCertificate  = "CERTIFICATE"
	pemTypeEncryptedKey = "ENCRYPTED PRIVATE KEY"
)

// Extractor opens PKCS#12 certificate bundles. It holds no state besides
// its clock and is safe for concurrent use.
type Extractor struct {
	now     func() time.Time
	keyOpts *pkcs8.Opts
}

type Option func(*Extractor)

// WithClock sets the time source used by Validate.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithKeyOptions overrides the PKCS#8 encryption parameters of KeyPayload.
// The default is PBES2 with PBKDF2/HMAC-SHA256 and AES-256-CBC.
func WithKeyOptions(opts *pkcs8.Opts) Option {
	return func(e *Extractor) { e.keyOpts = opts }
}

func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

var defaultExtractor = NewExtractor()

// Extract parses fileBytes as PKCS#12 and returns the normalized bundle.
func Extract(fileBytes []byte, password string) (*Bundle, error) {
	return defaultExtractor.Extract(fileBytes, password)
}

// Validate reports whether fileBytes opens with password and is currently valid.
func Validate(fileBytes []byte, password string) bool {
	return defaultExtractor.Validate(fileBytes, password)
}

// Extract parses fileBytes as PKCS#12 and returns the normalized bundle.
//
// The private key is re-encrypted as PKCS#8 under the same password, so a
// bundle that opens with an empty password is rejected with
// KindInvalidPassword: it would produce an unencrypted key. Expiry is not checked here; use Validate or
// Bundle.Expired.
func (e *Extractor) Extract(fileBytes []byte, password string) (*Bundle, error) {
	key, cert, err := decode(fileBytes, password)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, &Error{Kind: KindInvalidPassword, Err: errors.New("empty password")}
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: pemTypeCertificate, Bytes: cert.Raw})

	keyDER, err := pkcs8.MarshalPrivateKey(key, []byte(password), e.keyOpts)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Err: fmt.Errorf("encrypting private key: %w", err)}
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: pemTypeEncryptedKey, Bytes: keyDER})

	return &Bundle{
		Subject:            displayName(cert.Subject.CommonName, cert.Subject.String()),
		Issuer:             displayName(cert.Issuer.CommonName, cert.Issuer.String()),
		ValidFrom:          cert.NotBefore.UTC(),
		ValidUntil:         cert.NotAfter.UTC(),
		SerialNumber:       cert.SerialNumber.String(),
		CertificatePayload: BarePayload(string(certPEM)),
		KeyPayload:         BarePayload(string(keyPEM)),
	}, nil
}

// Validate is a permissive probe: true only when the bundle opens with
// password, holds both a key and a certificate, and the certificate is
// within its validity window. It never returns an error.
func (e *Extractor) Validate(fileBytes []byte, password string) bool {
	_, cert, err := decode(fileBytes, password)
	if err != nil {
		return false
	}
	now := e.now()
	return !now.Before(cert.NotBefore) && !now.After(cert.NotAfter)
}

func decode(fileBytes []byte, password string) (key any, cert *x509.Certificate, err error) {
	if len(fileBytes) == 0 {
		return nil, nil, &Error{Kind: KindMalformed, Err: errors.New("empty input")}
	}
	key, cert, _, err = pkcs12.DecodeChain(fileBytes, password)
	if err != nil {
		return nil, nil, classify(err)
	}
	return key, cert, nil
}

// classify maps parser failures to error kinds. go-pkcs12 reports missing
// bags with plain errors, so those are matched by message.
func classify(err error) error {
	switch {
	case errors.Is(err, pkcs12.ErrIncorrectPassword), errors.Is(err, pkcs12.ErrDecryption):
		return &Error{Kind: KindInvalidPassword, Err: err}
	case strings.Contains(err.Error(), "certificate missing"),
		strings.Contains(err.Error(), "private key missing"):
		return &Error{Kind: KindMissingKeyOrCert, Err: err}
	default:
		return &Error{Kind: KindMalformed, Err: err}
	}
}

// CheckKeyPassword reports whether password decrypts keyPayload, a bare
// encrypted PKCS#8 body as produced by Extract.
func CheckKeyPassword(keyPayload, password string) error {
	der, err := base64.StdEncoding.DecodeString(keyPayload)
	if err != nil {
		return &Error{Kind: KindMalformed, Err: fmt.Errorf("key payload: %w", err)}
	}
	if _, err := pkcs8.ParsePKCS8PrivateKey(der, []byte(password)); err != nil {
		return &Error{Kind: KindInvalidPassword, Err: err}
	}
	return nil
}

func displayName(cn, dn string) string {
	if cn != "" {
		return cn
	}
	return dn
}

// BarePayload strips PEM envelope markers and all line breaks from pemText,
// leaving the base64 body.
func BarePayload(pemText string) string {
	var sb strings.Builder
	for _, line := range strings.Split(pemText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-----") {
			continue
		}
		sb.WriteString(line)
	}
	return sb.String()
}
