// Package credential registers clients' digital certificates and hands them
// out, decrypted, for certificate-file issuance.
package credential

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hamshmas/personal-rehabilitation-docs/certificate"
	"github.com/hamshmas/personal-rehabilitation-docs/gateway"
	"github.com/hamshmas/personal-rehabilitation-docs/vault"
)

var (
	ErrUnsupportedFile = errors.New("credential: only .pfx and .p12 files are accepted")
	ErrExpired         = errors.New("credential: certificate has expired")
	ErrNotRegistered   = errors.New("credential: no certificate registered")
)

// Sealer encrypts and decrypts stored payloads; *vault.Vault satisfies it.
type Sealer interface {
	Encrypt(plaintext string) (vault.EncryptedBlob, error)
	Decrypt(blob vault.EncryptedBlob) (string, error)
}

type Option func(*Service)

func WithExtractor(e *certificate.Extractor) Option { return func(s *Service) { s.extractor = e } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLogger(l logrus.FieldLogger) Option { return func(s *Service) { s.log = l } }

type Service struct {
	sealer    Sealer
	repo      Repository
	extractor *certificate.Extractor
	now       func() time.Time
	log       logrus.FieldLogger
}

func New(sealer Sealer, repo Repository, opts ...Option) *Service {
	s := &Service{
		sealer: sealer,
		repo:   repo,
		now:    time.Now,
		log:    logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.extractor == nil {
		s.extractor = certificate.NewExtractor(certificate.WithClock(s.now))
	}
	s.log = s.log.WithField("component", "credential")
	return s
}

// Register extracts the certificate in fileBytes and stores it as the
// client's active certificate. The password itself is not stored.
func (s *Service) Register(ctx context.Context, clientID int64, fileName string, fileBytes []byte, password string) (*certificate.Metadata, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pfx", ".p12":
	default:
		return nil, ErrUnsupportedFile
	}
	b, err := s.extractor.Extract(fileBytes, password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if b.Expired(now) {
		return nil, fmt.Errorf("%w: valid until %s", ErrExpired, b.ValidUntil.Format(time.RFC3339))
	}

	certEnc, err := s.sealer.Encrypt(b.CertificatePayload)
	if err != nil {
		return nil, fmt.Errorf("encrypt certificate: %w", err)
	}
	keyEnc, err := s.sealer.Encrypt(b.KeyPayload)
	if err != nil {
		return nil, fmt.Errorf("encrypt key: %w", err)
	}
	rec := &Record{
		ID:             uuid.New(),
		ClientID:       clientID,
		FileName:       filepath.Base(fileName),
		Subject:        b.Subject,
		Issuer:         b.Issuer,
		SerialNumber:   b.SerialNumber,
		ValidFrom:      b.ValidFrom,
		ValidUntil:     b.ValidUntil,
		CertificateEnc: certEnc,
		KeyEnc:         keyEnc,
		CreatedAt:      now,
	}
	if err := s.repo.Supersede(ctx, rec); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"client_id":   clientID,
		"subject":     b.Subject,
		"valid_until": b.ValidUntil,
	}).Info("certificate registered")
	md := b.Metadata(now)
	return &md, nil
}

type Status struct {
	HasCertificate bool                  `json:"has_certificate"`
	Certificate    *certificate.Metadata `json:"certificate,omitempty"`
}

func (s *Service) Status(ctx context.Context, clientID int64) (Status, error) {
	rec, err := s.repo.Active(ctx, clientID)
	if errors.Is(err, ErrNotRegistered) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	md := certificate.MetadataOf(rec.Subject, rec.ValidUntil, s.now())
	return Status{HasCertificate: true, Certificate: &md}, nil
}

// Material decrypts the client's active certificate for one issuance call.
// password must be the one the certificate was registered with.
func (s *Service) Material(ctx context.Context, clientID int64, password string) (*gateway.CertificateMaterial, error) {
	rec, err := s.repo.Active(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if s.now().After(rec.ValidUntil) {
		return nil, fmt.Errorf("%w: valid until %s", ErrExpired, rec.ValidUntil.Format(time.RFC3339))
	}
	certPayload, err := s.sealer.Decrypt(rec.CertificateEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt certificate: %w", err)
	}
	keyPayload, err := s.sealer.Decrypt(rec.KeyEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt key: %w", err)
	}
	if err := certificate.CheckKeyPassword(keyPayload, password); err != nil {
		return nil, err
	}
	return &gateway.CertificateMaterial{
		CertificatePayload: certPayload,
		KeyPayload:         keyPayload,
		Password:           password,
	}, nil
}

// Remove retires the client's active certificate.
func (s *Service) Remove(ctx context.Context, clientID int64) error {
	if err := s.repo.Deactivate(ctx, clientID); err != nil {
		return err
	}
	s.log.WithField("client_id", clientID).Info("certificate removed")
	return nil
}
