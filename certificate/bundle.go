package certificate

import "time"

// Bundle is the normalized form of a digital-certificate file.
//
// CertificatePayload and KeyPayload are bare base64 PEM bodies: the
// BEGIN/END markers and line breaks are removed, which is the form the
// issuance API expects. KeyPayload is an encrypted PKCS#8 structure under
// the password the bundle was opened with.
type Bundle struct {
	Subject            string
	Issuer             string
	ValidFrom          time.Time
	ValidUntil         time.Time
	SerialNumber       string
	CertificatePayload string
	KeyPayload         string
}

// Metadata is the only certificate view exposed to callers.
type Metadata struct {
	Subject    string `json:"subject"`
	ValidUntil string `json:"valid_until"`
	IsExpired  bool   `json:"is_expired"`
}

// Metadata reports the bundle's subject and expiry relative to now.
func (b *Bundle) Metadata(now time.Time) Metadata {
	return MetadataOf(b.Subject, b.ValidUntil, now)
}

// MetadataOf builds Metadata from stored fields.
func MetadataOf(subject string, validUntil, now time.Time) Metadata {
	return Metadata{
		Subject:    subject,
		ValidUntil: validUntil.UTC().Format(time.RFC3339),
		IsExpired:  now.After(validUntil),
	}
}

// Expired reports whether now is past ValidUntil.
func (b *Bundle) Expired(now time.Time) bool { return now.After(b.ValidUntil) }
