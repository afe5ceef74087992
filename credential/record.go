package credential

import (
	"time"

	"github.com/google/uuid"

	"github.com/hamshmas/personal-rehabilitation-docs/vault"
)

// Record is a registered client certificate. Both payloads are stored
// vault-encrypted. A new registration supersedes the active record rather
// than changing it.
type Record struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey"`
	ClientID       int64               `gorm:"not null;index"`
	FileName       string              `gorm:"not null"`
	Subject        string              `gorm:"not null"`
	Issuer         string
	SerialNumber   string
	ValidFrom      time.Time
	ValidUntil     time.Time           `gorm:"not null"`
	CertificateEnc vault.EncryptedBlob `gorm:"column:certificate_enc;type:text;not null"`
	KeyEnc         vault.EncryptedBlob `gorm:"column:key_enc;type:text;not null"`
	Active         bool                `gorm:"not null;index"`
	SupersededAt   *time.Time
	CreatedAt      time.Time
}

const DefaultTable = "client_certificates"

func (Record) TableName() string { return DefaultTable }
