package orchestrator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/grasp-labs/ds-go-commonmodels/v2/commonmodels/types"

	"github.com/hamshmas/personal-rehabilitation-docs/document"
)

// RequiredDocument is one entry of a case's required-document list.
type RequiredDocument struct {
	ID           uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID       int64         `gorm:"not null;uniqueIndex:idx_required_case_type" json:"case_id"`
	DocumentType document.Type `gorm:"type:varchar(64);not null;uniqueIndex:idx_required_case_type" json:"document_type"`
	IsRequired   bool          `gorm:"not null" json:"is_required"`
	Status       Status        `gorm:"type:varchar(16);not null;index" json:"status"`
	ArtifactID   *uuid.UUID    `gorm:"type:uuid" json:"artifact_id,omitempty"`
	Note         string        `json:"note,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func (RequiredDocument) TableName() string { return "required_documents" }

// Artifact is an issued document as returned by the issuance API.
type Artifact struct {
	ID           uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID       int64         `gorm:"not null;index" json:"case_id"`
	DocumentType document.Type `gorm:"type:varchar(64);not null" json:"document_type"`
	FileName     string        `gorm:"not null" json:"file_name"`
	MimeType     string        `json:"mime_type"`
	APISource    string        `gorm:"column:api_source" json:"api_source"`
	Payload      JSON          `gorm:"type:jsonb" json:"payload"`
	RawResponse  JSON          `gorm:"type:jsonb" json:"raw_response"`
	RequestedBy  string        `json:"requested_by,omitempty"`
	IssuedAt     time.Time     `json:"issued_at"`
	CreatedAt    time.Time     `json:"created_at"`
}

func (Artifact) TableName() string { return "issued_artifacts" }

// JSON is a JSON document column.
type JSON = types.JSONB[json.RawMessage]

// NewJSON wraps raw for a JSON column. Empty input yields the zero value.
func NewJSON(raw json.RawMessage) (JSON, error) {
	var j JSON
	if len(raw) == 0 {
		return j, nil
	}
	if err := json.Unmarshal(raw, &j); err != nil {
		return j, fmt.Errorf("json column: %w", err)
	}
	return j, nil
}

// rawJSON returns the document held by j.
func rawJSON(j JSON) json.RawMessage {
	b, err := json.Marshal(j)
	if err != nil {
		return nil
	}
	return b
}

// PayloadJSON returns the issued document body.
func (a *Artifact) PayloadJSON() json.RawMessage { return rawJSON(a.Payload) }

// RawResponseJSON returns the full response envelope the document came in.
func (a *Artifact) RawResponseJSON() json.RawMessage { return rawJSON(a.RawResponse) }

// Models lists the tables owned by this package, for migrations.
func Models() []any { return []any{&RequiredDocument{}, &Artifact{}} }
