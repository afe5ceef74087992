package orchestrator

import (
	"errors"
	"fmt"

	"github.com/hamshmas/personal-rehabilitation-docs/certificate"
	"github.com/hamshmas/personal-rehabilitation-docs/document"
	"github.com/hamshmas/personal-rehabilitation-docs/gateway"
	"github.com/hamshmas/personal-rehabilitation-docs/vault"
)

// Stage names the step of Issue that failed.
type Stage string

const (
	StageLock        Stage = "lock"
	StageLookup      Stage = "lookup"
	StageBegin       Stage = "begin"
	StageDecrypt     Stage = "decrypt"
	StageCertificate Stage = "certificate"
	StageGateway     Stage = "gateway"
	StagePersist     Stage = "persist"
)

// OrchestrationError wraps the underlying vault, certificate, gateway or
// store error of a failed Issue.
type OrchestrationError struct {
	CaseID       int64
	DocumentType document.Type
	Stage        Stage
	Err          error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("orchestrator: case %d %s: %s: %v", e.CaseID, e.DocumentType, e.Stage, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }

// userMessage is the human-readable failure text stored on a Result.
func userMessage(err error) string {
	var ge *gateway.Error
	if errors.As(err, &ge) {
		switch {
		case ge.Kind == gateway.KindUpstream && ge.Message != "":
			return ge.Message
		case ge.Kind == gateway.KindUnsupportedDocument:
			return "document type cannot be issued automatically"
		case ge.Kind == gateway.KindNetwork:
			return "issuance service unreachable, try again later"
		case ge.Kind == gateway.KindTokenFetchFailed:
			return "issuance service authentication failed"
		}
		return ge.Error()
	}
	var ce *certificate.Error
	switch {
	case errors.Is(err, vault.ErrDecryptionFailed):
		return "stored identity could not be decrypted"
	case errors.As(err, &ce):
		return ce.Error()
	case errors.Is(err, ErrNotFound):
		return "document is not on the case's required list"
	case errors.Is(err, ErrInvalidTransition):
		return "document is completed or not required; reset it before issuing again"
	}
	return err.Error()
}
