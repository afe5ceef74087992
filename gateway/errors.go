package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hamshmas/personal-rehabilitation-docs/document"
)

type ErrorKind string

const (
	KindUnsupportedDocument ErrorKind = "unsupported_document"
	KindInvalidRequest      ErrorKind = "invalid_request"
	KindNetwork             ErrorKind = "network"
	KindUpstream            ErrorKind = "upstream"
	KindTokenFetchFailed    ErrorKind = "token_fetch_failed"
)

var (
	ErrUnsupportedDocument = errors.New("gateway: unsupported document type")
	ErrInvalidRequest      = errors.New("gateway: invalid request")
	ErrNetwork             = errors.New("gateway: network failure")
	ErrUpstream            = errors.New("gateway: upstream rejected request")
	ErrTokenFetchFailed    = errors.New("gateway: access token fetch failed")
)

// Error is the structured failure returned by Client.Call.
//
// For KindUpstream, Code is the issuance API's own error code when the body
// carried one, otherwise the HTTP status; StatusCode is always the HTTP status.
type Error struct {
	Kind         ErrorKind
	DocumentType document.Type
	StatusCode   int
	Code         string
	Message      string
	Err          error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("gateway %s", e.Kind)
	if e.DocumentType != "" {
		msg += " (" + string(e.DocumentType) + ")"
	}
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnsupportedDocument:
		return e.Kind == KindUnsupportedDocument
	case ErrInvalidRequest:
		return e.Kind == KindInvalidRequest
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrUpstream:
		return e.Kind == KindUpstream
	case ErrTokenFetchFailed:
		return e.Kind == KindTokenFetchFailed
	}
	return false
}

// IsRetryable reports whether err is a transient gateway failure: network
// errors, token fetch failures, and upstream 429/5xx responses.
func IsRetryable(err error) bool {
	var ge *Error
	if !errors.As(err, &ge) {
		return false
	}
	switch ge.Kind {
	case KindNetwork, KindTokenFetchFailed:
		return true
	case KindUpstream:
		return ge.StatusCode == http.StatusTooManyRequests || ge.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// GetKind extracts the error kind, or "" if err is not a gateway error.
func GetKind(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

func invalidRequest(dt document.Type, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, DocumentType: dt, Message: fmt.Sprintf(format, args...)}
}
