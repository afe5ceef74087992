package certificate

import "errors"

var (
	ErrInvalidPassword  = errors.New("certificate: invalid password")
	ErrMalformed        = errors.New("certificate: malformed PKCS#12 container")
	ErrMissingKeyOrCert = errors.New("certificate: bundle lacks a private key or certificate")
)

type ErrorKind string

const (
	KindInvalidPassword  ErrorKind = "invalid_password"
	KindMalformed        ErrorKind = "malformed"
	KindMissingKeyOrCert ErrorKind = "missing_key_or_cert"
)

// Error is returned by Extract. Kind is stable; Err carries the parser's
// own message.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	msg := e.sentinel().Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.sentinel() }

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindInvalidPassword:
		return ErrInvalidPassword
	case KindMissingKeyOrCert:
		return ErrMissingKeyOrCert
	default:
		return ErrMalformed
	}
}
