package vault

import "errors"

// ErrDecryptionFailed is matched by every CryptoError of kind KindDecryptionFailed.
var ErrDecryptionFailed = errors.New("vault: decryption failed")

// ErrNoMasterSecret is returned by New when the master secret is empty.
var ErrNoMasterSecret = errors.New("vault: master secret is not configured")

type ErrorKind string

const (
	KindDecryptionFailed ErrorKind = "decryption_failed"
)

// CryptoError is returned for any token that cannot be opened: bad encoding,
// truncation, a different key or tampering. The cause is kept for logging
// but never distinguishes those cases to the caller.
type CryptoError struct {
	Kind ErrorKind
	Err  error
}

func (e *CryptoError) Error() string {
	if e.Err == nil {
		return "vault: " + string(e.Kind)
	}
	return "vault: " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *CryptoError) Unwrap() error { return e.Err }

func (e *CryptoError) Is(target error) bool {
	return target == ErrDecryptionFailed && e.Kind == KindDecryptionFailed
}

func decryptionFailed(err error) error {
	return &CryptoError{Kind: KindDecryptionFailed, Err: err}
}
