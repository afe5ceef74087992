package vault

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/awnumar/memguard"
)

// EncryptedBlob is the opaque at-rest form of a sensitive value (resident
// registration numbers, certificate payloads). It carries no type or version
// information.
type EncryptedBlob string

// Vault encrypts and decrypts sensitive values with AES-256-GCM under a key
// derived once from the process master secret.
//
// The derived key lives in a memguard enclave and is only unsealed for the
// duration of a single Encrypt or Decrypt call.
//
// There is no key versioning: replacing the master secret makes every
// previously issued EncryptedBlob undecryptable.
//
// Vault is safe for concurrent use.
type Vault struct {
	key *memguard.Enclave
}

// New derives the vault key as SHA-256(masterSecret). An empty secret is a
// configuration error.
func New(masterSecret string) (*Vault, error) {
	if masterSecret == "" {
		return nil, ErrNoMasterSecret
	}
	sum := sha256.Sum256([]byte(masterSecret))
	// NewEnclave wipes the source slice.
	return &Vault{key: memguard.NewEnclave(sum[:])}, nil
}

// Encrypt seals plaintext and returns its token. A fresh random nonce is used
// for every call, so equal plaintexts yield different tokens.
func (v *Vault) Encrypt(plaintext string) (EncryptedBlob, error) {
	buf, err := v.key.Open()
	if err != nil {
		return "", fmt.Errorf("opening vault key: %w", err)
	}
	defer buf.Destroy()

	sealed, err := sealAESGCM(buf.Bytes(), []byte(plaintext), vaultAAD)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return EncryptedBlob(base64.RawURLEncoding.EncodeToString(sealed)), nil
}

// Decrypt opens a token produced by Encrypt with the same master secret.
// Any failure is reported as a CryptoError of kind KindDecryptionFailed;
// no partial plaintext is ever returned.
func (v *Vault) Decrypt(blob EncryptedBlob) (string, error) {
	// Strict rejects non-zero padding bits, so each sealed value has exactly
	// one token.
	sealed, err := base64.RawURLEncoding.Strict().DecodeString(string(blob))
	if err != nil {
		return "", decryptionFailed(fmt.Errorf("token encoding: %w", err))
	}
	buf, err := v.key.Open()
	if err != nil {
		return "", decryptionFailed(fmt.Errorf("opening vault key: %w", err))
	}
	defer buf.Destroy()

	pt, err := openAESGCM(buf.Bytes(), sealed, vaultAAD)
	if err != nil {
		return "", decryptionFailed(err)
	}
	return string(pt), nil
}

