package gateway

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

const transportBlock = aes.BlockSize

// TransportCipher encrypts identity fields for the issuance API:
// AES-128-CBC with PKCS#7 padding, standard base64 output.
//
// The key is the first 16 bytes of the transport key and the IV is the
// client identifier NUL-padded or truncated to 16 bytes. Equal plaintexts
// therefore produce equal ciphertexts; the API requires this scheme.
type TransportCipher struct {
	block cipher.Block
	iv    [transportBlock]byte
}

func NewTransportCipher(transportKey, clientID string) (*TransportCipher, error) {
	if len(transportKey) < transportBlock {
		return nil, fmt.Errorf("transport key must be at least %d bytes, got %d", transportBlock, len(transportKey))
	}
	block, err := aes.NewCipher([]byte(transportKey)[:transportBlock])
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	c := &TransportCipher{block: block}
	copy(c.iv[:], clientID)
	return c, nil
}

func (c *TransportCipher) Encrypt(plaintext string) (string, error) {
	padded := pkcs7Pad([]byte(plaintext))
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv[:]).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.
func (c *TransportCipher) Decrypt(encoded string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("ciphertext base64: %w", err)
	}
	if len(ct) == 0 || len(ct)%transportBlock != 0 {
		return "", fmt.Errorf("bad ciphertext size: %d", len(ct))
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, c.iv[:]).CryptBlocks(out, ct)
	pt, err := pkcs7Unpad(out)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

func pkcs7Pad(b []byte) []byte {
	n := transportBlock - len(b)%transportBlock
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > transportBlock || n > len(b) {
		return nil, errors.New("bad padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("bad padding")
		}
	}
	return b[:len(b)-n], nil
}
