package vault

import (
	"context"
	"encoding/base64"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kms"
)

type KMSAPI interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMSProvider unwraps KMS-encrypted configuration secrets (for example a
// master secret committed to deployment config as ciphertext).
type KMSProvider struct {
	api   KMSAPI
	keyID string
	cache *TTLCache[[]byte]
}

// NewKMSProvider wraps api. keyID is optional; when set, KMS rejects
// ciphertexts produced under any other key.
func NewKMSProvider(api KMSAPI, keyID string, cacheSize int, ttl time.Duration) *KMSProvider {
	return &KMSProvider{api: api, keyID: keyID, cache: NewTTLCache[[]byte](cacheSize, ttl)}
}

// contextKey renders encCtx in sorted key order so equal maps share a cache
// entry.
func contextKey(encCtx map[string]string) string {
	var sb strings.Builder
	for _, k := range slices.Sorted(maps.Keys(encCtx)) {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(encCtx[k])
		sb.WriteByte(';')
	}
	return sb.String()
}

// Decrypt base64-decodes ciphertextB64 and decrypts it under encCtx.
func (p *KMSProvider) Decrypt(ctx context.Context, ciphertextB64 string, encCtx map[string]string) ([]byte, error) {
	ciphertextB64 = strings.TrimSpace(ciphertextB64)
	ck := ciphertextB64 + "|" + contextKey(encCtx)
	if pt, ok := p.cache.Get(ck); ok {
		return pt, nil
	}
	blob, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("kms ciphertext is not base64: %w", err)
	}
	in := &kms.DecryptInput{CiphertextBlob: blob, EncryptionContext: encCtx}
	if p.keyID != "" {
		in.KeyId = &p.keyID
	}
	out, err := p.api.Decrypt(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("kms decrypt: %w", err)
	}
	p.cache.Set(ck, out.Plaintext)
	return out.Plaintext, nil
}
