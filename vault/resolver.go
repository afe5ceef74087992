package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	refSSM = "ssm:"
	refKMS = "kms:"
)

// ErrProviderUnavailable is returned when a reference needs a provider that
// was not configured.
var ErrProviderUnavailable = errors.New("vault: secret provider not configured")

// Resolver turns configuration secret references into plaintext values.
//
// Supported forms:
//
//   - "ssm:<parameter-name>" reads a SecureString from SSM (decrypted).
//   - "kms:<base64 ciphertext>" decrypts with KMS under MakeEncCtx(env, purpose).
//   - anything else is returned unchanged as a literal.
//
// Resolved values are memoized in a small TTL cache so repeated lookups during
// startup do not hit AWS again.
//
// Concurrency: safe for concurrent use as long as the injected providers are.
type Resolver struct {
	kms *KMSProvider
	ssm *SSMProvider
	env string

	plaintextCache *TTLCache[string]
}

// NewResolver builds a Resolver. Either provider may be nil; references that
// need a missing provider fail with ErrProviderUnavailable. If ttl <= 0, a
// default of one minute is used.
func NewResolver(kms *KMSProvider, ssm *SSMProvider, env string, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Resolver{
		kms:            kms,
		ssm:            ssm,
		env:            env,
		plaintextCache: NewTTLCache[string](256, ttl),
	}
}

// IsReference reports whether v uses one of the provider prefixes.
func IsReference(v string) bool {
	return strings.HasPrefix(v, refSSM) || strings.HasPrefix(v, refKMS)
}

// Resolve returns the plaintext for ref. purpose names the secret and is
// bound into the KMS encryption context.
func (r *Resolver) Resolve(ctx context.Context, purpose, ref string) (string, error) {
	if !IsReference(ref) {
		return ref, nil
	}
	ck := purpose + "|" + ref
	if v, ok := r.plaintextCache.Get(ck); ok {
		return v, nil
	}

	var (
		v   string
		err error
	)
	switch {
	case strings.HasPrefix(ref, refSSM):
		if r.ssm == nil {
			return "", fmt.Errorf("%s: %w", purpose, ErrProviderUnavailable)
		}
		v, err = r.ssm.Get(ctx, strings.TrimPrefix(ref, refSSM))
	case strings.HasPrefix(ref, refKMS):
		if r.kms == nil {
			return "", fmt.Errorf("%s: %w", purpose, ErrProviderUnavailable)
		}
		var pt []byte
		pt, err = r.kms.Decrypt(ctx, strings.TrimPrefix(ref, refKMS), MakeEncCtx(r.env, purpose))
		v = string(pt)
	}
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", purpose, err)
	}
	r.plaintextCache.Set(ck, v)
	return v, nil
}
