package fakes

import (
	"context"
	"encoding/base64"
	"errors"
	"maps"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type sealed struct {
	plaintext []byte
	encCtx    map[string]string
}

// KMS stands in for vault.KMSAPI. Ciphertexts registered with Seal only open
// under the encryption context they were sealed with.
type KMS struct {
	// KeyID, when set, must be named by every request.
	KeyID string
	Err   error

	mu     sync.Mutex
	blobs  map[string]sealed
	inputs []kms.DecryptInput
}

// Seal registers ciphertext and returns it base64-encoded, ready for a
// "kms:" reference.
func (f *KMS) Seal(ciphertext string, plaintext []byte, encCtx map[string]string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blobs == nil {
		f.blobs = make(map[string]sealed)
	}
	f.blobs[ciphertext] = sealed{plaintext: plaintext, encCtx: maps.Clone(encCtx)}
	return base64.StdEncoding.EncodeToString([]byte(ciphertext))
}

func (f *KMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, *in)

	if f.Err != nil {
		return nil, f.Err
	}
	if f.KeyID != "" && (in.KeyId == nil || *in.KeyId != f.KeyID) {
		return nil, &kmstypes.IncorrectKeyException{}
	}
	s, ok := f.blobs[string(in.CiphertextBlob)]
	if !ok || !maps.Equal(s.encCtx, in.EncryptionContext) {
		return nil, &kmstypes.InvalidCiphertextException{}
	}
	return &kms.DecryptOutput{Plaintext: append([]byte(nil), s.plaintext...)}, nil
}

// Inputs returns the Decrypt requests received so far.
func (f *KMS) Inputs() []kms.DecryptInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kms.DecryptInput(nil), f.inputs...)
}

// SSM stands in for vault.SSMAPI with an in-memory parameter store.
type SSM struct {
	Parameters map[string]string
	Err        error

	mu        sync.Mutex
	requested []string
}

func (f *SSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	if in.Name == nil {
		return nil, errors.New("fake ssm: Name is required")
	}
	f.requested = append(f.requested, *in.Name)
	if in.WithDecryption == nil || !*in.WithDecryption {
		return nil, errors.New("fake ssm: SecureString read without decryption")
	}
	v, ok := f.Parameters[*in.Name]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{}
	}
	name := *in.Name
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{Name: &name, Value: &v, Type: ssmtypes.ParameterTypeSecureString},
	}, nil
}

// Requested returns the parameter names looked up so far.
func (f *SSM) Requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requested...)
}
