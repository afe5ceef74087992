package vault_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"

	"github.com/hamshmas/personal-rehabilitation-docs/internal/fakes"
	"github.com/hamshmas/personal-rehabilitation-docs/vault"
)

func TestResolver_Literal(t *testing.T) {
	t.Parallel()
	r := vault.NewResolver(nil, nil, "dev", time.Minute)

	v, err := r.Resolve(context.Background(), "api_key", "plain-value")
	require.NoError(t, err)
	require.Equal(t, "plain-value", v)
}

func TestResolver_FromSSM_AndCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	name := vault.MakeParameterName("", "prod", "hyphen/api_key")
	require.Equal(t, "/rehabdocs/prod/hyphen/api_key", name)

	ssmFake := &fakes.SSM{Parameters: map[string]string{name: "s3cr3t"}}
	r := vault.NewResolver(nil, vault.NewSSMProvider(ssmFake, 16, time.Minute), "prod", time.Minute)

	for range 2 {
		v, err := r.Resolve(ctx, "api_key", "ssm:"+name)
		require.NoError(t, err)
		require.Equal(t, "s3cr3t", v)
	}
	require.Equal(t, []string{name}, ssmFake.Requested(), "second lookup is served from cache")

	_, err := r.Resolve(ctx, "api_key", "ssm:/rehabdocs/prod/absent")
	require.ErrorIs(t, err, vault.ErrParameterNotFound)
	var nf *ssmtypes.ParameterNotFound
	require.ErrorAs(t, err, &nf)
}

func TestResolver_FromKMS_BindsEncryptionContext(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	keyID := "arn:aws:kms:ap-northeast-2:111122223333:key/abcd"
	kmsFake := &fakes.KMS{KeyID: keyID}
	ciphertext := kmsFake.Seal("WRAPPED", []byte("master-secret"), vault.MakeEncCtx("prod", "master_secret"))
	r := vault.NewResolver(vault.NewKMSProvider(kmsFake, keyID, 16, time.Minute), nil, "prod", time.Minute)

	v, err := r.Resolve(ctx, "master_secret", "kms:"+ciphertext)
	require.NoError(t, err)
	require.Equal(t, "master-secret", v)

	// same ciphertext under another purpose carries another context
	_, err = r.Resolve(ctx, "transport_key", "kms:"+ciphertext)
	var invalid *kmstypes.InvalidCiphertextException
	require.ErrorAs(t, err, &invalid)

	inputs := kmsFake.Inputs()
	require.Len(t, inputs, 2)
	require.Equal(t, []byte("WRAPPED"), inputs[0].CiphertextBlob)
	require.Equal(t, "transport_key", inputs[1].EncryptionContext["purpose"])

	wrongKey := vault.NewResolver(vault.NewKMSProvider(kmsFake, "other-key", 16, time.Minute), nil, "prod", time.Minute)
	_, err = wrongKey.Resolve(ctx, "master_secret", "kms:"+ciphertext)
	var incorrect *kmstypes.IncorrectKeyException
	require.ErrorAs(t, err, &incorrect)
}

func TestResolver_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r := vault.NewResolver(nil, nil, "dev", time.Minute)
	_, err := r.Resolve(ctx, "api_key", "ssm:/x")
	require.ErrorIs(t, err, vault.ErrProviderUnavailable)
	_, err = r.Resolve(ctx, "api_key", "kms:AAAA")
	require.ErrorIs(t, err, vault.ErrProviderUnavailable)

	boom := errors.New("throttled")
	r = vault.NewResolver(
		vault.NewKMSProvider(&fakes.KMS{Err: boom}, "", 16, time.Minute),
		vault.NewSSMProvider(&fakes.SSM{Err: boom}, 16, time.Minute),
		"dev", time.Minute,
	)
	_, err = r.Resolve(ctx, "api_key", "ssm:/x")
	require.ErrorIs(t, err, boom)
	_, err = r.Resolve(ctx, "api_key", "kms:!!notbase64")
	require.Error(t, err)
	_, err = r.Resolve(ctx, "api_key", "kms:"+base64.StdEncoding.EncodeToString([]byte("x")))
	require.ErrorIs(t, err, boom)
}

func TestIsReference(t *testing.T) {
	t.Parallel()
	require.True(t, vault.IsReference("ssm:/a"))
	require.True(t, vault.IsReference("kms:abc"))
	require.False(t, vault.IsReference("literal"))
}
