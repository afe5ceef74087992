package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ErrParameterNotFound is returned when an ssm: reference names a parameter
// that does not exist.
var ErrParameterNotFound = errors.New("vault: ssm parameter not found")

// SSMProvider reads SecureString parameters from AWS Systems Manager.
type SSMProvider struct {
	api   SSMAPI
	cache *TTLCache[string]
}

func NewSSMProvider(api SSMAPI, cacheSize int, ttl time.Duration) *SSMProvider {
	return &SSMProvider{api: api, cache: NewTTLCache[string](cacheSize, ttl)}
}

// Get returns the decrypted parameter value.
func (p *SSMProvider) Get(ctx context.Context, name string) (string, error) {
	if v, ok := p.cache.Get(name); ok {
		return v, nil
	}
	decrypt := true
	out, err := p.api.GetParameter(ctx, &ssm.GetParameterInput{Name: &name, WithDecryption: &decrypt})
	var nf *ssmtypes.ParameterNotFound
	switch {
	case errors.As(err, &nf):
		return "", fmt.Errorf("%w: %s: %w", ErrParameterNotFound, name, err)
	case err != nil:
		return "", fmt.Errorf("ssm get %s: %w", name, err)
	case out.Parameter == nil || out.Parameter.Value == nil:
		return "", fmt.Errorf("ssm parameter %s has no value", name)
	}
	p.cache.Set(name, *out.Parameter.Value)
	return *out.Parameter.Value, nil
}
