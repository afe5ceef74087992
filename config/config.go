// Package config loads process configuration from an optional YAML file and
// REHABDOCS_* environment variables.
//
// Nested keys map to environment variables by upper-casing and replacing dots
// with underscores: hyphen.api_key is REHABDOCS_HYPHEN_API_KEY.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/viper"

	"github.com/hamshmas/personal-rehabilitation-docs/gateway"
	"github.com/hamshmas/personal-rehabilitation-docs/internal/database"
	"github.com/hamshmas/personal-rehabilitation-docs/vault"
)

const EnvPrefix = "REHABDOCS"

type Config struct {
	Vault    VaultConfig    `mapstructure:"vault"`
	Hyphen   HyphenConfig   `mapstructure:"hyphen"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	AWS      AWSConfig      `mapstructure:"aws"`
	Log      LogConfig      `mapstructure:"log"`
	Issuance IssuanceConfig `mapstructure:"issuance"`
}

type VaultConfig struct {
	MasterSecret string `mapstructure:"master_secret"`
}

type HyphenConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	ClientID           string        `mapstructure:"client_id"`
	APIKey             string        `mapstructure:"api_key"`
	TransportKey       string        `mapstructure:"transport_key"`
	TestMode           bool          `mapstructure:"test_mode"`
	Timeout            time.Duration `mapstructure:"timeout"`
	TokenRefreshMargin time.Duration `mapstructure:"token_refresh_margin"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type AWSConfig struct {
	Region      string `mapstructure:"region"`
	Environment string `mapstructure:"environment"`
	KMSKeyID    string `mapstructure:"kms_key_id"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type IssuanceConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default so AutomaticEnv can see it on Unmarshal.
	v.SetDefault("vault.master_secret", "")
	v.SetDefault("hyphen.base_url", gateway.DefaultBaseURL)
	v.SetDefault("hyphen.client_id", "")
	v.SetDefault("hyphen.api_key", "")
	v.SetDefault("hyphen.transport_key", "")
	v.SetDefault("hyphen.test_mode", false)
	v.SetDefault("hyphen.timeout", 60*time.Second)
	v.SetDefault("hyphen.token_refresh_margin", 5*time.Minute)
	v.SetDefault("database.driver", database.DriverPostgres)
	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("aws.region", "ap-northeast-2")
	v.SetDefault("aws.environment", "dev")
	v.SetDefault("aws.kms_key_id", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("issuance.concurrency", 4)
	v.SetDefault("issuance.retry_attempts", 1)
	v.SetDefault("issuance.retry_backoff", 2*time.Second)
}

// Load reads path (when not empty) and applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Vault.MasterSecret == "" {
		errs = append(errs, errors.New("vault.master_secret is required"))
	}
	if c.Hyphen.ClientID == "" {
		errs = append(errs, errors.New("hyphen.client_id is required"))
	}
	if c.Hyphen.APIKey == "" {
		errs = append(errs, errors.New("hyphen.api_key is required"))
	}
	if c.Hyphen.TransportKey == "" {
		errs = append(errs, errors.New("hyphen.transport_key is required"))
	}
	switch c.Database.Driver {
	case database.DriverPostgres, database.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Issuance.Concurrency < 1 {
		errs = append(errs, errors.New("issuance.concurrency must be at least 1"))
	}
	return errors.Join(errs...)
}

// secrets lists the fields that may hold ssm: or kms: references, keyed by
// the purpose bound into the KMS encryption context.
func (c *Config) secrets() map[string]*string {
	return map[string]*string{
		"master_secret": &c.Vault.MasterSecret,
		"api_key":       &c.Hyphen.APIKey,
		"transport_key": &c.Hyphen.TransportKey,
		"database_dsn":  &c.Database.DSN,
		"redis_url":     &c.Redis.URL,
	}
}

// HasReferences reports whether any secret field needs a Resolver.
func (c *Config) HasReferences() bool {
	for _, p := range c.secrets() {
		if vault.IsReference(*p) {
			return true
		}
	}
	return false
}

// Resolve replaces secret references with their plaintext values in place.
func (c *Config) Resolve(ctx context.Context, r *vault.Resolver) error {
	for purpose, p := range c.secrets() {
		v, err := r.Resolve(ctx, purpose, *p)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}

// NewResolver builds a Resolver backed by KMS and SSM clients from the
// default AWS credential chain.
func (c *Config) NewResolver(ctx context.Context) (*vault.Resolver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	kp := vault.NewKMSProvider(kms.NewFromConfig(awsCfg), c.AWS.KMSKeyID, 64, 10*time.Minute)
	sp := vault.NewSSMProvider(ssm.NewFromConfig(awsCfg), 64, 10*time.Minute)
	return vault.NewResolver(kp, sp, c.AWS.Environment, 0), nil
}

// GatewayConfig returns the issuance client settings.
func (c *Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		BaseURL:            c.Hyphen.BaseURL,
		ClientID:           c.Hyphen.ClientID,
		APIKey:             c.Hyphen.APIKey,
		TransportKey:       c.Hyphen.TransportKey,
		TestMode:           c.Hyphen.TestMode,
		Timeout:            c.Hyphen.Timeout,
		TokenRefreshMargin: c.Hyphen.TokenRefreshMargin,
	}
}
