package secrets

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// SecretSource defines where secrets are loaded from
type SecretSource string

const (
	// SourceEnvironment loads secrets from environment variables
	SourceEnvironment SecretSource = "environment"
	// SourceVault loads secrets from Azure Key Vault
	SourceVault SecretSource = "vault"
	// SourceAuto uses vault in staging/production, environment in development
	SourceAuto SecretSource = "auto"
)

// Key Vault secret names used by the service
const (
	DatabaseHost            = "POSTGRES-DEALFLOW-HOST"
	DatabaseUser            = "POSTGRES-DEALFLOW-USER"
	DatabasePassword        = "POSTGRES-DEALFLOW-PASSWORD"
	EscrowAPIKey            = "escrow-api-key"
	JWTSecret               = "jwt-signing-secret"
	AdminAPIKey             = "admin-api-key"
	StorageConnectionString = "storage-connection-string"
)

// getter is the lookup backend behind a Provider
type getter interface {
	GetSecret(ctx context.Context, secretName string) (string, error)
}

type envGetter struct{}

func (envGetter) GetSecret(_ context.Context, name string) (string, error) {
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("environment variable '%s' not set", name)
	}
	return value, nil
}

// Provider abstracts secret retrieval from different sources
type Provider struct {
	source  SecretSource
	backend getter
	logger  *zap.Logger
}

// ProviderConfig holds configuration for the secrets provider
type ProviderConfig struct {
	Source       SecretSource
	VaultName    string
	Environment  string
	CacheEnabled bool
	CacheTTL     time.Duration
}

// Binding maps a vault secret (with an environment override) onto a config field
type Binding struct {
	Name    string
	EnvName string
	Target  *string
}

// NewProvider creates a new secrets provider
func NewProvider(cfg *ProviderConfig, logger *zap.Logger) (*Provider, error) {
	source := cfg.Source
	if source == SourceAuto {
		switch cfg.Environment {
		case "development", "local", "test", "":
			source = SourceEnvironment
		default:
			source = SourceVault
		}
		logger.Info("Auto-detected secret source",
			zap.String("source", string(source)),
			zap.String("environment", cfg.Environment),
		)
	}

	p := &Provider{source: source, logger: logger, backend: envGetter{}}

	switch source {
	case SourceEnvironment:
	case SourceVault:
		if cfg.VaultName == "" {
			return nil, fmt.Errorf("vault name required when using vault secret source")
		}
		vaultClient, err := NewVaultClient(&VaultConfig{
			VaultName:    cfg.VaultName,
			CacheEnabled: cfg.CacheEnabled,
			CacheTTL:     cfg.CacheTTL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vault client: %w", err)
		}
		p.backend = vaultClient
	default:
		return nil, fmt.Errorf("unknown secret source: %s", source)
	}

	return p, nil
}

// GetSecret retrieves a secret by name from the configured source
func (p *Provider) GetSecret(ctx context.Context, secretName string) (string, error) {
	return p.backend.GetSecret(ctx, secretName)
}

// GetSecretOrEnv prefers an explicitly set environment variable over the configured source
func (p *Provider) GetSecretOrEnv(ctx context.Context, secretName, envName string) (string, error) {
	if envValue := os.Getenv(envName); envValue != "" {
		p.logger.Debug("Using environment variable override", zap.String("env_name", envName))
		return envValue, nil
	}
	return p.GetSecret(ctx, secretName)
}

// Resolve fills every binding it can and returns how many were resolved.
// Unresolvable secrets keep their current value.
func (p *Provider) Resolve(ctx context.Context, bindings []Binding) int {
	resolved := 0
	for _, b := range bindings {
		value, err := p.GetSecretOrEnv(ctx, b.Name, b.EnvName)
		if err != nil || value == "" {
			p.logger.Warn("Secret not resolved, keeping configured value",
				zap.String("secret_name", b.Name),
				zap.Error(err),
			)
			continue
		}
		*b.Target = value
		resolved++
	}
	return resolved
}

// Source returns the current secret source
func (p *Provider) Source() SecretSource {
	return p.source
}

// IsVaultEnabled returns true if secrets are loaded from vault
func (p *Provider) IsVaultEnabled() bool {
	return p.source == SourceVault
}
