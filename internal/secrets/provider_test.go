package secrets_test

import (
	"context"
	"testing"

	"github.com/buymart/dealflow-api/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewProvider_AutoResolvesToEnvironmentInDevelopment(t *testing.T) {
	p, err := secrets.NewProvider(&secrets.ProviderConfig{
		Source:      secrets.SourceAuto,
		Environment: "development",
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, secrets.SourceEnvironment, p.Source())
	assert.False(t, p.IsVaultEnabled())
}

func TestNewProvider_VaultRequiresName(t *testing.T) {
	_, err := secrets.NewProvider(&secrets.ProviderConfig{Source: secrets.SourceVault}, zap.NewNop())
	assert.Error(t, err)
}

func TestProvider_Resolve(t *testing.T) {
	p, err := secrets.NewProvider(&secrets.ProviderConfig{Source: secrets.SourceEnvironment}, zap.NewNop())
	require.NoError(t, err)

	t.Setenv("DEALFLOW_TEST_ESCROW_KEY", "override-key")
	t.Setenv(secrets.JWTSecret, "from-source")

	escrowKey := "configured"
	jwtSecret := ""
	missing := "keep-me"

	resolved := p.Resolve(context.Background(), []secrets.Binding{
		{Name: secrets.EscrowAPIKey, EnvName: "DEALFLOW_TEST_ESCROW_KEY", Target: &escrowKey},
		{Name: secrets.JWTSecret, EnvName: "DEALFLOW_TEST_UNSET", Target: &jwtSecret},
		{Name: "never-set-secret", EnvName: "DEALFLOW_TEST_ALSO_UNSET", Target: &missing},
	})

	assert.Equal(t, 2, resolved)
	assert.Equal(t, "override-key", escrowKey)
	assert.Equal(t, "from-source", jwtSecret)
	assert.Equal(t, "keep-me", missing)
}
