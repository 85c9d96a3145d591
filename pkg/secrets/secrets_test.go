package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metalake-io/insight-engine/pkg/apperrors"
)

func TestBuildSecretID(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		parts    []string
		expected string
		wantErr  bool
	}{
		{
			name:     "simple",
			prefix:   "insight",
			parts:    []string{"catalog", "jwt-token"},
			expected: "/insight/catalog/jwt-token",
		},
		{
			name:     "lowercased",
			prefix:   "Insight",
			parts:    []string{"Catalog", "JWT-Token"},
			expected: "/insight/catalog/jwt-token",
		},
		{
			name:    "empty part rejected",
			prefix:  "insight",
			parts:   []string{"catalog", ""},
			wantErr: true,
		},
		{
			name:    "empty prefix rejected",
			prefix:  "",
			parts:   []string{"catalog"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := BuildSecretID(tt.prefix, tt.parts...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, id)
		})
	}
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("INSIGHT_CATALOG_JWT_TOKEN", "tok-value")

	provider := NewEnvProvider()
	value, err := provider.ResolveSecret(context.Background(), "/insight/catalog/jwt-token")

	require.NoError(t, err)
	assert.Equal(t, "tok-value", value)
}

func TestEnvProvider_NotFound(t *testing.T) {
	provider := NewEnvProvider()
	_, err := provider.ResolveSecret(context.Background(), "/insight/does/not/exist")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// mockSecretsManager is a minimal mock for the AWS Secrets Manager client.
type mockSecretsManager struct {
	getFunc func(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

func (m *mockSecretsManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return m.getFunc(ctx, params, optFns...)
}

func TestAWSProvider_ResolvesValue(t *testing.T) {
	value := "s3cret"
	provider := newAWSProviderWithClient(&mockSecretsManager{
		getFunc: func(_ context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
			assert.Equal(t, "/insight/es/password", *params.SecretId)
			return &secretsmanager.GetSecretValueOutput{SecretString: &value}, nil
		},
	}, zap.NewNop())

	got, err := provider.ResolveSecret(context.Background(), "/insight/es/password")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
}

func TestAWSProvider_NotFound(t *testing.T) {
	provider := newAWSProviderWithClient(&mockSecretsManager{
		getFunc: func(context.Context, *secretsmanager.GetSecretValueInput, ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
			return nil, &types.ResourceNotFoundException{}
		},
	}, zap.NewNop())

	_, err := provider.ResolveSecret(context.Background(), "/insight/missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAWSProvider_AccessDenied(t *testing.T) {
	provider := newAWSProviderWithClient(&mockSecretsManager{
		getFunc: func(context.Context, *secretsmanager.GetSecretValueInput, ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
			return nil, errors.New("AccessDeniedException: not authorized")
		},
	}, zap.NewNop())

	_, err := provider.ResolveSecret(context.Background(), "/insight/denied")
	assert.ErrorIs(t, err, apperrors.ErrAccessDenied)
}
