package secrets

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"go.uber.org/zap"

	"github.com/metalake-io/insight-engine/pkg/apperrors"
)

// secretsManagerAPI is the slice of the AWS client the provider uses.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSProvider resolves secrets from AWS Secrets Manager.
type AWSProvider struct {
	client secretsManagerAPI
	logger *zap.Logger
}

// NewAWSProvider creates a provider using the default AWS credential chain.
func NewAWSProvider(ctx context.Context, region string, logger *zap.Logger) (*AWSProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSProvider{
		client: secretsmanager.NewFromConfig(cfg),
		logger: logger.Named("aws-secrets"),
	}, nil
}

// newAWSProviderWithClient wires a preconstructed client, for tests.
func newAWSProviderWithClient(client secretsManagerAPI, logger *zap.Logger) *AWSProvider {
	return &AWSProvider{client: client, logger: logger.Named("aws-secrets")}
}

var _ Provider = (*AWSProvider)(nil)

func (p *AWSProvider) ResolveSecret(ctx context.Context, secretID string) (string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretID,
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("secret %s: %w", secretID, apperrors.ErrNotFound)
		}
		p.logger.Error("Failed to resolve secret", zap.String("secret_id", secretID), zap.Error(err))
		return "", fmt.Errorf("secret %s: %v: %w", secretID, err, apperrors.ErrAccessDenied)
	}

	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value: %w", secretID, apperrors.ErrNotFound)
	}
	return *out.SecretString, nil
}
