package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/metalake-io/insight-engine/pkg/apperrors"
)

// EnvProvider resolves secrets from environment variables. The secret id
// /insight/catalog/jwt-token maps to INSIGHT_CATALOG_JWT_TOKEN.
type EnvProvider struct{}

// NewEnvProvider creates the environment-backed provider.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

var _ Provider = (*EnvProvider)(nil)

func (p *EnvProvider) ResolveSecret(_ context.Context, secretID string) (string, error) {
	name := envName(secretID)
	value, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("secret %s (env %s): %w", secretID, name, apperrors.ErrNotFound)
	}
	return value, nil
}

func envName(secretID string) string {
	name := strings.Trim(secretID, secretSeparator)
	name = strings.NewReplacer(secretSeparator, "_", "-", "_").Replace(name)
	return strings.ToUpper(name)
}
