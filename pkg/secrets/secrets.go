package secrets

import (
	"context"
	"fmt"
	"strings"
)

// Provider resolves a named secret to its string value. Implementations fail
// with apperrors.ErrNotFound when the secret does not exist and
// apperrors.ErrAccessDenied when the backing store refuses the caller.
type Provider interface {
	ResolveSecret(ctx context.Context, secretID string) (string, error)
}

const secretSeparator = "/"

// BuildSecretID assembles a namespaced secret id:
// /<clusterPrefix>/<part>/<part>..., lowercased. Empty parts are rejected so
// a misconfigured caller cannot address a broader namespace than intended.
func BuildSecretID(clusterPrefix string, parts ...string) (string, error) {
	if clusterPrefix == "" {
		return "", fmt.Errorf("cluster prefix must not be empty")
	}

	var sb strings.Builder
	sb.WriteString(secretSeparator)
	sb.WriteString(clusterPrefix)
	for _, part := range parts {
		if part == "" {
			return "", fmt.Errorf("cannot build a secret id with empty parts")
		}
		sb.WriteString(secretSeparator)
		sb.WriteString(part)
	}

	return strings.ToLower(sb.String()), nil
}
