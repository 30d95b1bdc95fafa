// Package secrets retrieves MCP server credentials from the managed secret
// store. Values live in process memory only and are never written to disk.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// Source yields secret values by name. Production code uses VaultSource;
// tests substitute fakes.
type Source interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// VaultSource reads secrets from a named Key Vault.
type VaultSource struct {
	vaultName string
	client    secretGetter
}

// secretGetter is the slice of azsecrets.Client used here, split out so the
// remediation wrapping is testable without a live vault.
type secretGetter interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// NewVaultSource builds a VaultSource for the vault's public endpoint.
func NewVaultSource(vaultName string, cred azcore.TokenCredential) (*VaultSource, error) {
	trimmed := strings.TrimSpace(vaultName)
	if trimmed == "" {
		return nil, errors.New("key vault name is empty")
	}
	if cred == nil {
		return nil, errors.New("credential is nil")
	}
	client, err := azsecrets.NewClient(fmt.Sprintf("https://%s.vault.azure.net", trimmed), cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create key vault client for %s: %w", trimmed, err)
	}
	return &VaultSource{vaultName: trimmed, client: client}, nil
}

// GetSecret fetches the latest version of the named secret. Failures carry
// remediation guidance because they are the most common operator mistake.
func (s *VaultSource) GetSecret(ctx context.Context, name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", errors.New("secret name is empty")
	}
	resp, err := s.client.GetSecret(ctx, trimmed, "", nil)
	if err != nil {
		return "", &RetrievalError{Vault: s.vaultName, Secret: trimmed, Cause: err}
	}
	if resp.Value == nil || *resp.Value == "" {
		return "", &RetrievalError{Vault: s.vaultName, Secret: trimmed, Cause: errors.New("secret has no value")}
	}
	return *resp.Value, nil
}

// RetrievalError wraps a secret-store failure with actionable remediation.
type RetrievalError struct {
	Vault  string
	Secret string
	Cause  error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf(
		"retrieve secret %q from key vault %q: %v\n"+
			"Please ensure:\n"+
			"  1. you are authenticated (run 'az login')\n"+
			"  2. you have access to the key vault %q\n"+
			"  3. the secret %q exists in the vault",
		e.Secret, e.Vault, e.Cause, e.Vault, e.Secret,
	)
}

func (e *RetrievalError) Unwrap() error { return e.Cause }

var _ Source = (*VaultSource)(nil)
