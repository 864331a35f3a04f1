// Package azureauth builds Azure credentials from inline configuration. It is
// shared by the Key Vault key provider and the Key Vault delivery source.
package azureauth

import (
	"fmt"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	dserrors "github.com/systmms/edgesecrets/internal/errors"
)

// Config holds Azure authentication settings
type Config struct {
	VaultURL           string
	TenantID           string
	ClientID           string
	ClientSecret       string
	UseManagedIdentity bool
	UserAssignedID     string
}

// Method names the credential type a Config resolves to
func (c Config) Method() string {
	switch {
	case c.UseManagedIdentity && c.UserAssignedID != "":
		return "managed-identity-user"
	case c.UseManagedIdentity:
		return "managed-identity"
	case c.ClientSecret != "":
		return "client-secret"
	default:
		return "default"
	}
}

// ParseConfig reads vault_url and credential settings from an inline map
func ParseConfig(configMap map[string]interface{}) (Config, error) {
	var config Config

	if vaultURL, ok := configMap["vault_url"].(string); ok {
		config.VaultURL = vaultURL
	}
	if tenantID, ok := configMap["tenant_id"].(string); ok {
		config.TenantID = tenantID
	}
	if clientID, ok := configMap["client_id"].(string); ok {
		config.ClientID = clientID
	}
	if clientSecret, ok := configMap["client_secret"].(string); ok {
		config.ClientSecret = clientSecret
	}
	if useMI, ok := configMap["use_managed_identity"].(bool); ok {
		config.UseManagedIdentity = useMI
	}
	if userAssignedID, ok := configMap["user_assigned_identity_id"].(string); ok {
		config.UserAssignedID = userAssignedID
	}

	if config.VaultURL == "" {
		return Config{}, dserrors.ConfigError{
			Field:      "vault_url",
			Message:    "vault_url is required for Azure Key Vault",
			Suggestion: "Provide the Key Vault URL (e.g., https://my-vault.vault.azure.net/)",
		}
	}
	if u, err := url.Parse(config.VaultURL); err != nil || u.Scheme != "https" || u.Host == "" {
		return Config{}, dserrors.ConfigError{
			Field:      "vault_url",
			Value:      config.VaultURL,
			Message:    "Invalid vault_url format",
			Suggestion: "Use format: https://vault-name.vault.azure.net/",
		}
	}
	if config.ClientSecret != "" && (config.TenantID == "" || config.ClientID == "") {
		return Config{}, dserrors.ConfigError{
			Field:      "client_secret",
			Message:    "client_secret requires tenant_id and client_id",
			Suggestion: "Set tenant_id and client_id for the service principal",
		}
	}

	return config, nil
}

// NewCredential creates a token credential for the configured method
func NewCredential(config Config) (azcore.TokenCredential, error) {
	var cred azcore.TokenCredential
	var err error

	switch config.Method() {
	case "managed-identity-user":
		cred, err = azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ID: azidentity.ClientID(config.UserAssignedID),
		})
	case "managed-identity":
		cred, err = azidentity.NewManagedIdentityCredential(nil)
	case "client-secret":
		cred, err = azidentity.NewClientSecretCredential(config.TenantID, config.ClientID, config.ClientSecret, nil)
	default:
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return cred, nil
}
