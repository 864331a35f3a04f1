package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/systmms/edgesecrets/internal/azureauth"
	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/secret"
)

// AzureSecretsAPI is the subset of azsecrets.Client used by the source
type AzureSecretsAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// AzureKeyVault reads secrets from Azure Key Vault. NotBefore and Expires
// become the activation and expiration dates.
type AzureKeyVault struct {
	name     string
	client   AzureSecretsAPI
	vaultURL string
	logger   *logging.Logger
}

// AzureOption configures an AzureKeyVault source
type AzureOption func(*AzureKeyVault)

// WithAzureSecretsClient sets a custom client (for testing)
func WithAzureSecretsClient(client AzureSecretsAPI) AzureOption {
	return func(s *AzureKeyVault) {
		s.client = client
	}
}

// NewAzureKeyVault creates an Azure Key Vault source
func NewAzureKeyVault(name string, configMap map[string]interface{}, logger *logging.Logger, opts ...AzureOption) (*AzureKeyVault, error) {
	authConfig, err := azureauth.ParseConfig(configMap)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}

	s := &AzureKeyVault{
		name:     name,
		vaultURL: authConfig.VaultURL,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		cred, err := azureauth.NewCredential(authConfig)
		if err != nil {
			return nil, err
		}
		client, err := azsecrets.NewClient(authConfig.VaultURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
		}
		s.client = client
		logger.Debug("Using %s credentials for %s", authConfig.Method(), authConfig.VaultURL)
	}

	return s, nil
}

// Name returns the source name
func (s *AzureKeyVault) Name() string {
	return s.name
}

// Get fetches a secret version, or the latest when version is empty
func (s *AzureKeyVault) Get(ctx context.Context, name, version string) (*secret.Secret, error) {
	resp, err := s.client.GetSecret(ctx, name, version, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, dserrors.BackendError("azure-keyvault", "get "+name, err)
	}

	attrs := resp.Attributes
	if attrs != nil && attrs.Enabled != nil && !*attrs.Enabled {
		s.logger.Debug("Secret %s version %q is disabled", name, version)
		return nil, nil
	}
	if resp.Value == nil {
		return nil, nil
	}

	out := secret.New(name, version, *resp.Value)
	if out.Version == "" && resp.ID != nil {
		out.Version = resp.ID.Version()
	}
	if attrs != nil {
		out = out.WithWindow(timeOrZero(attrs.NotBefore), timeOrZero(attrs.Expires))
	}
	return &out, nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
