package keyproviders

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"

	"github.com/systmms/edgesecrets/internal/azureauth"
	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/keyops"
)

// defaultRSAKeySize is assumed when key_size is not configured
const defaultRSAKeySize = 2048

// rsaOAEP256Overhead is 2*hLen+2 for SHA-256
const rsaOAEP256Overhead = 66

// AzureKeysAPI is the subset of azkeys.Client used by the provider
type AzureKeysAPI interface {
	Encrypt(ctx context.Context, name string, version string, parameters azkeys.KeyOperationParameters, options *azkeys.EncryptOptions) (azkeys.EncryptResponse, error)
	Decrypt(ctx context.Context, name string, version string, parameters azkeys.KeyOperationParameters, options *azkeys.DecryptOptions) (azkeys.DecryptResponse, error)
}

// AzureKeyVaultProvider wraps values with an RSA key held in Azure Key Vault.
// Key IDs are "name" or "name/version".
type AzureKeyVaultProvider struct {
	name     string
	client   AzureKeysAPI
	keySize  int
	vaultURL string
	logger   *logging.Logger
}

// AzureOption configures an AzureKeyVaultProvider
type AzureOption func(*AzureKeyVaultProvider)

// WithAzureKeysClient injects a custom client, used by tests
func WithAzureKeysClient(client AzureKeysAPI) AzureOption {
	return func(p *AzureKeyVaultProvider) {
		p.client = client
	}
}

// NewAzureKeyVaultProvider creates a Key Vault key provider
func NewAzureKeyVaultProvider(name string, configMap map[string]interface{}, logger *logging.Logger, opts ...AzureOption) (*AzureKeyVaultProvider, error) {
	authConfig, err := azureauth.ParseConfig(configMap)
	if err != nil {
		return nil, err
	}

	keySize := defaultRSAKeySize
	switch v := configMap["key_size"].(type) {
	case int:
		keySize = v
	case float64:
		keySize = int(v)
	}
	if keySize != 2048 && keySize != 3072 && keySize != 4096 {
		return nil, dserrors.ConfigError{
			Field:      "key_size",
			Value:      keySize,
			Message:    "unsupported RSA key size",
			Suggestion: "Use 2048, 3072 or 4096",
		}
	}

	if logger == nil {
		logger = logging.Nop()
	}

	p := &AzureKeyVaultProvider{
		name:     name,
		keySize:  keySize,
		vaultURL: authConfig.VaultURL,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		cred, err := azureauth.NewCredential(authConfig)
		if err != nil {
			return nil, err
		}
		client, err := azkeys.NewClient(authConfig.VaultURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Key Vault keys client: %w", err)
		}
		p.client = client
	}

	return p, nil
}

// Name returns the provider name
func (p *AzureKeyVaultProvider) Name() string {
	return p.name
}

// MaxPayload returns the largest plaintext the key can wrap
func (p *AzureKeyVaultProvider) MaxPayload() int {
	return p.keySize/8 - rsaOAEP256Overhead
}

// Encrypt wraps plaintext with RSA-OAEP-256
func (p *AzureKeyVaultProvider) Encrypt(ctx context.Context, plaintext, keyID string) (string, error) {
	if len(plaintext) > p.MaxPayload() {
		return "", &keyops.PayloadTooLargeError{KeyID: keyID, Size: len(plaintext), Max: p.MaxPayload()}
	}
	name, version := splitKeyID(keyID)

	resp, err := p.client.Encrypt(ctx, name, version, azkeys.KeyOperationParameters{
		Algorithm: to.Ptr(azkeys.EncryptionAlgorithmRSAOAEP256),
		Value:     []byte(plaintext),
	}, nil)
	if err != nil {
		return "", p.wrapError("encrypt", keyID, err)
	}
	return base64.StdEncoding.EncodeToString(resp.Result), nil
}

// Decrypt unwraps ciphertext produced by Encrypt
func (p *AzureKeyVaultProvider) Decrypt(ctx context.Context, ciphertext, keyID string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypt with key %s: malformed ciphertext: %w", keyID, err)
	}
	if len(raw) > p.keySize/8 {
		return "", &keyops.PayloadTooLargeError{KeyID: keyID, Size: len(raw), Max: p.keySize / 8}
	}
	name, version := splitKeyID(keyID)

	resp, err := p.client.Decrypt(ctx, name, version, azkeys.KeyOperationParameters{
		Algorithm: to.Ptr(azkeys.EncryptionAlgorithmRSAOAEP256),
		Value:     raw,
	}, nil)
	if err != nil {
		return "", p.wrapError("decrypt", keyID, err)
	}
	return string(resp.Result), nil
}

func (p *AzureKeyVaultProvider) wrapError(op, keyID string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return dserrors.UserError{
				Message:    fmt.Sprintf("Key %s not found in %s", keyID, p.vaultURL),
				Suggestion: "Check the keyId of the layer and that the key exists in the vault",
				Err:        err,
			}
		case http.StatusBadRequest:
			if strings.Contains(strings.ToLower(respErr.ErrorCode), "length") {
				return &keyops.PayloadTooLargeError{KeyID: keyID, Max: p.MaxPayload()}
			}
		}
	}
	return dserrors.BackendError("azure-keyvault", op, err)
}

func splitKeyID(keyID string) (string, string) {
	if i := strings.Index(keyID, "/"); i >= 0 {
		return keyID[:i], keyID[i+1:]
	}
	return keyID, ""
}

var _ keyops.Provider = (*AzureKeyVaultProvider)(nil)
