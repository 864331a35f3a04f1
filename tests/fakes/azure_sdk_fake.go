package fakes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

const fakeVaultURL = "https://test-vault.vault.azure.net"

// FakeAzureSecretsClient is a mock implementation of the azsecrets client subset
type FakeAzureSecretsClient struct {
	mu sync.Mutex
	// Secrets maps secret names to their data
	Secrets map[string]*AzureSecretData
	// Errors maps secret names to errors to return
	Errors map[string]error
	// GetSecretFunc allows custom behavior for GetSecret
	GetSecretFunc func(ctx context.Context, name string, version string) (azsecrets.GetSecretResponse, error)

	calls int
}

// AzureSecretData holds the data for a mock Azure Key Vault secret
type AzureSecretData struct {
	// Latest is the version returned when none is pinned
	Latest   string
	Versions map[string]*AzureSecretVersion
}

// AzureSecretVersion holds version-specific data for a secret
type AzureSecretVersion struct {
	Value      *string
	Attributes *azsecrets.SecretAttributes
}

// NewFakeAzureSecretsClient creates a new mock Azure Key Vault secrets client
func NewFakeAzureSecretsClient() *FakeAzureSecretsClient {
	return &FakeAzureSecretsClient{
		Secrets: make(map[string]*AzureSecretData),
		Errors:  make(map[string]error),
	}
}

// AddSecretString adds an enabled secret with an unbounded window
func (f *FakeAzureSecretsClient) AddSecretString(name, value string) {
	f.AddSecretVersion(name, "0000000000000000000000000000000a", value, nil, nil)
}

// AddSecretVersion adds a version and makes it the latest
func (f *FakeAzureSecretsClient) AddSecretVersion(name, version, value string, notBefore, expires *time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	data, exists := f.Secrets[name]
	if !exists {
		data = &AzureSecretData{Versions: make(map[string]*AzureSecretVersion)}
		f.Secrets[name] = data
	}
	data.Versions[version] = &AzureSecretVersion{
		Value: to.Ptr(value),
		Attributes: &azsecrets.SecretAttributes{
			Enabled:       to.Ptr(true),
			Created:       &now,
			Updated:       &now,
			NotBefore:     notBefore,
			Expires:       expires,
			RecoveryLevel: to.Ptr("Recoverable+Purgeable"),
		},
	}
	data.Latest = version
}

// DisableSecretVersion marks a version as disabled
func (f *FakeAzureSecretsClient) DisableSecretVersion(name, version string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.Secrets[name]; ok {
		if v, ok := data.Versions[version]; ok {
			v.Attributes.Enabled = to.Ptr(false)
		}
	}
}

// AddError configures the mock to return an error for a specific secret
func (f *FakeAzureSecretsClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// Calls returns how many GetSecret calls were made
func (f *FakeAzureSecretsClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// GetSecret mocks the GetSecret operation
func (f *FakeAzureSecretsClient) GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.mu.Lock()
	f.calls++
	fn := f.GetSecretFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, name, version)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, exists := f.Errors[name]; exists {
		return azsecrets.GetSecretResponse{}, err
	}

	data, exists := f.Secrets[name]
	if !exists {
		return azsecrets.GetSecretResponse{}, AzureNotFoundError(name)
	}
	if version == "" {
		version = data.Latest
	}
	versionData, exists := data.Versions[version]
	if !exists {
		return azsecrets.GetSecretResponse{}, AzureNotFoundError(name)
	}

	id := azsecrets.ID(fmt.Sprintf("%s/secrets/%s/%s", fakeVaultURL, name, version))
	return azsecrets.GetSecretResponse{
		Secret: azsecrets.Secret{
			ID:         &id,
			Value:      versionData.Value,
			Attributes: versionData.Attributes,
		},
	}, nil
}

// FakeAzureKeysClient is a mock implementation of the azkeys client subset.
// "Encryption" prefixes the key name and reverses the bytes, so results are
// deterministic and reversible only with the same key.
type FakeAzureKeysClient struct {
	mu sync.Mutex
	// Keys lists the key names that exist
	Keys map[string]bool
	// Errors maps key names to errors to return
	Errors map[string]error

	encrypts int
	decrypts int
	versions []string
}

// NewFakeAzureKeysClient creates a fake with the given keys
func NewFakeAzureKeysClient(keys ...string) *FakeAzureKeysClient {
	f := &FakeAzureKeysClient{Keys: make(map[string]bool), Errors: make(map[string]error)}
	for _, k := range keys {
		f.Keys[k] = true
	}
	return f
}

// AddError configures the mock to return an error for a specific key
func (f *FakeAzureKeysClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// Encrypts returns how many Encrypt calls succeeded
func (f *FakeAzureKeysClient) Encrypts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.encrypts
}

// Decrypts returns how many Decrypt calls succeeded
func (f *FakeAzureKeysClient) Decrypts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decrypts
}

// Versions returns the key versions requested, in call order
func (f *FakeAzureKeysClient) Versions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.versions...)
}

// Encrypt mocks the Encrypt operation
func (f *FakeAzureKeysClient) Encrypt(ctx context.Context, name string, version string, parameters azkeys.KeyOperationParameters, options *azkeys.EncryptOptions) (azkeys.EncryptResponse, error) {
	out, err := f.apply(ctx, name, version, parameters, true)
	if err != nil {
		return azkeys.EncryptResponse{}, err
	}
	return azkeys.EncryptResponse{KeyOperationResult: azkeys.KeyOperationResult{Result: out}}, nil
}

// Decrypt mocks the Decrypt operation
func (f *FakeAzureKeysClient) Decrypt(ctx context.Context, name string, version string, parameters azkeys.KeyOperationParameters, options *azkeys.DecryptOptions) (azkeys.DecryptResponse, error) {
	out, err := f.apply(ctx, name, version, parameters, false)
	if err != nil {
		return azkeys.DecryptResponse{}, err
	}
	return azkeys.DecryptResponse{KeyOperationResult: azkeys.KeyOperationResult{Result: out}}, nil
}

func (f *FakeAzureKeysClient) apply(ctx context.Context, name, version string, parameters azkeys.KeyOperationParameters, encrypt bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	if !f.Keys[name] {
		return nil, &azcore.ResponseError{StatusCode: 404, ErrorCode: "KeyNotFound"}
	}
	if parameters.Algorithm == nil || *parameters.Algorithm != azkeys.EncryptionAlgorithmRSAOAEP256 {
		return nil, &azcore.ResponseError{StatusCode: 400, ErrorCode: "BadParameter"}
	}
	f.versions = append(f.versions, version)

	prefix := []byte(name + ":")
	if encrypt {
		f.encrypts++
		return append(prefix, reverseBytes(parameters.Value)...), nil
	}

	if len(parameters.Value) < len(prefix) || string(parameters.Value[:len(prefix)]) != string(prefix) {
		return nil, &azcore.ResponseError{StatusCode: 400, ErrorCode: "BadParameter"}
	}
	f.decrypts++
	return reverseBytes(parameters.Value[len(prefix):]), nil
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

// AzureNotFoundError creates a mock Azure not found error
func AzureNotFoundError(secretName string) error {
	return &azcore.ResponseError{
		StatusCode: 404,
		ErrorCode:  "SecretNotFound",
	}
}

// AzureForbiddenError creates a mock Azure forbidden error
func AzureForbiddenError() error {
	return &azcore.ResponseError{
		StatusCode: 403,
		ErrorCode:  "Forbidden",
	}
}

// AzureThrottledError creates a mock Azure throttled error
func AzureThrottledError() error {
	return &azcore.ResponseError{
		StatusCode: 429,
		ErrorCode:  "TooManyRequests",
	}
}
