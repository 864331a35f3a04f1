package keyproviders

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/keyops"
	"github.com/systmms/edgesecrets/tests/fakes"
)

func newAzureProvider(t *testing.T, fake *fakes.FakeAzureKeysClient, extra map[string]interface{}) *AzureKeyVaultProvider {
	t.Helper()
	cfg := map[string]interface{}{"vault_url": "https://test-vault.vault.azure.net/"}
	for k, v := range extra {
		cfg[k] = v
	}
	p, err := NewAzureKeyVaultProvider("vault", cfg, logging.Nop(), WithAzureKeysClient(fake))
	require.NoError(t, err)
	return p
}

func TestAzureKeyVaultRoundTrip(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeAzureKeysClient("edge-key")
	p := newAzureProvider(t, fake, nil)

	ct, err := p.Encrypt(context.Background(), "s3cret", "edge-key")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", ct)

	pt, err := p.Decrypt(context.Background(), ct, "edge-key")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pt)
	assert.Equal(t, 1, fake.Encrypts())
	assert.Equal(t, 1, fake.Decrypts())
}

func TestAzureKeyVaultKeyVersion(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeAzureKeysClient("edge-key")
	p := newAzureProvider(t, fake, nil)

	_, err := p.Encrypt(context.Background(), "v", "edge-key/abc123")
	require.NoError(t, err)
	_, err = p.Encrypt(context.Background(), "v", "edge-key")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc123", ""}, fake.Versions())
}

func TestAzureKeyVaultCapacity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		keySize int
		max     int
	}{
		{keySize: 2048, max: 190},
		{keySize: 3072, max: 318},
		{keySize: 4096, max: 446},
	}

	for _, tt := range tests {
		fake := fakes.NewFakeAzureKeysClient("k")
		p := newAzureProvider(t, fake, map[string]interface{}{"key_size": tt.keySize})
		assert.Equal(t, tt.max, p.MaxPayload())

		_, err := p.Encrypt(context.Background(), strings.Repeat("x", tt.max), "k")
		require.NoError(t, err)

		_, err = p.Encrypt(context.Background(), strings.Repeat("x", tt.max+1), "k")
		require.Error(t, err)
		assert.True(t, keyops.IsPayloadTooLarge(err))

		var tooLarge *keyops.PayloadTooLargeError
		require.True(t, stderrors.As(err, &tooLarge))
		assert.Equal(t, tt.max, tooLarge.Max)
		assert.Equal(t, 1, fake.Encrypts(), "oversized payloads never reach the vault")
	}
}

func TestAzureKeyVaultErrors(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeAzureKeysClient("k")
	fake.AddError("throttled", fakes.AzureThrottledError())
	p := newAzureProvider(t, fake, nil)

	_, err := p.Encrypt(context.Background(), "v", "missing")
	require.Error(t, err)
	var userErr dserrors.UserError
	require.True(t, stderrors.As(err, &userErr))
	assert.Contains(t, userErr.Message, "not found")

	_, err = p.Encrypt(context.Background(), "v", "throttled")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "azure-keyvault error during encrypt")

	_, err = p.Decrypt(context.Background(), "not base64!", "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed ciphertext")
}

func TestAzureKeyVaultCancelled(t *testing.T) {
	t.Parallel()

	p := newAzureProvider(t, fakes.NewFakeAzureKeysClient("k"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Encrypt(ctx, "v", "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAzureKeyVaultConfig(t *testing.T) {
	t.Parallel()

	_, err := NewAzureKeyVaultProvider("vault", map[string]interface{}{}, logging.Nop(), WithAzureKeysClient(fakes.NewFakeAzureKeysClient()))
	require.Error(t, err)

	_, err = NewAzureKeyVaultProvider("vault", map[string]interface{}{
		"vault_url": "https://test-vault.vault.azure.net/",
		"key_size":  1024,
	}, logging.Nop(), WithAzureKeysClient(fakes.NewFakeAzureKeysClient()))
	var cfgErr dserrors.ConfigError
	require.True(t, stderrors.As(err, &cfgErr))
	assert.Equal(t, "key_size", cfgErr.Field)
}
