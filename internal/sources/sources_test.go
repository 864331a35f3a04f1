package sources

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/edgesecrets/internal/config"
	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/secret"
	"github.com/systmms/edgesecrets/tests/fakes"
)

var azureConfig = map[string]interface{}{"vault_url": "https://test-vault.vault.azure.net/"}

func TestAzureKeyVaultGet(t *testing.T) {
	t.Parallel()

	notBefore := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fake := fakes.NewFakeAzureSecretsClient()
	fake.AddSecretVersion("db", "v1", "old", nil, &notBefore)
	fake.AddSecretVersion("db", "v2", "new", &notBefore, &expires)
	fake.AddSecretVersion("off", "v1", "hidden", nil, nil)
	fake.DisableSecretVersion("off", "v1")

	src, err := NewAzureKeyVault("vault", azureConfig, logging.Nop(), WithAzureSecretsClient(fake))
	require.NoError(t, err)
	ctx := context.Background()

	latest, err := src.Get(ctx, "db", "")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "new", latest.Value)
	assert.Equal(t, "v2", latest.Version)
	assert.Equal(t, notBefore, latest.ActivationDate)
	assert.Equal(t, expires, latest.ExpirationDate)

	pinned, err := src.Get(ctx, "db", "v1")
	require.NoError(t, err)
	require.NotNil(t, pinned)
	assert.Equal(t, "old", pinned.Value)
	assert.True(t, pinned.ActivationDate.IsZero())
	assert.Equal(t, notBefore, pinned.ExpirationDate)

	missing, err := src.Get(ctx, "nope", "")
	require.NoError(t, err)
	assert.Nil(t, missing)

	missingVersion, err := src.Get(ctx, "db", "v9")
	require.NoError(t, err)
	assert.Nil(t, missingVersion)

	disabled, err := src.Get(ctx, "off", "")
	require.NoError(t, err)
	assert.Nil(t, disabled)
}

func TestAzureKeyVaultGetError(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeAzureSecretsClient()
	fake.AddError("db", fakes.AzureForbiddenError())
	src, err := NewAzureKeyVault("vault", azureConfig, logging.Nop(), WithAzureSecretsClient(fake))
	require.NoError(t, err)

	_, err = src.Get(context.Background(), "db", "")
	var userErr dserrors.UserError
	require.True(t, stderrors.As(err, &userErr))
	assert.Contains(t, userErr.Suggestion, "Key Vault")
}

func TestAWSSecretsManagerGet(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeSecretsManagerClient()
	fake.AddSecretString("api", "11111111-1111-1111-1111-111111111111", "first")
	fake.AddSecretString("api", "22222222-2222-2222-2222-222222222222", "second")
	fake.AddSecretBinary("blob", "33333333-3333-3333-3333-333333333333", []byte{0xff, 0x00, 0x10})

	src, err := NewAWSSecretsManager("aws", nil, logging.Nop(), WithSecretsManagerClient(fake))
	require.NoError(t, err)
	ctx := context.Background()

	current, err := src.Get(ctx, "api", "")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "second", current.Value)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", current.Version)

	pinned, err := src.Get(ctx, "api", "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	require.NotNil(t, pinned)
	assert.Equal(t, "first", pinned.Value)

	blob, err := src.Get(ctx, "blob", "")
	require.NoError(t, err)
	require.NotNil(t, blob)
	assert.Equal(t, "/wAQ", blob.Value)

	missing, err := src.Get(ctx, "nope", "")
	require.NoError(t, err)
	assert.Nil(t, missing)

	fake.AddError("denied", stderrors.New("AccessDeniedException: not allowed"))
	_, err = src.Get(ctx, "denied", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aws-secretsmanager error")
}

func TestAWSSSMGet(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeSSMClient()
	fake.AddSecureStringParameter("/edge/db", "v1-value")
	fake.AddSecureStringParameter("/edge/db", "v2-value")

	src, err := NewAWSSSM("ssm", map[string]interface{}{"parameter_prefix": "/edge/"}, logging.Nop(), WithSSMClient(fake))
	require.NoError(t, err)
	ctx := context.Background()

	latest, err := src.Get(ctx, "db", "")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "v2-value", latest.Value)
	assert.Equal(t, "2", latest.Version)
	assert.Equal(t, "db", latest.Name)

	first, err := src.Get(ctx, "db", "1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "v1-value", first.Value)

	for _, version := range []string{"7", "not-a-number"} {
		got, err := src.Get(ctx, "db", version)
		require.NoError(t, err)
		assert.Nil(t, got, version)
	}

	missing, err := src.Get(ctx, "nope", "")
	require.NoError(t, err)
	assert.Nil(t, missing)

	for _, decrypted := range fake.Decrypted() {
		assert.True(t, decrypted)
	}
}

func TestGCPSecretManagerGet(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeGCPSecretManagerClient()
	fake.AddSecretVersion("proj", "db", []byte("one"))
	fake.AddSecretVersion("proj", "db", []byte("two"))
	fake.AddError("proj", "denied", fakes.GCPPermissionDeniedError("no access"))

	src, err := NewGCPSecretManager("gcp", map[string]interface{}{"project_id": "proj"}, logging.Nop(), WithGCPClient(fake))
	require.NoError(t, err)
	ctx := context.Background()

	latest, err := src.Get(ctx, "db", "")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "two", latest.Value)
	assert.Equal(t, "2", latest.Version)

	first, err := src.Get(ctx, "db", "1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "one", first.Value)

	missing, err := src.Get(ctx, "nope", "")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = src.Get(ctx, "denied", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gcp-secretmanager error")

	assert.Equal(t, "projects/proj/secrets/db/versions/latest", fake.Requests()[0])
}

func TestGCPSecretManagerRequiresProject(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")

	_, err := NewGCPSecretManager("gcp", map[string]interface{}{}, logging.Nop(), WithGCPClient(fakes.NewFakeGCPSecretManagerClient()))
	var cfgErr dserrors.ConfigError
	require.True(t, stderrors.As(err, &cfgErr))
	assert.Equal(t, "project_id", cfgErr.Field)
}

func TestStaticSource(t *testing.T) {
	t.Parallel()

	src, err := NewStaticFromConfig("static", map[string]interface{}{
		"secrets": map[string]interface{}{"greeting": "hello"},
	})
	require.NoError(t, err)
	src.Put(secret.New("greeting", "2", "hi"))

	got, err := src.Get(context.Background(), "greeting", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.Value)

	got, err = src.Get(context.Background(), "greeting", "2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hi", got.Value)

	_, err = NewStaticFromConfig("bad", map[string]interface{}{"secrets": []interface{}{"x"}})
	assert.Error(t, err)
}

func TestNewSource(t *testing.T) {
	t.Parallel()

	src, err := New("static", config.SourceConfig{Type: TypeStatic}, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, "static", src.Name())

	_, err = New("x", config.SourceConfig{Type: "vault9000"}, logging.Nop())
	var cfgErr dserrors.ConfigError
	require.True(t, stderrors.As(err, &cfgErr))
	assert.Equal(t, "delivery.source.type", cfgErr.Field)
}
