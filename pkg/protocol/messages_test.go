package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/edgesecrets/pkg/secret"
)

func TestNewSecretRequest(t *testing.T) {
	t.Parallel()

	req := NewSecretRequest([]secret.Secret{
		secret.Stub("db-password", ""),
		secret.Stub("api-key", "v2"),
	})

	assert.NotEmpty(t, req.RequestID)
	assert.False(t, req.CreateDate.IsZero())
	assert.Equal(t, []SecretMetadata{{Name: "db-password"}, {Name: "api-key", Version: "v2"}}, req.Secrets)

	other := NewSecretRequest(nil)
	assert.NotEqual(t, req.RequestID, other.RequestID)
}

func TestRequestWireFormat(t *testing.T) {
	t.Parallel()

	req := NewSecretRequest([]secret.Secret{secret.Stub("a", ""), secret.Stub("b", "v1")})
	data, err := req.Marshal()
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, req.RequestID, raw["requestId"])
	assert.Contains(t, raw, "createDate")
	require.Len(t, raw["secretsRequested"], 2)
	first := raw["secretsRequested"].([]interface{})[0].(map[string]interface{})
	assert.NotContains(t, first, "version")

	decoded, err := DecodeRequest(data)
	require.NoError(t, err)
	assert.Equal(t, req.RequestID, decoded.RequestID)
	assert.Equal(t, []secret.Secret{secret.Stub("a", ""), secret.Stub("b", "v1")}, decoded.Stubs())
}

func TestDecodeResponse(t *testing.T) {
	t.Parallel()

	act := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	resp := &SecretResponse{
		RequestID: "req-1",
		Secrets: []secret.Secret{
			secret.New("db", "v1", "s3cr3t").WithWindow(act, time.Time{}),
			secret.New("api", "", "k"),
		},
	}
	data, err := resp.Marshal()
	require.NoError(t, err)

	decoded, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, "req-1", decoded.RequestID)

	list := decoded.List()
	assert.Equal(t, 2, list.Count())
	got, ok := list.Get("db", "v1", act)
	require.True(t, ok)
	assert.Equal(t, "s3cr3t", got.Value)
	assert.True(t, got.ActivationDate.Equal(act))
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		decode  func([]byte) error
	}{
		{"response not json", `{"requestId":`, func(b []byte) error { _, err := DecodeResponse(b); return err }},
		{"response without id", `{"secrets":[]}`, func(b []byte) error { _, err := DecodeResponse(b); return err }},
		{"response secret without name", `{"requestId":"r","secrets":[{"value":"x"}]}`, func(b []byte) error { _, err := DecodeResponse(b); return err }},
		{"response secrets wrong type", `{"requestId":"r","secrets":"x"}`, func(b []byte) error { _, err := DecodeResponse(b); return err }},
		{"request empty id", `{"requestId":"","secretsRequested":[]}`, func(b []byte) error { _, err := DecodeRequest(b); return err }},
		{"request missing list", `{"requestId":"r"}`, func(b []byte) error { _, err := DecodeRequest(b); return err }},
		{"request version wrong type", `{"requestId":"r","secretsRequested":[{"name":"a","version":3}]}`, func(b []byte) error { _, err := DecodeRequest(b); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decode([]byte(tt.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestDecodeResponseAllowsEmptyOrNullSecrets(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{`{"requestId":"r"}`, `{"requestId":"r","secrets":null}`, `{"requestId":"r","secrets":[]}`} {
		resp, err := DecodeResponse([]byte(payload))
		require.NoError(t, err, payload)
		assert.Equal(t, 0, resp.List().Count())
	}
}

func TestDecodeAcceptsNullSecretFields(t *testing.T) {
	t.Parallel()

	resp, err := DecodeResponse([]byte(`{"requestId":"r","secrets":[{"name":"db","version":null,"value":null,"activationDate":null,"expirationDate":null}]}`))
	require.NoError(t, err)
	require.Len(t, resp.Secrets, 1)
	got := resp.Secrets[0]
	assert.Equal(t, "db", got.Name)
	assert.Empty(t, got.Version)
	assert.Empty(t, got.Value)
	assert.True(t, got.ActivationDate.IsZero())
	assert.True(t, got.ExpirationDate.IsZero())

	req, err := DecodeRequest([]byte(`{"requestId":"r","secretsRequested":[{"name":"db","version":null}]}`))
	require.NoError(t, err)
	require.Len(t, req.Secrets, 1)
	assert.Equal(t, "db", req.Secrets[0].Name)
	assert.Empty(t, req.Secrets[0].Version)
}
