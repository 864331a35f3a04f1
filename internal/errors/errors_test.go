package errors_test

import (
	stderrors "errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
)

func TestUserErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.UserError{
		Message:    "Operation failed",
		Details:    "Connection timeout",
		Suggestion: "Check network connectivity",
	}

	errMsg := err.Error()
	assert.Contains(t, errMsg, "Operation failed")
	assert.Contains(t, errMsg, "Connection timeout")
	assert.Contains(t, errMsg, "Check network connectivity")

	wrapped := errors.UserError{Err: fmt.Errorf("boom")}
	assert.Equal(t, "boom", wrapped.Error())
	assert.EqualError(t, stderrors.Unwrap(wrapped), "boom")
}

func TestConfigErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.ConfigError{
		Field:      "chain[1].timeout_ms",
		Value:      -5,
		Message:    "timeout must be positive",
		Suggestion: "Remove the field to use the 10s default",
	}

	errMsg := err.Error()
	assert.Contains(t, errMsg, "chain[1].timeout_ms")
	assert.Contains(t, errMsg, "-5")
	assert.Contains(t, errMsg, "timeout must be positive")
	assert.Contains(t, errMsg, "10s default")
}

func TestBackendErrorSuggestions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		backend string
		err     error
		want    string
	}{
		{"aws-secretsmanager", fmt.Errorf("AccessDeniedException: not allowed"), "IAM permissions"},
		{"aws-ssm", fmt.Errorf("no valid credentials"), "aws configure"},
		{"azure-keyvault", fmt.Errorf("Forbidden"), "Key Vault"},
		{"gcp-secretmanager", fmt.Errorf("PermissionDenied"), "secretAccessor"},
		{"keyring", fmt.Errorf("secret not found in keyring"), "OS keyring"},
		{"websocket", fmt.Errorf("websocket: bad handshake"), "transport url"},
		{"sql", fmt.Errorf("dial tcp: connection refused"), "Unable to connect"},
		{"sql", fmt.Errorf("i/o timeout"), "timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			err := errors.BackendError(tt.backend, "read", tt.err)
			var userErr errors.UserError
			require.True(t, stderrors.As(err, &userErr))
			assert.Contains(t, userErr.Suggestion, tt.want)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestBackendErrorKeepsSecretsRedacted(t *testing.T) {
	t.Parallel()

	secretValue := "api-key-super-secret-123"
	base := fmt.Errorf("authentication failed with key: %s", logging.Secret(secretValue))

	err := errors.BackendError("aws-secretsmanager", "read", base)
	assert.NotContains(t, err.Error(), secretValue)
	assert.Contains(t, stderrors.Unwrap(err).Error(), "[REDACTED]")
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, errors.IsRetryable(nil))
	assert.True(t, errors.IsRetryable(fmt.Errorf("read: connection reset by peer")))
	assert.True(t, errors.IsRetryable(fmt.Errorf("ThrottlingException: Rate exceeded")))
	assert.True(t, errors.IsRetryable(fmt.Errorf("dial tcp 127.0.0.1:1: connect: connection refused")))
	assert.False(t, errors.IsRetryable(fmt.Errorf("invalid configuration")))
}

func TestSimplifyError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, errors.SimplifyError(nil))

	cfg := errors.ConfigError{Message: "bad"}
	assert.Equal(t, cfg, errors.SimplifyError(fmt.Errorf("load: %w", cfg)))

	yamlErr := errors.SimplifyError(fmt.Errorf("yaml: line 3: did not find expected key"))
	assert.IsType(t, errors.ConfigError{}, yamlErr)

	_, statErr := os.Open("/definitely/not/here")
	simplified := errors.SimplifyError(statErr)
	var userErr errors.UserError
	require.True(t, stderrors.As(simplified, &userErr))
	assert.Equal(t, "File or directory not found", userErr.Message)

	plain := fmt.Errorf("something else")
	assert.Equal(t, plain, errors.SimplifyError(plain))
}
