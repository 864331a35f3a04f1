package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// BackendError enhances errors from a key provider or secret source with
// a suggestion for the user
func BackendError(backend string, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s error during %s", backend, operation),
		Details:    err.Error(),
		Suggestion: backendSuggestion(backend, err),
		Err:        err,
	}
}

func backendSuggestion(backend string, err error) string {
	errStr := err.Error()

	switch backend {
	case "azure-keyvault":
		if strings.Contains(errStr, "DefaultAzureCredential") || strings.Contains(errStr, "credential") {
			return "Run 'az login' or configure a managed identity for the device"
		}
		if strings.Contains(errStr, "Forbidden") {
			return "Grant the identity the Key Vault Crypto User or Secrets User role"
		}
		if strings.Contains(errStr, "SecretNotFound") || strings.Contains(errStr, "KeyNotFound") {
			return "Verify the name exists in the vault. List with: 'az keyvault secret list --vault-name <vault>'"
		}

	case "aws-secretsmanager", "aws-ssm":
		if strings.Contains(errStr, "credentials") || strings.Contains(errStr, "authorization") {
			return "Configure AWS credentials: 'aws configure' or set AWS_PROFILE"
		}
		if strings.Contains(errStr, "AccessDenied") {
			return "Check IAM permissions for secretsmanager:GetSecretValue or ssm:GetParameter"
		}
		if strings.Contains(errStr, "ThrottlingException") {
			return "AWS rate limit exceeded. Wait a moment and try again"
		}

	case "gcp-secretmanager":
		if strings.Contains(errStr, "could not find default credentials") {
			return "Run 'gcloud auth application-default login' or set GOOGLE_APPLICATION_CREDENTIALS"
		}
		if strings.Contains(errStr, "PermissionDenied") {
			return "Grant the service account roles/secretmanager.secretAccessor"
		}

	case "keyring":
		if strings.Contains(errStr, "secret not found") {
			return "Store a base64-encoded 32-byte key in the OS keyring under the layer's keyId"
		}

	case "websocket":
		if strings.Contains(errStr, "bad handshake") {
			return "Check the transport url and the device id"
		}
	}

	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and configuration"
	}

	return ""
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"connection refused",
		"broken pipe",
		"rate limit",
		"throttling",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	var userErr UserError
	if errors.As(err, &userErr) {
		return userErr
	}
	var configErr ConfigError
	if errors.As(err, &configErr) {
		return configErr
	}

	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	return err
}
