// Package sources reads secrets from the cloud vaults the delivery service
// answers device requests from.
//
// A Source returns (nil, nil) when a secret or version does not exist, so the
// responder can omit it from the reply without treating it as a failure.
package sources

import (
	"context"

	"github.com/systmms/edgesecrets/internal/config"
	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/secret"
)

// Source types
const (
	TypeAzureKeyVault     = "azure-keyvault"
	TypeAWSSecretsManager = "aws-secretsmanager"
	TypeAWSSSM            = "aws-ssm"
	TypeGCPSecretManager  = "gcp-secretmanager"
	TypeSQL               = "sql"
	TypeStatic            = "static"
)

// Source fetches one secret by name and optional version
type Source interface {
	Name() string
	Get(ctx context.Context, name, version string) (*secret.Secret, error)
}

// New creates the source described by cfg
func New(name string, cfg config.SourceConfig, logger *logging.Logger) (Source, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("source", name)

	var (
		src Source
		err error
	)
	switch cfg.Type {
	case TypeAzureKeyVault:
		src, err = NewAzureKeyVault(name, cfg.Config, logger)
	case TypeAWSSecretsManager:
		src, err = NewAWSSecretsManager(name, cfg.Config, logger)
	case TypeAWSSSM:
		src, err = NewAWSSSM(name, cfg.Config, logger)
	case TypeGCPSecretManager:
		src, err = NewGCPSecretManager(name, cfg.Config, logger)
	case TypeSQL:
		src, err = NewSQL(name, cfg.Config, logger)
	case TypeStatic:
		src, err = NewStaticFromConfig(name, cfg.Config)
	default:
		return nil, dserrors.ConfigError{
			Field:      "delivery.source.type",
			Value:      cfg.Type,
			Message:    "unknown delivery source type",
			Suggestion: "Use one of: azure-keyvault, aws-secretsmanager, aws-ssm, gcp-secretmanager, sql, static",
		}
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}
