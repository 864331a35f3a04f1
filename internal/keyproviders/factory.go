// Package keyproviders builds the key-operations providers named in the
// keyProviders section of edgesecrets.yaml.
package keyproviders

import (
	"github.com/systmms/edgesecrets/internal/config"
	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/keyops"
)

// Provider types
const (
	TypeLocal         = "local"
	TypeAzureKeyVault = "azure-keyvault"
	TypeReverse       = "reverse"
)

// New creates the provider described by cfg
func New(name string, cfg config.KeyProviderConfig, logger *logging.Logger) (keyops.Provider, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("keyProvider", name)

	switch cfg.Type {
	case TypeLocal:
		return NewLocalProvider(name, cfg.Config, logger), nil
	case TypeAzureKeyVault:
		p, err := NewAzureKeyVaultProvider(name, cfg.Config, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case TypeReverse:
		logger.Warn("Key provider %s offers no confidentiality; use it for testing only", name)
		p := keyops.NewReverseProvider()
		maxSize, err := config.Int(cfg.Config, "max_size", 0)
		if err != nil {
			return nil, dserrors.ConfigError{Field: "keyProviders." + name + ".max_size", Message: err.Error()}
		}
		p.MaxSize = maxSize
		return p, nil
	default:
		return nil, dserrors.ConfigError{
			Field:      "keyProviders." + name + ".type",
			Value:      cfg.Type,
			Message:    "unknown key provider type",
			Suggestion: "Use one of: local, azure-keyvault, reverse",
		}
	}
}
