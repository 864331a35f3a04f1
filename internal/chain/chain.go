// Package chain assembles a secret manager client from the chain section of
// edgesecrets.yaml.
package chain

import (
	"errors"
	"fmt"
	"io"

	"github.com/systmms/edgesecrets/internal/config"
	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/keyproviders"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/keyops"
	"github.com/systmms/edgesecrets/pkg/secretmanager"
	"github.com/systmms/edgesecrets/pkg/secretstore"
	"github.com/systmms/edgesecrets/pkg/transport"
)

// Chain is an assembled client plus the key providers it owns
type Chain struct {
	Client *secretmanager.Client
	// Layers are ordered outermost first
	Layers []*secretstore.Store

	providers map[string]keyops.Provider
}

// Option configures Build
type Option func(*builder)

type builder struct {
	logger   *logging.Logger
	channel  transport.Channel
	observer secretstore.Observer
	factory  func(name string, cfg config.KeyProviderConfig, logger *logging.Logger) (keyops.Provider, error)
}

// WithLogger sets the logger handed to every layer
func WithLogger(l *logging.Logger) Option {
	return func(b *builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithChannel sets the transport used by remote layers
func WithChannel(ch transport.Channel) Option {
	return func(b *builder) {
		b.channel = ch
	}
}

// WithObserver sets the metrics observer handed to every layer
func WithObserver(obs secretstore.Observer) Option {
	return func(b *builder) {
		b.observer = obs
	}
}

// WithKeyProviderFactory replaces keyproviders.New
func WithKeyProviderFactory(f func(string, config.KeyProviderConfig, *logging.Logger) (keyops.Provider, error)) Option {
	return func(b *builder) {
		if f != nil {
			b.factory = f
		}
	}
}

// SupportedLayerTypes lists the layer types Build understands
func SupportedLayerTypes() []string {
	return []string{config.LayerMemory, config.LayerFile, config.LayerRemote}
}

// Build creates every layer of def.Chain, innermost first, and wraps the
// outermost in a client. Key providers are created once per name and shared
// by the layers that reference them.
func Build(def *config.Definition, opts ...Option) (*Chain, error) {
	if def == nil {
		return nil, dserrors.UserError{
			Message:    "Configuration not loaded",
			Suggestion: "This is an internal error. Please report it",
		}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	b := &builder{
		logger:  logging.Nop(),
		factory: keyproviders.New,
	}
	for _, opt := range opts {
		opt(b)
	}

	c := &Chain{
		Layers:    make([]*secretstore.Store, len(def.Chain)),
		providers: make(map[string]keyops.Provider),
	}

	var inner secretstore.SecretStore
	for i := len(def.Chain) - 1; i >= 0; i-- {
		store, err := b.layer(c, def, i, inner)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.Layers[i] = store
		inner = store
	}

	c.Client = secretmanager.New(c.Layers[0],
		secretmanager.WithTimeout(def.Client.Timeout()),
		secretmanager.WithLogger(b.logger),
	)
	b.logger.Debug("Assembled chain of %d layers", len(c.Layers))
	return c, nil
}

func (b *builder) layer(c *Chain, def *config.Definition, i int, inner secretstore.SecretStore) (*secretstore.Store, error) {
	layer := def.Chain[i]
	name := layer.DisplayName()
	if name == layer.Type {
		name = fmt.Sprintf("%s-%d", layer.Type, i)
	}
	opts := []secretstore.Option{
		secretstore.WithName(name),
		secretstore.WithLogger(b.logger),
	}
	if b.observer != nil {
		opts = append(opts, secretstore.WithObserver(b.observer))
	}
	if inner != nil {
		opts = append(opts, secretstore.WithInner(inner))
	}

	if layer.KeyProvider != "" {
		p, err := b.provider(c, def, layer.KeyProvider)
		if err != nil {
			return nil, err
		}
		opts = append(opts, secretstore.WithKeyProvider(p, layer.KeyID))
	}

	switch layer.Type {
	case config.LayerMemory:
		return secretstore.NewInMemoryStore(opts...), nil
	case config.LayerFile:
		return secretstore.NewFileStore(layer.Path, opts...), nil
	case config.LayerRemote:
		if b.channel == nil {
			return nil, dserrors.ConfigError{
				Field:      fmt.Sprintf("chain[%d]", i),
				Message:    "remote layer needs a connected transport",
				Suggestion: "Check the transport section and that the hub is reachable",
			}
		}
		opts = append(opts, secretstore.WithTimeout(layer.RemoteTimeout()))
		return secretstore.NewRemoteStore(b.channel, opts...), nil
	default:
		return nil, dserrors.ConfigError{
			Field:      fmt.Sprintf("chain[%d].type", i),
			Value:      layer.Type,
			Message:    "unknown layer type",
			Suggestion: "Use one of: memory, file, remote",
		}
	}
}

func (b *builder) provider(c *Chain, def *config.Definition, name string) (keyops.Provider, error) {
	if p, ok := c.providers[name]; ok {
		return p, nil
	}
	cfg, err := def.KeyProvider(name)
	if err != nil {
		return nil, err
	}
	p, err := b.factory(name, cfg, b.logger)
	if err != nil {
		return nil, err
	}
	c.providers[name] = p
	return p, nil
}

// Provider returns the key provider created for name, if any
func (c *Chain) Provider(name string) (keyops.Provider, bool) {
	p, ok := c.providers[name]
	return p, ok
}

// Close releases key material held by the chain's providers
func (c *Chain) Close() error {
	var errs []error
	for name, p := range c.providers {
		switch closer := p.(type) {
		case io.Closer:
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close key provider %s: %w", name, err))
			}
		case interface{ Close() }:
			closer.Close()
		}
	}
	return errors.Join(errs...)
}
