// Package secretmanager provides the caller-facing client over an assembled
// store chain.
package secretmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/secret"
	"github.com/systmms/edgesecrets/pkg/secretstore"
)

// DefaultTimeout bounds GetSecretValue
const DefaultTimeout = 30 * time.Second

// Client reads and writes secrets through the outermost layer of a chain.
type Client struct {
	store   secretstore.SecretStore
	timeout time.Duration
	logger  *logging.Logger
}

// Option configures a Client
type Option func(*Client)

// WithTimeout overrides the GetSecretValue timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client over store
func New(store secretstore.SecretStore, opts ...Option) *Client {
	c := &Client{
		store:   store,
		timeout: DefaultTimeout,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the outermost layer
func (c *Client) Store() secretstore.SecretStore {
	return c.store
}

// ClearCache clears every layer of the chain
func (c *Client) ClearCache(ctx context.Context) error {
	return c.store.ClearCache(ctx)
}

// GetSecret resolves a secret. A nil secret with a nil error means not found.
func (c *Client) GetSecret(ctx context.Context, name, version string, date time.Time) (*secret.Secret, error) {
	return c.store.RetrieveSecret(ctx, name, version, date, false)
}

// RefreshSecret resolves a secret from the source of truth, refreshing every
// cache layer on the way back.
func (c *Client) RefreshSecret(ctx context.Context, name, version string, date time.Time) (*secret.Secret, error) {
	return c.store.RetrieveSecret(ctx, name, version, date, true)
}

// GetSecretValue resolves a secret's value within the client timeout.
// The boolean is false when the secret was not found or the lookup timed
// out or was cancelled.
func (c *Client) GetSecretValue(ctx context.Context, name, version string, date time.Time) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	s, err := c.store.RetrieveSecret(ctx, name, version, date, false)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn("Timed out after %s retrieving secret %s", c.timeout, name)
			return "", false, nil
		}
		if errors.Is(err, context.Canceled) {
			c.logger.Warn("Retrieval of secret %s cancelled", name)
			return "", false, nil
		}
		return "", false, err
	}
	if s == nil {
		return "", false, nil
	}
	return s.Value, true, nil
}

// GetSecretList resolves a batch of unversioned names. Missing names are
// omitted from the result.
func (c *Client) GetSecretList(ctx context.Context, names ...string) (*secret.List, error) {
	stubs := make([]secret.Secret, 0, len(names))
	for _, name := range names {
		stubs = append(stubs, secret.Stub(name, ""))
	}
	return c.store.RetrieveSecretList(ctx, stubs, false)
}

// SetSecretValue stores value under (name, version). The validity window of
// an existing secret with the same name and version is preserved.
func (c *Client) SetSecretValue(ctx context.Context, name, value, version string) error {
	if name == "" {
		return fmt.Errorf("secret name is required")
	}

	existing, err := c.store.RetrieveSecret(ctx, name, version, time.Time{}, false)
	if err != nil {
		return fmt.Errorf("failed to read existing secret %s: %w", name, err)
	}

	s := secret.New(name, version, value)
	if existing != nil {
		s = s.WithWindow(existing.ActivationDate, existing.ExpirationDate)
	}

	if err := c.store.StoreSecret(ctx, s); err != nil {
		return fmt.Errorf("failed to store secret %s: %w", s, err)
	}
	c.logger.Debug("Stored secret %s", s)
	return nil
}
