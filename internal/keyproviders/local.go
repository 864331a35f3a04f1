package keyproviders

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/chacha20poly1305"

	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/internal/secure"
	"github.com/systmms/edgesecrets/pkg/keyops"
)

// DefaultKeyringService is the keyring service local keys are read from
const DefaultKeyringService = "edgesecrets"

// KeyringAPI reads a secret from the OS keyring
type KeyringAPI interface {
	Get(service, user string) (string, error)
}

type osKeyring struct{}

func (osKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

// LocalProvider encrypts with XChaCha20-Poly1305 using 32-byte keys held in
// the OS keyring. Ciphertext is base64(nonce || sealed).
type LocalProvider struct {
	name    string
	service string
	keyring KeyringAPI
	logger  *logging.Logger

	mu   sync.Mutex
	keys map[string]*secure.KeyBuffer
}

// LocalOption configures a LocalProvider
type LocalOption func(*LocalProvider)

// WithKeyring replaces the OS keyring
func WithKeyring(k KeyringAPI) LocalOption {
	return func(p *LocalProvider) {
		p.keyring = k
	}
}

// NewLocalProvider creates a keyring-backed provider
func NewLocalProvider(name string, configMap map[string]interface{}, logger *logging.Logger, opts ...LocalOption) *LocalProvider {
	service := DefaultKeyringService
	if s, ok := configMap["service"].(string); ok && s != "" {
		service = s
	}
	if logger == nil {
		logger = logging.Nop()
	}

	p := &LocalProvider{
		name:    name,
		service: service,
		keyring: osKeyring{},
		logger:  logger,
		keys:    make(map[string]*secure.KeyBuffer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name
func (p *LocalProvider) Name() string {
	return p.name
}

// Encrypt seals plaintext under keyID
func (p *LocalProvider) Encrypt(ctx context.Context, plaintext, keyID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	kb, err := p.key(keyID)
	if err != nil {
		return "", err
	}

	var out string
	err = kb.WithKey(func(key []byte) error {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return err
		}
		nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
		if _, err := rand.Read(nonce); err != nil {
			return fmt.Errorf("nonce: %w", err)
		}
		out = base64.StdEncoding.EncodeToString(aead.Seal(nonce, nonce, []byte(plaintext), nil))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("encrypt with key %s: %w", keyID, err)
	}
	return out, nil
}

// Decrypt opens ciphertext produced by Encrypt
func (p *LocalProvider) Decrypt(ctx context.Context, ciphertext, keyID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypt with key %s: malformed ciphertext: %w", keyID, err)
	}
	if len(raw) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return "", fmt.Errorf("decrypt with key %s: ciphertext too short", keyID)
	}
	kb, err := p.key(keyID)
	if err != nil {
		return "", err
	}

	var out string
	err = kb.WithKey(func(key []byte) error {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return err
		}
		nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
		plain, err := aead.Open(nil, nonce, sealed, nil)
		if err != nil {
			return err
		}
		out = string(plain)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("decrypt with key %s: %w", keyID, err)
	}
	return out, nil
}

// Close destroys every cached key
func (p *LocalProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, kb := range p.keys {
		kb.Destroy()
		delete(p.keys, id)
	}
}

func (p *LocalProvider) key(keyID string) (*secure.KeyBuffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if kb, ok := p.keys[keyID]; ok {
		return kb, nil
	}

	encoded, err := p.keyring.Get(p.service, keyID)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, dserrors.BackendError("keyring", "key lookup", fmt.Errorf("key %s not found in service %s: %w", keyID, p.service, err))
		}
		return nil, dserrors.BackendError("keyring", "key lookup", err)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("key %s is not valid base64: %w", keyID, err)
	}
	if len(raw) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("key %s must be %d bytes, got %d", keyID, chacha20poly1305.KeySize, len(raw))
	}

	kb, err := secure.NewKeyBuffer(raw)
	if err != nil {
		return nil, err
	}
	p.keys[keyID] = kb
	p.logger.Debug("Loaded key %s from keyring service %s", keyID, p.service)
	return kb, nil
}

var _ keyops.Provider = (*LocalProvider)(nil)
