package secretstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/keyops"
	"github.com/systmms/edgesecrets/pkg/secret"
)

// SecretStore is the contract every layer of a chain implements.
type SecretStore interface {
	// ClearCache clears the inner store's cache and then this layer's medium.
	ClearCache(ctx context.Context) error

	// RetrieveSecret resolves one secret. A nil secret with a nil error
	// means not found. An empty version matches the first version active
	// at date; a zero date matches any window.
	RetrieveSecret(ctx context.Context, name, version string, date time.Time, forceRetrieve bool) (*secret.Secret, error)

	// RetrieveSecretList resolves a batch of stubs (name plus optional
	// version). Secrets found nowhere are omitted from the result.
	RetrieveSecretList(ctx context.Context, stubs []secret.Secret, forceRetrieve bool) (*secret.List, error)

	// StoreSecret writes s into the inner store and into this layer.
	StoreSecret(ctx context.Context, s secret.Secret) error

	// MergeSecretList writes every secret of list into the inner store and
	// into this layer.
	MergeSecretList(ctx context.Context, list *secret.List) error
}

// Medium is the terminal storage a Store layer owns. Mediums see values
// exactly as the layer stores them, which is ciphertext when the layer has a
// key provider.
type Medium interface {
	Name() string
	Clear(ctx context.Context) error
	Retrieve(ctx context.Context, name, version string, date time.Time) (*secret.Secret, error)
	RetrieveList(ctx context.Context, stubs []secret.Secret) (*secret.List, error)
	Store(ctx context.Context, s secret.Secret) error
	Merge(ctx context.Context, list *secret.List) error
}

// Counter is implemented by mediums that can report how many secrets they hold
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Store is one layer of a chain: a medium, an optional inner store and an
// optional key provider.
type Store struct {
	name     string
	medium   Medium
	inner    SecretStore
	provider keyops.Provider
	keyID    string
	logger   *logging.Logger
	observer Observer
}

type options struct {
	name     string
	inner    SecretStore
	provider keyops.Provider
	keyID    string
	logger   *logging.Logger
	observer Observer
	timeout  time.Duration
}

// Option configures a Store
type Option func(*options)

// WithInner sets the store this layer delegates misses to
func WithInner(inner SecretStore) Option {
	return func(o *options) {
		o.inner = inner
	}
}

// WithKeyProvider encrypts this layer's values with keyID
func WithKeyProvider(p keyops.Provider, keyID string) Option {
	return func(o *options) {
		o.provider = p
		o.keyID = keyID
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver sets the metrics observer
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithName overrides the layer name used in logs and metrics
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithTimeout bounds how long a remote layer waits for a response.
// Other layers ignore it.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.Nop()
	}
	if o.observer == nil {
		o.observer = NopObserver{}
	}
	return o
}

// New creates a layer over medium
func New(medium Medium, opts ...Option) *Store {
	return newStore(medium, buildOptions(opts))
}

func newStore(medium Medium, o *options) *Store {
	name := o.name
	if name == "" {
		name = medium.Name()
	}
	return &Store{
		name:     name,
		medium:   medium,
		inner:    o.inner,
		provider: o.provider,
		keyID:    o.keyID,
		logger:   o.logger.With("layer", name),
		observer: o.observer,
	}
}

// Name returns the layer name
func (s *Store) Name() string {
	return s.name
}

// Medium returns the layer's terminal storage
func (s *Store) Medium() Medium {
	return s.medium
}

// Inner returns the store misses are delegated to, or nil
func (s *Store) Inner() SecretStore {
	return s.inner
}

// IsSourceOfTruth reports whether this layer has no inner store
func (s *Store) IsSourceOfTruth() bool {
	return s.inner == nil
}

// Count returns how many secrets this layer's medium holds
func (s *Store) Count(ctx context.Context) (int, error) {
	c, ok := s.medium.(Counter)
	if !ok {
		return 0, fmt.Errorf("layer %s cannot count its secrets", s.name)
	}
	return c.Count(ctx)
}

// ClearCache clears the inner store first and then this layer's medium
func (s *Store) ClearCache(ctx context.Context) error {
	if s.inner != nil {
		if err := s.inner.ClearCache(ctx); err != nil {
			return err
		}
	}
	if err := s.medium.Clear(ctx); err != nil {
		return fmt.Errorf("clear %s layer: %w", s.name, err)
	}
	s.logger.Debug("Cleared cache")
	return nil
}

// RetrieveSecret resolves a secret locally, falling back to the inner store
// and filling this layer with the result.
func (s *Store) RetrieveSecret(ctx context.Context, name, version string, date time.Time, forceRetrieve bool) (*secret.Secret, error) {
	if !forceRetrieve || s.inner == nil {
		local, err := s.medium.Retrieve(ctx, name, version, date)
		if err != nil {
			return nil, fmt.Errorf("retrieve %q from %s layer: %w", name, s.name, err)
		}
		if local != nil {
			s.observer.Lookup(s.name, true)
			plain, err := s.decrypt(ctx, *local)
			if err != nil {
				return nil, err
			}
			return &plain, nil
		}
		s.observer.Lookup(s.name, false)
	}

	if s.inner == nil {
		return nil, nil
	}

	found, err := s.inner.RetrieveSecret(ctx, name, version, date, forceRetrieve)
	if err != nil || found == nil {
		return nil, err
	}

	if err := s.fill(ctx, secret.NewList(*found)); err != nil {
		return nil, err
	}
	return found, nil
}

// RetrieveSecretList resolves a batch. Stubs not satisfied locally are
// forwarded to the inner store as one sub-batch.
func (s *Store) RetrieveSecretList(ctx context.Context, stubs []secret.Secret, forceRetrieve bool) (*secret.List, error) {
	result := secret.NewList()
	missing := stubs

	if !forceRetrieve || s.inner == nil {
		local, err := s.medium.RetrieveList(ctx, stubs)
		if err != nil {
			return nil, fmt.Errorf("retrieve secret list from %s layer: %w", s.name, err)
		}

		for _, enc := range local.All() {
			plain, err := s.decrypt(ctx, enc)
			if err != nil {
				return nil, err
			}
			result.Set(plain)
		}

		missing = nil
		for _, stub := range stubs {
			if len(local.Select(stub)) > 0 {
				s.observer.Lookup(s.name, true)
				continue
			}
			s.observer.Lookup(s.name, false)
			missing = append(missing, stub)
		}
	}

	if s.inner == nil || len(missing) == 0 {
		return result, nil
	}

	found, err := s.inner.RetrieveSecretList(ctx, missing, forceRetrieve)
	if err != nil {
		return nil, err
	}
	if found.Count() == 0 {
		return result, nil
	}

	if err := s.fill(ctx, found); err != nil {
		return nil, err
	}
	result.Merge(found)
	return result, nil
}

// StoreSecret writes the plaintext secret to the inner store, then the
// (possibly encrypted) secret to this layer. Both writes are attempted.
func (s *Store) StoreSecret(ctx context.Context, sec secret.Secret) error {
	var errs []error

	if s.inner != nil {
		if err := s.inner.StoreSecret(ctx, sec); err != nil {
			errs = append(errs, err)
		}
	}

	enc, err := s.encrypt(ctx, sec)
	if err != nil {
		errs = append(errs, err)
	} else if err := s.medium.Store(ctx, enc); err != nil {
		errs = append(errs, fmt.Errorf("store %q in %s layer: %w", sec.Name, s.name, err))
	}

	return errors.Join(errs...)
}

// MergeSecretList writes every secret of list to the inner store and to
// this layer. Both writes are attempted.
func (s *Store) MergeSecretList(ctx context.Context, list *secret.List) error {
	if list.Count() == 0 {
		return nil
	}

	var errs []error

	if s.inner != nil {
		if err := s.inner.MergeSecretList(ctx, list); err != nil {
			errs = append(errs, err)
		}
	}

	enc, err := s.encryptList(ctx, list)
	if err != nil {
		errs = append(errs, err)
	} else if err := s.medium.Merge(ctx, enc); err != nil {
		errs = append(errs, fmt.Errorf("merge into %s layer: %w", s.name, err))
	}

	return errors.Join(errs...)
}

// fill writes secrets resolved by the inner store into this layer.
// Only an oversized payload is reported; other failures are logged.
func (s *Store) fill(ctx context.Context, found *secret.List) error {
	enc, err := s.encryptList(ctx, found)
	if err == nil {
		err = s.medium.Merge(ctx, enc)
	}
	s.observer.CacheFill(s.name, err)

	if err == nil {
		s.logger.Debug("Cached %d secret(s) from inner store", found.Count())
		return nil
	}
	if keyops.IsPayloadTooLarge(err) {
		return err
	}
	s.logger.Warn("Failed to cache secrets from inner store: %v", err)
	return nil
}

func (s *Store) encryptList(ctx context.Context, list *secret.List) (*secret.List, error) {
	out := secret.NewList()
	for _, sec := range list.All() {
		enc, err := s.encrypt(ctx, sec)
		if err != nil {
			return nil, err
		}
		out.Set(enc)
	}
	return out, nil
}

func (s *Store) encrypt(ctx context.Context, sec secret.Secret) (secret.Secret, error) {
	if s.provider == nil || !sec.HasValue() {
		return sec, nil
	}
	ciphertext, err := s.provider.Encrypt(ctx, sec.Value, s.keyID)
	if err != nil {
		return secret.Secret{}, fmt.Errorf("encrypt %q for %s layer: %w", sec.Name, s.name, err)
	}
	return sec.WithValue(ciphertext), nil
}

func (s *Store) decrypt(ctx context.Context, sec secret.Secret) (secret.Secret, error) {
	if s.provider == nil || !sec.HasValue() {
		return sec, nil
	}
	plaintext, err := s.provider.Decrypt(ctx, sec.Value, s.keyID)
	if err != nil {
		return secret.Secret{}, fmt.Errorf("decrypt %q from %s layer: %w", sec.Name, s.name, err)
	}
	return sec.WithValue(plaintext), nil
}

var _ SecretStore = (*Store)(nil)
