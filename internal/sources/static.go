package sources

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/systmms/edgesecrets/pkg/secret"
)

// Static serves secrets from an in-memory list. It backs local delivery
// experiments and tests.
type Static struct {
	name string
	mu   sync.RWMutex
	list *secret.List
}

// NewStatic creates a source over secrets
func NewStatic(name string, secrets ...secret.Secret) *Static {
	return &Static{name: name, list: secret.NewList(secrets...)}
}

// NewStaticFromConfig reads a "secrets" map of name to value
func NewStaticFromConfig(name string, configMap map[string]interface{}) (*Static, error) {
	s := NewStatic(name)
	raw, ok := configMap["secrets"]
	if !ok {
		return s, nil
	}
	values, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("static source %s: secrets must be a map of name to value", name)
	}
	for k, v := range values {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("static source %s: value of %s must be a string", name, k)
		}
		s.Put(secret.New(k, "", str))
	}
	return s, nil
}

// Name returns the source name
func (s *Static) Name() string {
	return s.name
}

// Put adds or replaces a secret
func (s *Static) Put(sec secret.Secret) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list.Set(sec)
}

// Get returns the secret pinned by version, or the first stored version
func (s *Static) Get(ctx context.Context, name, version string) (*secret.Secret, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	found, ok := s.list.Get(name, version, time.Time{})
	if !ok {
		return nil, nil
	}
	return &found, nil
}
