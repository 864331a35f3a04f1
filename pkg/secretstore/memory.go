package secretstore

import (
	"context"
	"sync"
	"time"

	"github.com/systmms/edgesecrets/pkg/secret"
)

// MemoryMedium keeps secrets in a process-lifetime index
type MemoryMedium struct {
	mu   sync.RWMutex
	list *secret.List
}

// NewMemoryMedium creates an empty in-memory medium
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{list: secret.NewList()}
}

// NewInMemoryStore creates a layer backed by memory
func NewInMemoryStore(opts ...Option) *Store {
	return New(NewMemoryMedium(), opts...)
}

func (m *MemoryMedium) Name() string {
	return "memory"
}

func (m *MemoryMedium) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = secret.NewList()
	return nil
}

func (m *MemoryMedium) Retrieve(ctx context.Context, name, version string, date time.Time) (*secret.Secret, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.list.Get(name, version, date)
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryMedium) RetrieveList(ctx context.Context, stubs []secret.Secret) (*secret.List, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return selectStubs(m.list, stubs), nil
}

func (m *MemoryMedium) Store(ctx context.Context, s secret.Secret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list.Set(s)
	return nil
}

func (m *MemoryMedium) Merge(ctx context.Context, list *secret.List) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list.Merge(list)
	return nil
}

// Count returns the number of stored secrets
func (m *MemoryMedium) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list.Count(), nil
}

func selectStubs(list *secret.List, stubs []secret.Secret) *secret.List {
	out := secret.NewList()
	for _, stub := range stubs {
		for _, s := range list.Select(stub) {
			out.Set(s)
		}
	}
	return out
}

var (
	_ Medium  = (*MemoryMedium)(nil)
	_ Counter = (*MemoryMedium)(nil)
)
