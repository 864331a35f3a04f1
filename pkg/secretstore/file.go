package secretstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/systmms/edgesecrets/pkg/secret"
)

// FileMedium persists secrets as a single JSON document of the form
// name -> (version -> secret). Every write replaces the document atomically.
type FileMedium struct {
	path string
	mu   sync.Mutex
}

// NewFileMedium creates a medium persisted at path
func NewFileMedium(path string) *FileMedium {
	return &FileMedium{path: path}
}

// NewFileStore creates a layer backed by the JSON document at path
func NewFileStore(path string, opts ...Option) *Store {
	return New(NewFileMedium(path), opts...)
}

func (m *FileMedium) Name() string {
	return "file"
}

// Path returns the document location
func (m *FileMedium) Path() string {
	return m.path
}

func (m *FileMedium) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove secrets file: %w", err)
	}
	return nil
}

func (m *FileMedium) Retrieve(ctx context.Context, name, version string, date time.Time) (*secret.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	s, ok := list.Get(name, version, date)
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *FileMedium) RetrieveList(ctx context.Context, stubs []secret.Secret) (*secret.List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	return selectStubs(list, stubs), nil
}

func (m *FileMedium) Store(ctx context.Context, s secret.Secret) error {
	return m.update(ctx, func(list *secret.List) {
		list.Set(s)
	})
}

func (m *FileMedium) Merge(ctx context.Context, other *secret.List) error {
	return m.update(ctx, func(list *secret.List) {
		list.Merge(other)
	})
}

// Count returns the number of secrets in the document
func (m *FileMedium) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.load(ctx)
	if err != nil {
		return 0, err
	}
	return list.Count(), nil
}

func (m *FileMedium) update(ctx context.Context, apply func(*secret.List)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, err := m.load(ctx)
	if err != nil {
		return err
	}
	apply(list)
	return m.save(ctx, list)
}

// load reads the document; a missing file is an empty list
func (m *FileMedium) load(ctx context.Context) (*secret.List, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return secret.NewList(), nil
		}
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if len(data) == 0 {
		return secret.NewList(), nil
	}

	list := secret.NewList()
	if err := json.Unmarshal(data, list); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file %s: %w", m.path, err)
	}
	return list, nil
}

// save writes to a temp file in the same directory and renames it over the
// document so readers never observe a partial write.
func (m *FileMedium) save(ctx context.Context, list *secret.List) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create secrets directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(m.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync secrets file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close secrets file: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		return fmt.Errorf("failed to replace secrets file: %w", err)
	}
	return nil
}

var (
	_ Medium  = (*FileMedium)(nil)
	_ Counter = (*FileMedium)(nil)
)
