package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when a destroyed buffer is used
var ErrDestroyed = errors.New("key buffer destroyed")

// ErrEmptyKey is returned when sealing zero bytes
var ErrEmptyKey = errors.New("key material is empty")

// KeyBuffer holds key material encrypted in memory.
type KeyBuffer struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	size      int
	destroyed bool
}

// NewKeyBuffer seals data in an enclave. memguard wipes data as a side
// effect, so callers must not reuse it.
func NewKeyBuffer(data []byte) (*KeyBuffer, error) {
	if len(data) == 0 {
		return nil, ErrEmptyKey
	}
	size := len(data)
	return &KeyBuffer{enclave: memguard.NewEnclave(data), size: size}, nil
}

// Size returns the key length in bytes
func (k *KeyBuffer) Size() int {
	return k.size
}

// WithKey opens the enclave, passes the plaintext key to fn and wipes it
// afterwards.
func (k *KeyBuffer) WithKey(fn func(key []byte) error) error {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.destroyed {
		return ErrDestroyed
	}

	locked, err := k.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return fn(locked.Bytes())
}

// Destroy drops the enclave. It is safe to call more than once.
func (k *KeyBuffer) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.destroyed {
		return
	}
	k.enclave = nil
	k.destroyed = true
}

// Purge wipes every memguard buffer in the process. Call it on exit.
func Purge() {
	memguard.Purge()
}
