// Package keyops defines the key-operations provider contract used by store
// layers to encrypt values before they reach a medium and to decrypt them on
// the way out.
//
// Providers are injected and shared: a store never closes or reconfigures the
// provider it was given. Different layers may hold different providers and
// key identifiers, so encryption is always layer-local.
package keyops

import (
	"context"
	"errors"
	"fmt"
)

// Provider performs encryption and decryption with an opaque key identifier.
//
// Implementations must be safe for concurrent use and must return an error
// wrapping ErrPayloadTooLarge when the input exceeds what the key can process.
type Provider interface {
	Encrypt(ctx context.Context, plaintext, keyID string) (string, error)
	Decrypt(ctx context.Context, ciphertext, keyID string) (string, error)
}

// ErrPayloadTooLarge is returned when a payload exceeds the key's capacity.
var ErrPayloadTooLarge = errors.New("payload too large for key")

// PayloadTooLargeError carries the sizes involved in a rejected operation
type PayloadTooLargeError struct {
	KeyID string
	Size  int
	Max   int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("payload of %d bytes exceeds %d byte capacity of key %s", e.Size, e.Max, e.KeyID)
}

// Unwrap lets errors.Is match ErrPayloadTooLarge
func (e *PayloadTooLargeError) Unwrap() error {
	return ErrPayloadTooLarge
}

// IsPayloadTooLarge reports whether err was caused by an oversized payload
func IsPayloadTooLarge(err error) bool {
	return errors.Is(err, ErrPayloadTooLarge)
}
