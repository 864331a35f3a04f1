package keyops

import (
	"context"
	"sync/atomic"
)

// ReverseProvider is a reversible stand-in for a real provider: "encryption"
// reverses the string. It exists for tests and local experiments and offers
// no confidentiality.
type ReverseProvider struct {
	// MaxSize rejects payloads longer than this many bytes when positive
	MaxSize int

	encrypts atomic.Int64
	decrypts atomic.Int64
}

// NewReverseProvider creates a reversible test provider
func NewReverseProvider() *ReverseProvider {
	return &ReverseProvider{}
}

// Encrypt reverses plaintext
func (p *ReverseProvider) Encrypt(ctx context.Context, plaintext, keyID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := p.checkSize(plaintext, keyID); err != nil {
		return "", err
	}
	p.encrypts.Add(1)
	return reverse(plaintext), nil
}

// Decrypt reverses ciphertext
func (p *ReverseProvider) Decrypt(ctx context.Context, ciphertext, keyID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := p.checkSize(ciphertext, keyID); err != nil {
		return "", err
	}
	p.decrypts.Add(1)
	return reverse(ciphertext), nil
}

// Encrypts returns how many values were encrypted
func (p *ReverseProvider) Encrypts() int64 {
	return p.encrypts.Load()
}

// Decrypts returns how many values were decrypted
func (p *ReverseProvider) Decrypts() int64 {
	return p.decrypts.Load()
}

func (p *ReverseProvider) checkSize(payload, keyID string) error {
	if p.MaxSize > 0 && len(payload) > p.MaxSize {
		return &PayloadTooLargeError{KeyID: keyID, Size: len(payload), Max: p.MaxSize}
	}
	return nil
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

var _ Provider = (*ReverseProvider)(nil)
