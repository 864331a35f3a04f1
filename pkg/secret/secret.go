// Package secret defines the versioned, time-windowed secret value and the
// in-memory index used by every store layer to resolve a secret by name,
// version and validity date.
//
// A Secret is immutable by convention: helpers such as WithValue return a
// modified copy and never touch the receiver.
//
// # Optional fields
//
//   - Version "" means the caller did not pin a version.
//   - A zero ActivationDate means "active since forever".
//   - A zero ExpirationDate means "never expires".
//   - Value "" means "no value"; empty values are never encrypted.
//
// The validity window is half-open: [ActivationDate, ExpirationDate).
package secret

import (
	"fmt"
	"time"
)

// Secret is a named, versioned, time-windowed credential value.
type Secret struct {
	Name           string    `json:"name"`
	Version        string    `json:"version,omitempty"`
	Value          string    `json:"value,omitempty"`
	ActivationDate time.Time `json:"activationDate"`
	ExpirationDate time.Time `json:"expirationDate"`
}

// New creates a secret with an unbounded validity window.
func New(name, version, value string) Secret {
	return Secret{Name: name, Version: version, Value: value}
}

// Stub creates a lookup stub carrying only a name and an optional version.
func Stub(name, version string) Secret {
	return Secret{Name: name, Version: version}
}

// WithValue returns a copy of s carrying value.
func (s Secret) WithValue(value string) Secret {
	s.Value = value
	return s
}

// WithVersion returns a copy of s carrying version.
func (s Secret) WithVersion(version string) Secret {
	s.Version = version
	return s
}

// WithWindow returns a copy of s valid in [activation, expiration).
func (s Secret) WithWindow(activation, expiration time.Time) Secret {
	s.ActivationDate = activation
	s.ExpirationDate = expiration
	return s
}

// HasValue reports whether the secret carries a value.
func (s Secret) HasValue() bool {
	return s.Value != ""
}

// IsActive reports whether date falls inside the validity window.
// A zero date is always considered active.
func (s Secret) IsActive(date time.Time) bool {
	if date.IsZero() {
		return true
	}
	if !s.ActivationDate.IsZero() && date.Before(s.ActivationDate) {
		return false
	}
	if !s.ExpirationDate.IsZero() && !date.Before(s.ExpirationDate) {
		return false
	}
	return true
}

// String never includes the value.
func (s Secret) String() string {
	if s.Version == "" {
		return s.Name
	}
	return fmt.Sprintf("%s@%s", s.Name, s.Version)
}

// GoString keeps the value out of %#v output.
func (s Secret) GoString() string {
	return fmt.Sprintf("secret.Secret{Name:%q, Version:%q, Value:[REDACTED]}", s.Name, s.Version)
}
