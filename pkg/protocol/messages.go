// Package protocol defines the payloads exchanged between a device and the
// cloud secret authority.
//
// A device sends a SecretRequest as a one-way message whose
// transport.CorrelationProperty equals RequestID. The cloud answers by
// invoking the device's UpdateSecrets command with a SecretResponse carrying
// the same RequestID. Secrets the cloud cannot find are simply omitted.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/systmms/edgesecrets/pkg/secret"
)

// SecretMetadata names a requested secret and, optionally, a pinned version
type SecretMetadata struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Stub converts the metadata to a lookup stub
func (m SecretMetadata) Stub() secret.Secret {
	return secret.Stub(m.Name, m.Version)
}

// SecretRequest asks the cloud for a batch of secrets
type SecretRequest struct {
	RequestID  string           `json:"requestId"`
	CreateDate time.Time        `json:"createDate"`
	Secrets    []SecretMetadata `json:"secretsRequested"`
}

// NewSecretRequest builds a request with a fresh id for the given stubs
func NewSecretRequest(stubs []secret.Secret) *SecretRequest {
	req := &SecretRequest{
		RequestID:  uuid.NewString(),
		CreateDate: time.Now().UTC(),
		Secrets:    make([]SecretMetadata, 0, len(stubs)),
	}
	for _, s := range stubs {
		req.Secrets = append(req.Secrets, SecretMetadata{Name: s.Name, Version: s.Version})
	}
	return req
}

// Stubs returns the requested secrets as lookup stubs
func (r *SecretRequest) Stubs() []secret.Secret {
	out := make([]secret.Secret, 0, len(r.Secrets))
	for _, m := range r.Secrets {
		out = append(out, m.Stub())
	}
	return out
}

// Marshal encodes the request
func (r *SecretRequest) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode secret request: %w", err)
	}
	return data, nil
}

// SecretResponse carries the secrets found for a request
type SecretResponse struct {
	RequestID string          `json:"requestId"`
	Secrets   []secret.Secret `json:"secrets"`
}

// List indexes the response secrets
func (r *SecretResponse) List() *secret.List {
	return secret.NewList(r.Secrets...)
}

// Marshal encodes the response
func (r *SecretResponse) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode secret response: %w", err)
	}
	return data, nil
}

// DecodeRequest validates and decodes a request payload
func DecodeRequest(data []byte) (*SecretRequest, error) {
	if err := validate(requestSchema, "secret request", data); err != nil {
		return nil, err
	}
	var req SecretRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode secret request: %w", err)
	}
	return &req, nil
}

// DecodeResponse validates and decodes a response payload
func DecodeResponse(data []byte) (*SecretResponse, error) {
	if err := validate(responseSchema, "secret response", data); err != nil {
		return nil, err
	}
	var resp SecretResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode secret response: %w", err)
	}
	return &resp, nil
}
