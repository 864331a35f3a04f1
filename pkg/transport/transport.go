// Package transport defines the duplex message channel the remote store uses
// to reach the cloud authority: one-way outbound messages tagged with a
// correlation id, and inbound invokes dispatched to registered handlers.
//
// Implementations live elsewhere (websocket, in-process loopback). The
// channel is shared and externally owned; stores only ever send and register.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// CorrelationProperty is the message property carrying the request id
const CorrelationProperty = "secret-request-id"

// UpdateSecretsCommand is the inbound command carrying secret responses
const UpdateSecretsCommand = "UpdateSecrets"

// Ack status codes returned by handlers
const (
	StatusOK         = 200
	StatusBadRequest = 400
	StatusNotFound   = 404
	StatusError      = 500
)

// ErrClosed is returned when sending over a closed channel
var ErrClosed = errors.New("transport closed")

// Message is an inbound invoke delivered to a handler
type Message struct {
	Command    string
	Payload    []byte
	Properties map[string]string
}

// Ack is the handler's reply to an inbound invoke
type Ack struct {
	Status  int
	Payload []byte
}

// OK reports whether the ack signals success
func (a Ack) OK() bool {
	return a.Status >= 200 && a.Status < 300
}

// Handler processes an inbound invoke
type Handler func(ctx context.Context, msg Message) Ack

// Channel is the device side of the message transport.
type Channel interface {
	// SendOneWay sends payload to the cloud, tagging it with correlationID.
	SendOneWay(ctx context.Context, payload []byte, correlationID string) error
	// RegisterHandler routes inbound invokes for command to h. Registering
	// a command again replaces the previous handler.
	RegisterHandler(ctx context.Context, command string, h Handler) error
}

// Frame kinds carried by an Envelope
const (
	KindEvent  = "event"
	KindInvoke = "invoke"
	KindAck    = "ack"
)

// Envelope is the framing used by stream transports. Events flow device to
// cloud, invokes flow cloud to device and are answered with an ack carrying
// the same ID.
type Envelope struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Command    string            `json:"command,omitempty"`
	DeviceID   string            `json:"deviceId,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	Status     int               `json:"status,omitempty"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
}

// Validate checks that the envelope is well formed for its kind
func (e *Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("envelope: missing id")
	}
	switch e.Kind {
	case KindEvent:
		return nil
	case KindInvoke:
		if e.Command == "" {
			return fmt.Errorf("envelope %s: invoke without command", e.ID)
		}
		return nil
	case KindAck:
		return nil
	default:
		return fmt.Errorf("envelope %s: unknown kind %q", e.ID, e.Kind)
	}
}

// CorrelationID returns the correlation property, if any
func (e *Envelope) CorrelationID() string {
	if e.Properties == nil {
		return ""
	}
	return e.Properties[CorrelationProperty]
}
