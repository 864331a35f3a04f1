package transport

import (
	"context"
	"sync"
)

// Outbound is a message captured by a Loopback channel
type Outbound struct {
	Payload       []byte
	CorrelationID string
}

// Loopback is an in-process Channel. Sent messages are handed to an optional
// OnSend hook (typically a cloud-side responder) and recorded; Invoke plays
// the cloud's role by calling the registered handler.
type Loopback struct {
	mu       sync.Mutex
	handlers map[string]Handler
	sent     []Outbound
	closed   bool

	// OnSend runs after each successful send, outside the lock
	OnSend func(ctx context.Context, out Outbound)
	// SendErr, when set, fails every send
	SendErr error
	// RegisterErr, when set, fails every registration
	RegisterErr error

	registrations int
}

// NewLoopback creates an empty loopback channel
func NewLoopback() *Loopback {
	return &Loopback{handlers: make(map[string]Handler)}
}

// SendOneWay records the payload and forwards it to OnSend
func (l *Loopback) SendOneWay(ctx context.Context, payload []byte, correlationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.SendErr != nil {
		err := l.SendErr
		l.mu.Unlock()
		return err
	}
	out := Outbound{Payload: append([]byte(nil), payload...), CorrelationID: correlationID}
	l.sent = append(l.sent, out)
	hook := l.OnSend
	l.mu.Unlock()

	if hook != nil {
		hook(ctx, out)
	}
	return nil
}

// RegisterHandler routes command to h
func (l *Loopback) RegisterHandler(ctx context.Context, command string, h Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.RegisterErr != nil {
		return l.RegisterErr
	}
	l.handlers[command] = h
	l.registrations++
	return nil
}

// Invoke delivers an inbound invoke to the registered handler
func (l *Loopback) Invoke(ctx context.Context, command string, payload []byte) Ack {
	l.mu.Lock()
	h, ok := l.handlers[command]
	l.mu.Unlock()

	if !ok {
		return Ack{Status: StatusNotFound}
	}
	return h(ctx, Message{Command: command, Payload: payload})
}

// Sent returns a copy of everything sent so far
func (l *Loopback) Sent() []Outbound {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Outbound(nil), l.sent...)
}

// Registrations returns how many times a handler was registered
func (l *Loopback) Registrations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registrations
}

// Close makes further sends fail with ErrClosed
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

var _ Channel = (*Loopback)(nil)
