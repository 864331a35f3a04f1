// Package delivery answers device secret requests on the cloud side. Each
// request is read from a sources.Source and the secrets found are pushed
// back to the device with an UpdateSecrets invoke carrying the request id.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/internal/sources"
	"github.com/systmms/edgesecrets/pkg/protocol"
	"github.com/systmms/edgesecrets/pkg/secret"
	"github.com/systmms/edgesecrets/pkg/transport"
)

// Request outcomes recorded by a Recorder
const (
	StatusDelivered = "delivered"
	StatusInvalid   = "invalid"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
)

const defaultConcurrency = 8

// Replier delivers a response to the device that sent a request
type Replier interface {
	Invoke(ctx context.Context, command string, payload []byte) (transport.Ack, error)
}

// ReplyFunc adapts a function to Replier
type ReplyFunc func(ctx context.Context, command string, payload []byte) (transport.Ack, error)

// Invoke calls f
func (f ReplyFunc) Invoke(ctx context.Context, command string, payload []byte) (transport.Ack, error) {
	return f(ctx, command, payload)
}

// Recorder observes completed requests
type Recorder interface {
	RecordRequest(status string, delivered int, durationSeconds float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, int, float64) {}

// Responder turns device requests into UpdateSecrets invokes
type Responder struct {
	source      sources.Source
	logger      *logging.Logger
	recorder    Recorder
	concurrency int
	timeout     time.Duration
}

// Option configures a Responder
type Option func(*Responder)

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(r *Responder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(rec Recorder) Option {
	return func(r *Responder) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithConcurrency bounds parallel source lookups per request
func WithConcurrency(n int) Option {
	return func(r *Responder) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithSourceTimeout bounds each source lookup
func WithSourceTimeout(d time.Duration) Option {
	return func(r *Responder) {
		r.timeout = d
	}
}

// New creates a responder reading from source
func New(source sources.Source, opts ...Option) *Responder {
	r := &Responder{
		source:      source,
		logger:      logging.Nop(),
		recorder:    nopRecorder{},
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle answers one request payload. Secrets the source does not have are
// left out of the response; a lookup error for one secret is logged and the
// rest are still delivered.
func (r *Responder) Handle(ctx context.Context, payload []byte, reply Replier) error {
	start := time.Now()

	req, err := protocol.DecodeRequest(payload)
	if err != nil {
		r.recorder.RecordRequest(StatusInvalid, 0, time.Since(start).Seconds())
		return err
	}
	logger := r.logger.With("request_id", req.RequestID)
	logger.Debug("Received request for %d secrets", len(req.Secrets))

	found := r.fetch(ctx, logger, req.Secrets)

	resp := &protocol.SecretResponse{RequestID: req.RequestID, Secrets: found}
	data, err := resp.Marshal()
	if err != nil {
		r.recorder.RecordRequest(StatusFailed, 0, time.Since(start).Seconds())
		return err
	}

	ack, err := reply.Invoke(ctx, transport.UpdateSecretsCommand, data)
	if err != nil {
		r.recorder.RecordRequest(StatusFailed, 0, time.Since(start).Seconds())
		return fmt.Errorf("deliver response %s: %w", req.RequestID, err)
	}
	if !ack.OK() {
		r.recorder.RecordRequest(StatusRejected, 0, time.Since(start).Seconds())
		return fmt.Errorf("deliver response %s: device answered %d", req.RequestID, ack.Status)
	}

	logger.Info("Delivered %d of %d secrets", len(found), len(req.Secrets))
	r.recorder.RecordRequest(StatusDelivered, len(found), time.Since(start).Seconds())
	return nil
}

func (r *Responder) fetch(ctx context.Context, logger *logging.Logger, requested []protocol.SecretMetadata) []secret.Secret {
	results := make([]*secret.Secret, len(requested))
	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	for i, m := range requested {
		wg.Add(1)
		go func(i int, m protocol.SecretMetadata) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			lookupCtx := ctx
			if r.timeout > 0 {
				var cancel context.CancelFunc
				lookupCtx, cancel = context.WithTimeout(ctx, r.timeout)
				defer cancel()
			}

			s, err := r.source.Get(lookupCtx, m.Name, m.Version)
			if err != nil {
				logger.Warn("Failed to read %s from %s: %v", m.Stub(), r.source.Name(), err)
				return
			}
			if s == nil {
				logger.Debug("Secret %s not found in %s", m.Stub(), r.source.Name())
				return
			}
			results[i] = s
		}(i, m)
	}
	wg.Wait()

	out := make([]secret.Secret, 0, len(requested))
	for _, s := range results {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}
