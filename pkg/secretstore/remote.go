package secretstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/protocol"
	"github.com/systmms/edgesecrets/pkg/secret"
	"github.com/systmms/edgesecrets/pkg/transport"
)

// DefaultRemoteTimeout bounds the wait for a cloud response
const DefaultRemoteTimeout = 10 * time.Second

// TransportError reports a failure of the message channel
type TransportError struct {
	Op        string
	RequestID string
	Err       error
}

func (e *TransportError) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s failed for request %s: %v", e.Op, e.RequestID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type pendingRequest struct {
	request  *protocol.SecretRequest
	response chan *protocol.SecretResponse
	once     sync.Once
}

func newPendingRequest(req *protocol.SecretRequest) *pendingRequest {
	return &pendingRequest{
		request:  req,
		response: make(chan *protocol.SecretResponse, 1),
	}
}

// fulfil completes the request; only the first call has any effect
func (p *pendingRequest) fulfil(resp *protocol.SecretResponse) bool {
	done := false
	p.once.Do(func() {
		p.response <- resp
		done = true
	})
	return done
}

// abandon marks the request complete without a response
func (p *pendingRequest) abandon() {
	p.once.Do(func() {})
}

// RemoteMedium fetches secrets from the cloud authority over a transport
// channel. It is read-only: stores and merges are ignored, and secrets only
// flow from the cloud to the device.
type RemoteMedium struct {
	channel  transport.Channel
	timeout  time.Duration
	logger   *logging.Logger
	observer Observer

	mu      sync.Mutex
	pending map[string]*pendingRequest

	regMu      sync.Mutex
	registered bool
}

// NewRemoteMedium creates a medium sending requests over ch
func NewRemoteMedium(ch transport.Channel, timeout time.Duration, logger *logging.Logger, observer Observer) *RemoteMedium {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &RemoteMedium{
		channel:  ch,
		timeout:  timeout,
		logger:   logger,
		observer: observer,
		pending:  make(map[string]*pendingRequest),
	}
}

// NewRemoteStore creates a layer that resolves secrets from the cloud
func NewRemoteStore(ch transport.Channel, opts ...Option) *Store {
	o := buildOptions(opts)
	m := NewRemoteMedium(ch, o.timeout, nil, o.observer)
	s := newStore(m, o)
	m.logger = s.logger
	return s
}

func (m *RemoteMedium) Name() string {
	return "remote"
}

// Timeout returns the response wait bound
func (m *RemoteMedium) Timeout() time.Duration {
	return m.timeout
}

// Pending returns the number of outstanding requests
func (m *RemoteMedium) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *RemoteMedium) Clear(ctx context.Context) error {
	return nil
}

func (m *RemoteMedium) Store(ctx context.Context, s secret.Secret) error {
	return nil
}

func (m *RemoteMedium) Merge(ctx context.Context, list *secret.List) error {
	return nil
}

func (m *RemoteMedium) Retrieve(ctx context.Context, name, version string, date time.Time) (*secret.Secret, error) {
	list, err := m.RetrieveList(ctx, []secret.Secret{secret.Stub(name, version)})
	if err != nil {
		return nil, err
	}
	s, ok := list.Get(name, version, date)
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// RetrieveList sends one request for stubs and waits for the correlated
// response. A timeout or cancellation yields an empty list, not an error.
func (m *RemoteMedium) RetrieveList(ctx context.Context, stubs []secret.Secret) (*secret.List, error) {
	if len(stubs) == 0 {
		return secret.NewList(), nil
	}
	if err := ctx.Err(); err != nil {
		m.observer.RemoteOutcome(OutcomeCancelled)
		m.logger.Debug("Skipping request for %d secret(s): %v", len(stubs), err)
		return secret.NewList(), nil
	}
	if err := m.ensureHandler(ctx); err != nil {
		return nil, err
	}

	req := protocol.NewSecretRequest(stubs)
	payload, err := req.Marshal()
	if err != nil {
		return nil, err
	}

	// Register before sending so a fast response always finds its entry
	p := newPendingRequest(req)
	m.track(req.RequestID, p)
	defer m.untrack(req.RequestID)

	log := m.logger.With("request_id", req.RequestID)

	if err := m.channel.SendOneWay(ctx, payload, req.RequestID); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			m.observer.RemoteOutcome(OutcomeCancelled)
			log.Warn("Request for secrets cancelled before sending: %v", err)
			return secret.NewList(), nil
		}
		m.observer.RemoteOutcome(OutcomeSendError)
		return nil, &TransportError{Op: "send", RequestID: req.RequestID, Err: err}
	}
	log.Debug("Sent request for %d secret(s)", len(stubs))

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case resp := <-p.response:
		m.observer.RemoteOutcome(OutcomeFulfilled)
		log.Debug("Received %d secret(s)", len(resp.Secrets))
		return resp.List(), nil
	case <-timer.C:
		p.abandon()
		m.observer.RemoteOutcome(OutcomeTimeout)
		log.Warn("Request for secrets timed out after %s", m.timeout)
		return secret.NewList(), nil
	case <-ctx.Done():
		p.abandon()
		m.observer.RemoteOutcome(OutcomeCancelled)
		log.Warn("Request for secrets cancelled: %v", ctx.Err())
		return secret.NewList(), nil
	}
}

// HandleUpdateSecrets matches an inbound response to its pending request.
// Malformed payloads and unknown request ids are logged and dropped.
func (m *RemoteMedium) HandleUpdateSecrets(ctx context.Context, msg transport.Message) transport.Ack {
	resp, err := protocol.DecodeResponse(msg.Payload)
	if err != nil {
		m.logger.Warn("Dropping malformed secret update: %v", err)
		return transport.Ack{Status: transport.StatusBadRequest}
	}

	m.mu.Lock()
	p, ok := m.pending[resp.RequestID]
	m.mu.Unlock()

	if !ok {
		m.observer.UnmatchedResponse()
		m.logger.Warn("Received update of secrets for unknown request id %s", resp.RequestID)
		return transport.Ack{Status: transport.StatusOK}
	}

	if !p.fulfil(resp) {
		m.logger.Debug("Ignoring duplicate update for request id %s", resp.RequestID)
	}
	return transport.Ack{Status: transport.StatusOK}
}

// ensureHandler registers the inbound handler once. A failed registration
// is retried on the next call.
func (m *RemoteMedium) ensureHandler(ctx context.Context) error {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	if m.registered {
		return nil
	}
	if err := m.channel.RegisterHandler(ctx, transport.UpdateSecretsCommand, m.HandleUpdateSecrets); err != nil {
		return &TransportError{Op: "register", Err: err}
	}
	m.registered = true
	return nil
}

func (m *RemoteMedium) track(id string, p *pendingRequest) {
	m.mu.Lock()
	m.pending[id] = p
	n := len(m.pending)
	m.mu.Unlock()
	m.observer.PendingRequests(n)
}

func (m *RemoteMedium) untrack(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	n := len(m.pending)
	m.mu.Unlock()
	m.observer.PendingRequests(n)
}

var _ Medium = (*RemoteMedium)(nil)
