// Package wstransport carries transport envelopes over gorilla/websocket.
// Client is the device end and implements transport.Channel; Hub is the
// cloud end that accepts device connections, routes device events to a
// handler and invokes commands on devices.
package wstransport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/transport"
)

// DeviceHeader carries the device id on the upgrade request
const DeviceHeader = "X-Device-Id"

// DeviceQueryParam carries the device id in the URL
const DeviceQueryParam = "device"

const (
	defaultReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
)

// ClientConfig configures a device connection
type ClientConfig struct {
	URL              string
	DeviceID         string
	Headers          http.Header
	HandshakeTimeout time.Duration
	ReconnectDelay   time.Duration
}

// Client is the device end of the websocket channel. It reconnects until
// closed; sends fail fast while disconnected.
type Client struct {
	cfg    ClientConfig
	dialer *websocket.Dialer
	logger *logging.Logger

	mu       sync.RWMutex
	peer     *peer
	handlers map[string]transport.Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dial connects to the hub and starts the read loop
func Dial(ctx context.Context, cfg ClientConfig, logger *logging.Logger) (*Client, error) {
	if cfg.URL == "" || cfg.DeviceID == "" {
		return nil, dserrors.ConfigError{
			Field:      "transport",
			Message:    "url and device_id are required",
			Suggestion: "Set transport.url and transport.device_id",
		}
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if logger == nil {
		logger = logging.Nop()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger:   logger.With("device", cfg.DeviceID),
		handlers: make(map[string]transport.Handler),
		ctx:      runCtx,
		cancel:   cancel,
	}

	p, err := c.connect(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	c.setPeer(p)

	c.wg.Add(1)
	go c.run(p)
	return c, nil
}

// SendOneWay sends payload as an event tagged with correlationID
func (c *Client) SendOneWay(ctx context.Context, payload []byte, correlationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := c.currentPeer()
	if p == nil {
		return transport.ErrClosed
	}

	env := &transport.Envelope{
		ID:         uuid.NewString(),
		Kind:       transport.KindEvent,
		DeviceID:   c.cfg.DeviceID,
		Properties: map[string]string{transport.CorrelationProperty: correlationID},
		Payload:    payload,
	}
	if err := p.enqueue(env); err != nil {
		return fmt.Errorf("send event %s: %w", env.ID, err)
	}
	return nil
}

// RegisterHandler routes invokes for command to h
func (c *Client) RegisterHandler(ctx context.Context, command string, h transport.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.ctx.Done():
		return transport.ErrClosed
	default:
	}
	c.handlers[command] = h
	return nil
}

// Connected reports whether a connection is currently up
func (c *Client) Connected() bool {
	p := c.currentPeer()
	if p == nil {
		return false
	}
	select {
	case <-p.closed():
		return false
	default:
		return true
	}
}

// Close stops reconnecting and closes the connection
func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	p := c.peer
	c.peer = nil
	c.mu.Unlock()
	if p != nil {
		p.close()
	}
	c.wg.Wait()
	return nil
}

func (c *Client) connect(ctx context.Context) (*peer, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, dserrors.ConfigError{Field: "transport.url", Value: c.cfg.URL, Message: err.Error()}
	}
	q := u.Query()
	q.Set(DeviceQueryParam, c.cfg.DeviceID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	for k, v := range c.cfg.Headers {
		header[k] = v
	}
	header.Set(DeviceHeader, c.cfg.DeviceID)

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, dserrors.BackendError("websocket", "connect", err)
	}
	c.logger.Debug("Connected to %s", c.cfg.URL)
	return newPeer(conn, c.logger), nil
}

func (c *Client) run(p *peer) {
	defer c.wg.Done()

	for {
		err := p.readPump(c.dispatch(p))
		select {
		case <-c.ctx.Done():
			return
		default:
		}
		c.logger.Warn("Connection lost: %v", err)
		c.setPeer(nil)

		p = c.reconnect()
		if p == nil {
			return
		}
		// Close may have run while the dial was in flight
		if !c.setPeer(p) {
			p.close()
			return
		}
		c.logger.Info("Reconnected to %s", c.cfg.URL)
	}
}

func (c *Client) reconnect() *peer {
	delay := c.cfg.ReconnectDelay
	for {
		select {
		case <-c.ctx.Done():
			return nil
		case <-time.After(delay):
		}

		p, err := c.connect(c.ctx)
		if err == nil {
			return p
		}
		if dserrors.IsRetryable(err) {
			c.logger.Debug("Reconnect failed, retrying in %s: %v", delay, err)
		} else {
			c.logger.Warn("Reconnect failed, retrying in %s: %v", delay, err)
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (c *Client) dispatch(p *peer) func(env *transport.Envelope) {
	return func(env *transport.Envelope) {
		if env.Kind != transport.KindInvoke {
			c.logger.Debug("Ignoring %s frame %s", env.Kind, env.ID)
			return
		}

		c.mu.RLock()
		h, ok := c.handlers[env.Command]
		c.mu.RUnlock()

		go func() {
			ack := transport.Ack{Status: transport.StatusNotFound}
			if ok {
				ack = h(c.ctx, transport.Message{
					Command:    env.Command,
					Payload:    env.Payload,
					Properties: env.Properties,
				})
			}
			reply := &transport.Envelope{ID: env.ID, Kind: transport.KindAck, Status: ack.Status, Payload: ack.Payload}
			if err := p.enqueue(reply); err != nil {
				c.logger.Warn("Failed to ack %s %s: %v", env.Command, env.ID, err)
			}
		}()
	}
}

func (c *Client) currentPeer() *peer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peer
}

// setPeer stores p unless the client is closed. Close cancels before
// taking the lock, so a peer stored here is always seen by Close.
func (c *Client) setPeer(p *peer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p != nil && c.ctx.Err() != nil {
		return false
	}
	c.peer = p
	return true
}

var _ transport.Channel = (*Client)(nil)
