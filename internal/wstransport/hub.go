package wstransport

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/transport"
)

// APIKeyHeader carries the shared key devices present when connecting
const APIKeyHeader = "X-API-KEY"

// ErrUnknownDevice is returned when invoking a device that is not connected
var ErrUnknownDevice = errors.New("device not connected")

// Invoker calls a command on one connected device
type Invoker interface {
	Invoke(ctx context.Context, command string, payload []byte) (transport.Ack, error)
}

// EventHandler receives device events. reply invokes commands on the
// device that sent the event.
type EventHandler func(ctx context.Context, deviceID string, msg transport.Message, reply Invoker)

// Hub accepts device connections
type Hub struct {
	upgrader websocket.Upgrader
	handler  EventHandler
	logger   *logging.Logger
	apiKey   string

	mu      sync.RWMutex
	devices map[string]*device

	ctx    context.Context
	cancel context.CancelFunc
}

type device struct {
	id     string
	peer   *peer
	logger *logging.Logger

	mu      sync.Mutex
	pending map[string]chan transport.Ack
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithAPIKey makes the hub refuse connections that do not present key in
// the X-API-KEY header. An empty key accepts every connection.
func WithAPIKey(key string) HubOption {
	return func(h *Hub) {
		h.apiKey = key
	}
}

// NewHub creates a hub dispatching device events to handler
func NewHub(handler EventHandler, logger *logging.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		handler:  handler,
		logger:   logger,
		devices:  make(map[string]*device),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) authorized(r *http.Request) bool {
	if h.apiKey == "" {
		return true
	}
	presented := r.Header.Get(APIKeyHeader)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.apiKey)) == 1
}

// ServeHTTP upgrades a device connection. The device id comes from the
// X-Device-Id header or the device query parameter. When an API key is
// configured, connections without it get 403.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.logger.Warn("Rejected connection from %s: missing or invalid API key", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	id := r.Header.Get(DeviceHeader)
	if id == "" {
		id = r.URL.Query().Get(DeviceQueryParam)
	}
	if id == "" {
		http.Error(w, "missing device id", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Failed to upgrade connection from %s: %v", r.RemoteAddr, err)
		return
	}

	logger := h.logger.With("device", id)
	d := &device{
		id:      id,
		peer:    newPeer(ws, logger),
		logger:  logger,
		pending: make(map[string]chan transport.Ack),
	}
	h.register(d)
	logger.Info("Device connected from %s", r.RemoteAddr)

	go func() {
		err := d.peer.readPump(h.route(d))
		h.unregister(d)
		d.failPending()
		logger.Info("Device disconnected: %v", err)
	}()
}

// Invoke calls command on a connected device and waits for its ack
func (h *Hub) Invoke(ctx context.Context, deviceID, command string, payload []byte) (transport.Ack, error) {
	h.mu.RLock()
	d, ok := h.devices[deviceID]
	h.mu.RUnlock()
	if !ok {
		return transport.Ack{}, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return d.Invoke(ctx, command, payload)
}

// Devices returns the ids of connected devices
func (h *Hub) Devices() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.devices))
	for id := range h.devices {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close disconnects every device
func (h *Hub) Close() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, d := range h.devices {
		d.peer.close()
		delete(h.devices, id)
	}
}

func (h *Hub) register(d *device) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.devices[d.id]; ok {
		old.logger.Info("Replacing previous connection")
		old.peer.close()
	}
	h.devices[d.id] = d
}

func (h *Hub) unregister(d *device) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.devices[d.id]; ok && cur == d {
		delete(h.devices, d.id)
	}
}

func (h *Hub) route(d *device) func(env *transport.Envelope) {
	return func(env *transport.Envelope) {
		switch env.Kind {
		case transport.KindAck:
			d.resolve(env)
		case transport.KindEvent:
			if h.handler == nil {
				return
			}
			msg := transport.Message{Payload: env.Payload, Properties: env.Properties}
			go h.handler(h.ctx, d.id, msg, d)
		default:
			d.logger.Debug("Ignoring %s frame from device", env.Kind)
		}
	}
}

// Invoke sends an invoke frame and waits for the matching ack
func (d *device) Invoke(ctx context.Context, command string, payload []byte) (transport.Ack, error) {
	id := uuid.NewString()
	ch := make(chan transport.Ack, 1)

	d.mu.Lock()
	d.pending[id] = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
	}()

	env := &transport.Envelope{ID: id, Kind: transport.KindInvoke, Command: command, DeviceID: d.id, Payload: payload}
	if err := d.peer.enqueue(env); err != nil {
		return transport.Ack{}, fmt.Errorf("invoke %s on %s: %w", command, d.id, err)
	}

	select {
	case ack := <-ch:
		return ack, nil
	case <-d.peer.closed():
		return transport.Ack{}, fmt.Errorf("invoke %s on %s: %w", command, d.id, transport.ErrClosed)
	case <-ctx.Done():
		return transport.Ack{}, ctx.Err()
	}
}

func (d *device) resolve(env *transport.Envelope) {
	d.mu.Lock()
	ch, ok := d.pending[env.ID]
	d.mu.Unlock()
	if !ok {
		d.logger.Debug("Ack %s matches no invoke", env.ID)
		return
	}
	select {
	case ch <- transport.Ack{Status: env.Status, Payload: env.Payload}:
	default:
	}
}

func (d *device) failPending() {
	d.peer.close()
}
