package wstransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/edgesecrets/internal/delivery"
	"github.com/systmms/edgesecrets/internal/sources"
	"github.com/systmms/edgesecrets/pkg/secret"
	"github.com/systmms/edgesecrets/pkg/secretstore"
	"github.com/systmms/edgesecrets/pkg/transport"
)

func startHub(t *testing.T, handler EventHandler) (*Hub, string) {
	t.Helper()
	hub := NewHub(handler, nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialDevice(t *testing.T, hub *Hub, url, deviceID string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), ClientConfig{URL: url, DeviceID: deviceID}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.Eventually(t, func() bool {
		for _, id := range hub.Devices() {
			if id == deviceID {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	return c
}

func TestHubRejectsMissingDeviceID(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil, nil)
	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, hub.Devices())
}

func TestHubRejectsMissingOrWrongAPIKey(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil, nil, WithAPIKey("s3cret"))

	tests := map[string]string{
		"missing": "",
		"wrong":   "guess",
	}
	for name, key := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?device=dev-1", nil)
			if key != "" {
				req.Header.Set(APIKeyHeader, key)
			}
			rec := httptest.NewRecorder()
			hub.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Empty(t, hub.Devices())
		})
	}
}

func TestHubAcceptsMatchingAPIKey(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil, nil, WithAPIKey("s3cret"))
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, err := Dial(context.Background(), ClientConfig{URL: url, DeviceID: "dev-1"}, nil)
	require.Error(t, err)

	header := http.Header{}
	header.Set(APIKeyHeader, "s3cret")
	c, err := Dial(context.Background(), ClientConfig{URL: url, DeviceID: "dev-1", Headers: header}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.Eventually(t, func() bool {
		return len(hub.Devices()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDialRequiresURLAndDevice(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), ClientConfig{URL: "ws://localhost:1"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device_id")
}

func TestDialFailureIsBackendError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Dial(context.Background(), ClientConfig{
		URL:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		DeviceID: "dev-1",
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "websocket error during connect")
}

func TestEventsReachHubWithCorrelation(t *testing.T) {
	t.Parallel()

	type event struct {
		device string
		msg    transport.Message
	}
	events := make(chan event, 1)
	hub, url := startHub(t, func(_ context.Context, deviceID string, msg transport.Message, _ Invoker) {
		events <- event{device: deviceID, msg: msg}
	})
	c := dialDevice(t, hub, url, "dev-1")

	require.NoError(t, c.SendOneWay(context.Background(), []byte(`{"hello":"world"}`), "req-42"))

	select {
	case ev := <-events:
		assert.Equal(t, "dev-1", ev.device)
		assert.Equal(t, "req-42", ev.msg.Properties[transport.CorrelationProperty])
		assert.JSONEq(t, `{"hello":"world"}`, string(ev.msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestInvokeRoundTripsAck(t *testing.T) {
	t.Parallel()

	hub, url := startHub(t, nil)
	c := dialDevice(t, hub, url, "dev-1")

	var mu sync.Mutex
	var got []byte
	require.NoError(t, c.RegisterHandler(context.Background(), "Ping", func(_ context.Context, msg transport.Message) transport.Ack {
		mu.Lock()
		got = append([]byte(nil), msg.Payload...)
		mu.Unlock()
		return transport.Ack{Status: transport.StatusOK, Payload: []byte(`"pong"`)}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ack, err := hub.Invoke(ctx, "dev-1", "Ping", []byte(`{"n":1}`))
	require.NoError(t, err)
	assert.True(t, ack.OK())
	assert.JSONEq(t, `"pong"`, string(ack.Payload))

	mu.Lock()
	defer mu.Unlock()
	assert.JSONEq(t, `{"n":1}`, string(got))
}

func TestInvokeUnknownCommandAndDevice(t *testing.T) {
	t.Parallel()

	hub, url := startHub(t, nil)
	dialDevice(t, hub, url, "dev-1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ack, err := hub.Invoke(ctx, "dev-1", "Nope", nil)
	require.NoError(t, err)
	assert.Equal(t, transport.StatusNotFound, ack.Status)

	_, err = hub.Invoke(ctx, "dev-2", "Nope", nil)
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestClosedClientRejectsSends(t *testing.T) {
	t.Parallel()

	hub, url := startHub(t, nil)
	c := dialDevice(t, hub, url, "dev-1")
	require.NoError(t, c.Close())

	assert.False(t, c.Connected())
	assert.Error(t, c.SendOneWay(context.Background(), []byte(`{}`), "req-1"))
	assert.ErrorIs(t, c.RegisterHandler(context.Background(), "X", nil), transport.ErrClosed)
	require.Eventually(t, func() bool { return len(hub.Devices()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestCloseDuringReconnectLeavesNoConnection(t *testing.T) {
	t.Parallel()

	hub, url := startHub(t, nil)

	for i := 0; i < 20; i++ {
		c, err := Dial(context.Background(), ClientConfig{URL: url, DeviceID: "dev-1", ReconnectDelay: time.Millisecond}, nil)
		require.NoError(t, err)

		// Drop the connection so the client starts redialing, then close
		// it at a varying point of the reconnect cycle.
		hub.Close()
		time.Sleep(time.Duration(i%5) * time.Millisecond)

		done := make(chan struct{})
		go func() {
			_ = c.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("close hung on iteration %d", i)
		}

		assert.False(t, c.Connected())
		require.Eventually(t, func() bool { return len(hub.Devices()) == 0 }, 2*time.Second, 5*time.Millisecond)
	}
}

func TestRemoteStoreResolvesThroughHub(t *testing.T) {
	t.Parallel()

	source := sources.NewStatic("static",
		secret.New("db-password", "v1", "hunter2"),
		secret.New("api-key", "", "abc123"),
	)
	responder := delivery.New(source)

	hub, url := startHub(t, func(ctx context.Context, _ string, msg transport.Message, reply Invoker) {
		_ = responder.Handle(ctx, msg.Payload, reply)
	})
	c := dialDevice(t, hub, url, "dev-1")

	remote := secretstore.NewRemoteStore(c, secretstore.WithTimeout(2*time.Second))
	cache := secretstore.New(secretstore.NewMemoryMedium(), secretstore.WithInner(remote))

	ctx := context.Background()
	got, err := cache.RetrieveSecret(ctx, "db-password", "", time.Time{}, false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hunter2", got.Value)
	assert.Equal(t, "v1", got.Version)

	list, err := cache.RetrieveSecretList(ctx, []secret.Secret{
		secret.Stub("api-key", ""),
		secret.Stub("missing", ""),
	}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"api-key"}, list.Names())
}
