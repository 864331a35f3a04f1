package wstransport

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/transport"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod is the period at which pings are sent. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum frame size allowed from peer.
	maxMessageSize = 1024 * 1024

	// sendBufferSize is the buffer size for the send channel.
	sendBufferSize = 64
)

var errSendBufferFull = errors.New("websocket send buffer full")

// peer wraps one websocket connection with a write pump. Frames are JSON
// encoded transport.Envelopes, one per text message.
type peer struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *logging.Logger
}

func newPeer(conn *websocket.Conn, logger *logging.Logger) *peer {
	p := &peer{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go p.writePump()
	return p
}

// enqueue queues an envelope for the write pump
func (p *peer) enqueue(env *transport.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	select {
	case <-p.done:
		return transport.ErrClosed
	default:
	}

	select {
	case p.send <- data:
		return nil
	case <-p.done:
		return transport.ErrClosed
	default:
		return errSendBufferFull
	}
}

// readPump reads frames until the connection fails, passing each valid
// envelope to handle.
func (p *peer) readPump(handle func(env *transport.Envelope)) error {
	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			p.close()
			return err
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env transport.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			p.logger.Debug("Dropping undecodable frame: %v", err)
			continue
		}
		if err := env.Validate(); err != nil {
			p.logger.Debug("Dropping invalid frame: %v", err)
			continue
		}
		handle(&env)
	}
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case message := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				p.logger.Debug("Write failed: %v", err)
				p.close()
				return
			}

		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.close()
				return
			}

		case <-p.done:
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
	})
}

func (p *peer) closed() <-chan struct{} {
	return p.done
}
