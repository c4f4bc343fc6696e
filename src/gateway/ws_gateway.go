package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"market-terminal/src/logger"
	"market-terminal/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// WebSocketGateway adapts the vendor gateway behind a persistent WebSocket
// connection speaking JSON envelopes: MGatewayRequest out, MGatewayEvent in.
// The reader goroutine owns the events channel and closes it when the
// transport dies, which is the supervisor's connection-loss signal.
// -----------------------------------------------------------------------------

const (
	gwHandshakeTimeout = 10 * time.Second
	gwWriteWait        = 5 * time.Second
	gwEventBuffer      = 1000
)

type WebSocketGateway struct {
	logger *logger.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan models.MGatewayEvent
	closed bool

	writeMu sync.Mutex
}

// -----------------------------------------------------------------------------

func NewWebSocketGateway(log *logger.Logger) *WebSocketGateway {
	return &WebSocketGateway{
		logger: log,
		events: make(chan models.MGatewayEvent, gwEventBuffer),
	}
}

// -----------------------------------------------------------------------------

// Connect dials the gateway and announces the client identity. The gateway
// answers with a "connected" event on the stream; acknowledgment timing is
// the supervisor's concern.
func (w *WebSocketGateway) Connect(ctx context.Context, identity models.MIdentity) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		return fmt.Errorf("already connected")
	}

	dialer := websocket.Dialer{HandshakeTimeout: gwHandshakeTimeout}
	url := fmt.Sprintf("ws://%s:%d/gateway", identity.Host, identity.Port)

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", url, err)
	}

	// Fresh channel per connection; the previous one was closed on loss.
	w.events = make(chan models.MGatewayEvent, gwEventBuffer)
	w.closed = false
	w.conn = conn

	hello := models.MGatewayRequest{Kind: "hello", ReqID: int64(identity.ClientID)}
	conn.SetWriteDeadline(time.Now().Add(gwWriteWait))
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		w.conn = nil
		return fmt.Errorf("failed to announce identity: %w", err)
	}

	go w.readLoop(conn, w.events)

	w.logger.Info("Gateway transport connected to %s", url)
	return nil
}

// -----------------------------------------------------------------------------

// readLoop drains the wire into the events channel. It owns the channel and
// closes it on exit.
func (w *WebSocketGateway) readLoop(conn *websocket.Conn, events chan models.MGatewayEvent) {
	defer close(events)

	for {
		var ev models.MGatewayEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Warning("Gateway read error: %v", err)
			}
			return
		}

		select {
		case events <- ev:
		default:
			// Inbound queue saturated; dropping is safer than blocking the
			// wire. Duplicate-tolerant consumers recover via timeouts.
			w.logger.Warning("Gateway event buffer full, dropping %s (reqId: %d)", ev.Kind, ev.ReqID)
		}
	}
}

// -----------------------------------------------------------------------------

// Send writes one request envelope.
func (w *WebSocketGateway) Send(req models.MGatewayRequest) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(gwWriteWait))
	return conn.WriteJSON(req)
}

// -----------------------------------------------------------------------------

// Close tears down the transport. The reader loop notices and closes the
// events channel. Safe to call repeatedly.
func (w *WebSocketGateway) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.conn != nil {
		err := w.conn.Close()
		w.conn = nil
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

// Events returns the inbound event channel for the current connection.
func (w *WebSocketGateway) Events() <-chan models.MGatewayEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.events
}
