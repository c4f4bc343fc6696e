package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"market-terminal/src/models"
)

// Dashboard push cadence for websocket subscribers.
const snapshotPeriod = 2 * time.Second

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// runHub is the main hub loop: it registers clients, prunes slow ones, and
// pushes a fresh dashboard snapshot on a fixed cadence.
func (s *APIServer) runHub() {
	ticker := time.NewTicker(snapshotPeriod)
	defer ticker.Stop()

	for {
		select {
		case client := <-s.register:
			s.hubMutex.Lock()
			s.clients[client] = struct{}{}
			s.hubMutex.Unlock()

			// Send current state on connect
			snapshot := s.dashboard.Snapshot()
			client.send <- &snapshot

		case client := <-s.unregister:
			s.hubMutex.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
			s.hubMutex.Unlock()

		case message := <-s.broadcast:
			s.broadcastSnapshot(message)

		case <-ticker.C:
			s.hubMutex.RLock()
			idle := len(s.clients) == 0
			s.hubMutex.RUnlock()
			if idle {
				continue
			}
			snapshot := s.dashboard.Snapshot()
			s.broadcastSnapshot(&snapshot)
		}
	}
}

// -----------------------------------------------------------------------------

func (s *APIServer) broadcastSnapshot(snapshot *models.MDashboardSummary) {
	s.hubMutex.Lock()
	defer s.hubMutex.Unlock()

	for client := range s.clients {
		select {
		case client.send <- snapshot:
			// Message sent successfully
		default:
			// Client too slow, disconnect to prevent hub blocking
			delete(s.clients, client)
			close(client.send)
		}
	}
}

// -----------------------------------------------------------------------------

// Broadcast queues one out-of-cadence snapshot push.
func (s *APIServer) Broadcast(snapshot models.MDashboardSummary) {
	select {
	case s.broadcast <- &snapshot:
	default:
		// Queue full; the periodic push will carry the state anyway.
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *APIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		// Buffered channel to prevent blocking the hub loop
		send: make(chan *models.MDashboardSummary, 256),
	}

	s.register <- client

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}
