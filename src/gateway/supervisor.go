package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"market-terminal/src/helpers"
	"market-terminal/src/interfaces"
	"market-terminal/src/logger"
	"market-terminal/src/metrics"
	"market-terminal/src/models"
)

// -----------------------------------------------------------------------------
// ConnectionSupervisor owns the single gateway connection. It is the only
// writer to the transport and the single demultiplexer of inbound events:
// one goroutine drains the gateway's event channel strictly in arrival order
// and routes each event through a dispatch table registered once at
// construction (no callback inheritance, plain data-driven dispatch).
//
// State machine: Disconnected -> Connecting -> Connected -> Disconnected.
// Reconnection after loss is a fresh Connect call, never automatic.
// -----------------------------------------------------------------------------

type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// TickSink receives unsolicited tick events and connection-loss notification.
// Implemented by the stream registry; declared here so routing stays one-way.
type TickSink interface {
	Append(streamID int64, tick models.MTick)
	StopAll()
	ActiveCount() int
}

// -----------------------------------------------------------------------------

type ConnectionSupervisor struct {
	logger   *logger.Logger
	metrics  *metrics.Metrics
	gw       interfaces.IGateway
	registry *RequestRegistry
	pacer    *PacingLimiter

	mu          sync.RWMutex
	state       ConnState
	identity    models.MIdentity
	connectedAt time.Time

	tickSink TickSink
	handlers map[models.GatewayEventKind]func(models.MGatewayEvent)

	ackCh   chan struct{}
	ackOnce *sync.Once

	sendMu sync.Mutex

	loopDone chan struct{}
}

// -----------------------------------------------------------------------------

func NewConnectionSupervisor(gw interfaces.IGateway, registry *RequestRegistry, pacer *PacingLimiter, log *logger.Logger, m *metrics.Metrics) *ConnectionSupervisor {
	s := &ConnectionSupervisor{
		logger:   log,
		metrics:  m,
		gw:       gw,
		registry: registry,
		pacer:    pacer,
		state:    StateDisconnected,
	}

	// Dispatch table: one handler per event kind, registered once.
	s.handlers = map[models.GatewayEventKind]func(models.MGatewayEvent){
		models.EventConnected:    s.onConnected,
		models.EventData:         s.onData,
		models.EventComplete:     s.onComplete,
		models.EventError:        s.onError,
		models.EventTick:         s.onTick,
		models.EventNews:         s.onNews,
		models.EventNewsEnd:      s.onNewsEnd,
		models.EventDisconnected: s.onDisconnectEvent,
	}

	return s
}

// -----------------------------------------------------------------------------

// SetTickSink wires the stream registry in after construction. Must be called
// before Connect.
func (s *ConnectionSupervisor) SetTickSink(sink TickSink) {
	s.tickSink = sink
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Connect opens the gateway connection and blocks until the gateway
// acknowledges or the timeout elapses.
func (s *ConnectionSupervisor) Connect(ctx context.Context, identity models.MIdentity, timeout time.Duration) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		return helpers.NewConnectionError(fmt.Sprintf("connect rejected in state %q", state), nil)
	}
	s.state = StateConnecting
	s.identity = identity
	s.ackCh = make(chan struct{})
	s.ackOnce = &sync.Once{}
	s.mu.Unlock()
	s.metrics.SetConnectionState(1)

	s.logger.Info("Connecting to gateway %s:%d (clientId: %d)", identity.Host, identity.Port, identity.ClientID)

	if err := s.gw.Connect(ctx, identity); err != nil {
		s.setState(StateDisconnected)
		s.metrics.SetConnectionState(0)
		return helpers.NewConnectionError("gateway connect failed", err)
	}

	s.loopDone = make(chan struct{})
	go s.eventLoop(s.loopDone)

	// Wait for acknowledgment; without it the connection is not usable.
	select {
	case <-s.ackCh:
	case <-s.loopDone:
		// Transport died before (or racing with) the ack.
		s.metrics.SetConnectionState(0)
		return helpers.NewConnectionError("connection lost during handshake", nil)
	case <-time.After(timeout):
		s.logger.Error("No connection acknowledgment within %v", timeout)
		s.gw.Close()
		<-s.loopDone
		s.metrics.SetConnectionState(0)
		return helpers.NewConnectionError(fmt.Sprintf("no acknowledgment within %v", timeout), nil)
	case <-ctx.Done():
		s.gw.Close()
		<-s.loopDone
		s.metrics.SetConnectionState(0)
		return helpers.NewConnectionError("connect cancelled", ctx.Err())
	}

	// Transition only Connecting -> Connected. The event loop's teardown owns
	// the Disconnected state; if it already ran, this handshake lost the race
	// and must not resurrect a dead connection.
	s.mu.Lock()
	if s.state != StateConnecting {
		state := s.state
		s.mu.Unlock()
		s.metrics.SetConnectionState(0)
		return helpers.NewConnectionError(fmt.Sprintf("connection lost during handshake (state %q)", state), nil)
	}
	s.state = StateConnected
	s.connectedAt = time.Now()
	s.mu.Unlock()
	s.metrics.SetConnectionState(2)

	s.logger.Info("Connected to gateway")
	return nil
}

// -----------------------------------------------------------------------------

// Disconnect closes the connection explicitly. Pending requests resolve with
// ConnectionLost and active streams stop, same as an unexpected drop.
func (s *ConnectionSupervisor) Disconnect() {
	s.mu.RLock()
	state := s.state
	done := s.loopDone
	s.mu.RUnlock()

	if state == StateDisconnected {
		return
	}

	s.logger.Info("Disconnecting from gateway...")
	s.gw.Close()
	if done != nil {
		<-done
	}
}

// -----------------------------------------------------------------------------

// State returns the current connection state.
func (s *ConnectionSupervisor) State() ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// -----------------------------------------------------------------------------

// Status returns the connection-level polling view.
func (s *ConnectionSupervisor) Status() models.MConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var connectedAt int64
	if s.state == StateConnected {
		connectedAt = s.connectedAt.UnixMilli()
	}

	status := models.MConnectionStatus{
		State:           string(s.state),
		Host:            s.identity.Host,
		Port:            s.identity.Port,
		ClientID:        s.identity.ClientID,
		ConnectedAt:     connectedAt,
		PendingRequests: s.registry.PendingCount(),
		PacingQueue:     s.pacer.QueueLen(),
	}
	if s.tickSink != nil {
		status.ActiveStreams = s.tickSink.ActiveCount()
	}
	return status
}

// -----------------------------------------------------------------------------

// PendingRequests returns the in-flight request snapshot for the operational
// surface.
func (s *ConnectionSupervisor) PendingRequests() []models.MRequestInfo {
	return s.registry.PendingRequests()
}

// -----------------------------------------------------------------------------
// Outbound path
// -----------------------------------------------------------------------------

// Send writes one request to the transport. Serialized: the connection is a
// single exclusively-owned resource with one writer.
func (s *ConnectionSupervisor) Send(req models.MGatewayRequest) error {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()

	if state != StateConnected {
		return helpers.NewConnectionError(fmt.Sprintf("not connected (state %q)", state), nil)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if err := s.gw.Send(req); err != nil {
		return helpers.NewConnectionError("send failed", err)
	}
	s.metrics.Dispatched(string(req.Kind))
	return nil
}

// -----------------------------------------------------------------------------

// Dispatch is the full outbound sequence shared by every orchestration
// operation: allocate an id, pass the pacing gate, send. On any failure the
// allocated id is cancelled so the registry ledger stays exact. The returned
// waiter fires exactly once, by callback resolution or by sweep.
func (s *ConnectionSupervisor) Dispatch(ctx context.Context, kind models.RequestKind, symbol string, timeout time.Duration, fill func(req *models.MGatewayRequest)) (int64, <-chan models.MRequestOutcome, error) {
	id, waiter := s.registry.Allocate(kind, symbol, timeout)

	if err := s.pacer.Await(ctx); err != nil {
		s.registry.Cancel(id)
		return 0, nil, err
	}

	req := models.MGatewayRequest{Kind: kind, ReqID: id, Symbol: symbol}
	if fill != nil {
		fill(&req)
	}

	if err := s.Send(req); err != nil {
		s.registry.Cancel(id)
		return 0, nil, err
	}

	return id, waiter, nil
}

// -----------------------------------------------------------------------------
// Inbound path: single-consumer event loop
// -----------------------------------------------------------------------------

// eventLoop drains inbound events strictly in arrival order. All routing to
// the request registry and the stream registry happens on this goroutine.
// done is this loop's own channel; a reconnect swaps s.loopDone for the next
// loop before this one necessarily exits.
func (s *ConnectionSupervisor) eventLoop(done chan struct{}) {
	defer close(done)

	for ev := range s.gw.Events() {
		handler, ok := s.handlers[ev.Kind]
		if !ok {
			s.logger.Warning("No handler for event kind %q (reqId: %d)", ev.Kind, ev.ReqID)
			continue
		}
		handler(ev)
	}

	// Channel closed: the transport is gone, expectedly or not.
	s.handleConnectionLoss()
}

// -----------------------------------------------------------------------------

func (s *ConnectionSupervisor) handleConnectionLoss() {
	s.mu.Lock()
	wasConnected := s.state == StateConnected
	s.state = StateDisconnected
	s.mu.Unlock()
	s.metrics.SetConnectionState(0)

	if wasConnected {
		s.logger.Warning("Gateway connection lost")
	}

	s.registry.FailAll(helpers.NewConnectionLostError(0))
	if s.tickSink != nil {
		s.tickSink.StopAll()
	}
}

// -----------------------------------------------------------------------------
// Event handlers (dispatch table targets)
// -----------------------------------------------------------------------------

func (s *ConnectionSupervisor) onConnected(_ models.MGatewayEvent) {
	s.ackOnce.Do(func() { close(s.ackCh) })
}

func (s *ConnectionSupervisor) onData(ev models.MGatewayEvent) {
	if ev.Bar == nil {
		s.logger.Warning("Data event without bar payload (reqId: %d)", ev.ReqID)
		return
	}
	s.registry.AppendBar(ev.ReqID, *ev.Bar)
}

func (s *ConnectionSupervisor) onComplete(ev models.MGatewayEvent) {
	s.registry.Resolve(ev.ReqID, models.ReqCompleted, nil)
}

func (s *ConnectionSupervisor) onError(ev models.MGatewayEvent) {
	if ev.ReqID <= 0 {
		// Connection-level notice, no request to fail.
		s.logger.Warning("Gateway notice %d: %s", ev.Code, ev.Message)
		return
	}
	s.registry.Resolve(ev.ReqID, models.ReqFailed, helpers.NewGatewayError(ev.ReqID, ev.Code, ev.Message))
}

func (s *ConnectionSupervisor) onTick(ev models.MGatewayEvent) {
	if ev.Tick == nil || s.tickSink == nil {
		return
	}
	s.metrics.Tick()
	s.tickSink.Append(ev.ReqID, *ev.Tick)
}

func (s *ConnectionSupervisor) onNews(ev models.MGatewayEvent) {
	if ev.News == nil {
		return
	}
	s.registry.AppendNews(ev.ReqID, *ev.News)
}

func (s *ConnectionSupervisor) onNewsEnd(ev models.MGatewayEvent) {
	s.registry.Resolve(ev.ReqID, models.ReqCompleted, nil)
}

func (s *ConnectionSupervisor) onDisconnectEvent(_ models.MGatewayEvent) {
	// The transport announced its own death; closing it ends the event loop,
	// which performs the teardown.
	s.gw.Close()
}

// -----------------------------------------------------------------------------

func (s *ConnectionSupervisor) setState(state ConnState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
